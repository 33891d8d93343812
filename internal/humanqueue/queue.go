// Package humanqueue implements Tier 4 of the cascade: a file-backed
// pending-decision queue that a cascade turn enqueues into and blocks on,
// and that a human reviewer (via the admin API or the CLI) drains and
// replies to from a possibly different process. Grounded on the teacher's
// approval-request/response shape (orchestrator/hitl_execution.go's
// HITLApprovalRequest/HITLApprovalResponse and its uuid-keyed pending-id
// convention), reworked from an in-process call into a cross-process file
// queue since permgate has no shared database between the hook process and
// the supervisor daemon.
package humanqueue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"permgate/internal/decision"
	"permgate/internal/obslog"
	"permgate/internal/pgerr"
)

// PendingDecision is one tool call awaiting human review.
type PendingDecision struct {
	ID          string            `json:"id"`
	Key         decision.CacheKey `json:"key"`
	Tool        string            `json:"tool"`
	Path        string            `json:"path,omitempty"`
	SessionID   string            `json:"session_id"`
	ScopeCeiling decision.Scope   `json:"scope_ceiling"`
	Reason      string            `json:"reason"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Reply is a human reviewer's answer to one PendingDecision.
type Reply struct {
	Verdict   decision.Verdict `json:"verdict"`
	AlwaysAsk bool             `json:"always_ask"`
	AddRule   bool             `json:"add_rule"`
	RuleScope decision.Scope   `json:"rule_scope,omitempty"`
	Comment   string           `json:"comment,omitempty"`
	ReviewedBy string          `json:"reviewed_by,omitempty"`
	ReviewedAt time.Time       `json:"reviewed_at"`
}

const pollInterval = 200 * time.Millisecond

// Queue is a directory of pending/<id>.json files and reply/<id>.json files.
// A reviewer answers by writing to reply/; the original enqueuer polls for
// that file's appearance. Both directories are append-then-remove, never
// mutated in place, so concurrent readers never observe partial writes.
type Queue struct {
	pendingDir string
	replyDir   string
	log        *obslog.Logger
}

// New creates a Queue rooted at dir, creating the pending/ and reply/
// subdirectories if needed.
func New(dir string) (*Queue, error) {
	pendingDir := filepath.Join(dir, "pending")
	replyDir := filepath.Join(dir, "reply")
	for _, d := range []string{pendingDir, replyDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return nil, pgerr.Wrap(pgerr.IO, "create human queue directory", err).WithContext("path", d)
		}
	}
	return &Queue{pendingDir: pendingDir, replyDir: replyDir, log: obslog.New("humanqueue")}, nil
}

// Enqueue assigns a fresh id to pd and writes it to the pending directory,
// returning the id for the caller to await a reply on.
func (q *Queue) Enqueue(pd PendingDecision) (string, error) {
	pd.ID = uuid.NewString()
	pd.CreatedAt = time.Now().UTC()
	path := filepath.Join(q.pendingDir, pd.ID+".json")
	if err := writeJSONAtomic(path, pd); err != nil {
		return "", err
	}
	return pd.ID, nil
}

// List returns all pending decisions, oldest first.
func (q *Queue) List() ([]PendingDecision, error) {
	entries, err := os.ReadDir(q.pendingDir)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "list pending decisions", err)
	}
	out := make([]PendingDecision, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(q.pendingDir, e.Name()))
		if err != nil {
			continue
		}
		var pd PendingDecision
		if err := json.Unmarshal(b, &pd); err != nil {
			q.log.Warn("", "skipping malformed pending decision file", map[string]interface{}{"file": e.Name()})
			continue
		}
		out = append(out, pd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Reply answers a pending decision by id. If reply.AddRule is set, its
// RuleScope must not exceed the scope ceiling recorded at enqueue time
// (the acting session's own scope authority) — a reviewer cannot mint a
// rule broader than the session that raised the question was entitled to
// request, so a ceiling violation is rejected rather than silently clamped.
func (q *Queue) Reply(id string, reply Reply) error {
	pendingPath := filepath.Join(q.pendingDir, id+".json")
	b, err := os.ReadFile(pendingPath)
	if os.IsNotExist(err) {
		return pgerr.New(pgerr.API, "no pending decision with that id").WithContext("id", id)
	}
	if err != nil {
		return pgerr.Wrap(pgerr.IO, "read pending decision", err)
	}
	var pd PendingDecision
	if err := json.Unmarshal(b, &pd); err != nil {
		return pgerr.Wrap(pgerr.Serialization, "parse pending decision", err)
	}

	if reply.AddRule && reply.RuleScope.Precedence() > pd.ScopeCeiling.Precedence() {
		return pgerr.New(pgerr.InvalidPolicy, "rule scope exceeds session's scope ceiling").
			WithContext("requested_scope", reply.RuleScope).
			WithContext("ceiling", pd.ScopeCeiling)
	}

	reply.ReviewedAt = time.Now().UTC()
	replyPath := filepath.Join(q.replyDir, id+".json")
	if err := writeJSONAtomic(replyPath, reply); err != nil {
		return err
	}
	_ = os.Remove(pendingPath)
	return nil
}

// Await blocks until id's reply file appears or ctx is done, polling every
// 200ms. This is the file-queue analogue of the async IPC wait used for
// Tier 3, grounded on the same poll-and-timeout shape as the session
// registration wait.
func (q *Queue) Await(ctx context.Context, id string) (Reply, error) {
	replyPath := filepath.Join(q.replyDir, id+".json")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		b, err := os.ReadFile(replyPath)
		if err == nil {
			var reply Reply
			if jsonErr := json.Unmarshal(b, &reply); jsonErr != nil {
				return Reply{}, pgerr.Wrap(pgerr.Serialization, "parse reply", jsonErr)
			}
			return reply, nil
		}
		select {
		case <-ctx.Done():
			return Reply{}, pgerr.New(pgerr.HumanTimeout, "human review timed out").WithContext("id", id)
		case <-ticker.C:
		}
	}
}

func writeJSONAtomic(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return pgerr.Wrap(pgerr.Serialization, "marshal json", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return pgerr.Wrap(pgerr.IO, "create temp file", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return pgerr.Wrap(pgerr.IO, "write temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return pgerr.Wrap(pgerr.IO, "fsync temp file", err)
	}
	if err := f.Close(); err != nil {
		return pgerr.Wrap(pgerr.IO, "close temp file", err)
	}
	return os.Rename(tmp, path)
}
