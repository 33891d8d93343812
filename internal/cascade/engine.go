// Package cascade sequences the decision tiers (spec §4.K): path policy,
// scope resolution, exact cache, token-Jaccard, embedding similarity,
// supervisor, and human queue, short-circuiting on the first definitive
// verdict. Grounded on the original implementation's cascade/engine module;
// no single teacher file matches this orchestration role, so its shape
// follows the teacher's general "engine wraps stages, each stage either
// returns or yields" convention seen in orchestrator/llm/router.go's
// provider-fallback loop.
package cascade

import (
	"context"
	"time"

	"permgate/internal/cache"
	"permgate/internal/decision"
	"permgate/internal/embedindex"
	"permgate/internal/humanqueue"
	"permgate/internal/obslog"
	"permgate/internal/pgerr"
	"permgate/internal/sanitize"
	"permgate/internal/scope"
	"permgate/internal/session"
	"permgate/internal/store"
	"permgate/internal/supervisor"
	"permgate/internal/tokenindex"
)

// tierPersistScope is the scope a Tier 3 (supervisor) resolution is
// recorded at: narrowest-possible, since an automated LLM verdict should
// never silently widen beyond the session that triggered it. See
// DESIGN.md's resolution of this otherwise-unspecified choice.
const tierPersistScope = decision.ScopeRole

// humanScopeCeiling bounds how broad a rule a human reviewer may mint for
// one pending decision: a session cannot have its own reviewer grant it
// org-wide authority it never had. See DESIGN.md.
const humanScopeCeiling = decision.ScopeUser

// Request is one tool invocation the engine must produce a verdict for.
type Request struct {
	SessionID       string
	Tool            string
	ToolInput       string
	FilePath        string
	Cwd             string
	TaskDescription string
	PromptPath      string
}

// Engine wires every tier together. All fields are required except
// SupervisorClient (nil disables Tier 3, falling straight to Tier 4).
type Engine struct {
	Sessions                *session.Manager
	Sanitizer               *sanitize.Pipeline
	Scope                   *scope.Resolver
	ExactCache              *cache.ExactCache
	TokenIndex              *tokenindex.Index
	EmbedIndex              *embedindex.Index
	SupervisorClient        *supervisor.Client
	HumanQueue              *humanqueue.Queue
	Store                   store.Store
	Log                     *obslog.Logger
	RegistrationTimeoutSecs int
	HumanTimeoutSecs        int
}

// New builds an Engine with the teacher's usual default-filling
// constructor shape; zero timeouts fall back to the package defaults.
func New(
	sessions *session.Manager,
	sc *scope.Resolver,
	exact *cache.ExactCache,
	tokens *tokenindex.Index,
	embeds *embedindex.Index,
	supClient *supervisor.Client,
	humanQ *humanqueue.Queue,
	backing store.Store,
) *Engine {
	return &Engine{
		Sessions:                sessions,
		Sanitizer:               sanitize.Default(),
		Scope:                   sc,
		ExactCache:              exact,
		TokenIndex:              tokens,
		EmbedIndex:              embeds,
		SupervisorClient:        supClient,
		HumanQueue:              humanQ,
		Store:                   backing,
		Log:                     obslog.New("cascade"),
		RegistrationTimeoutSecs: 5,
		HumanTimeoutSecs:        60,
	}
}

// Evaluate runs one cascade turn to completion, returning exactly one
// decision record or a terminal error (registration timeout, human
// timeout).
func (e *Engine) Evaluate(ctx context.Context, req Request) (decision.Record, error) {
	sessCtx, err := e.resolveSession(req)
	if err != nil {
		return decision.Record{}, err
	}

	if sessCtx.Disabled {
		return e.terminal(req, decision.Allow, decision.TierDefault, "session disabled", sessCtx.SessionID), nil
	}

	sanitizedInput := e.Sanitizer.Sanitize(req.ToolInput)
	key := decision.CacheKey{SanitizedInput: sanitizedInput, Tool: req.Tool, Role: sessCtx.Role}

	if sessCtx.PathPolicy != nil {
		if v, reason, ok := sessCtx.PathPolicy.Evaluate(req.Tool, req.FilePath); ok {
			tier := decision.TierPathPolicy
			if reason == "sensitive path default" {
				tier = decision.TierSensitivePath
			}
			return e.terminal(req, v, tier, reason, sessCtx.SessionID), nil
		}
	}

	if resolved, ok, err := e.Scope.Resolve(key); err != nil {
		return decision.Record{}, pgerr.Wrap(pgerr.Storage, "resolve scope", err)
	} else if ok {
		rec := resolved.Record.Clone()
		rec.Key = key
		return rec, nil
	}

	if rec, ok := e.ExactCache.Get(key); ok {
		return rec, nil
	}

	if match, ok := e.TokenIndex.Search(sanitizedInput, req.Tool, sessCtx.Role); ok {
		return retagMatch(match.Record, key, match.Score), nil
	}

	if match, ok := e.EmbedIndex.Search(sanitizedInput, req.Tool, sessCtx.Role); ok {
		return retagMatch(match.Record, key, match.Score), nil
	}

	if rec, ok, err := e.trySupervisor(ctx, req, sessCtx, key); err != nil {
		e.Log.Warn(sessCtx.SessionID, "supervisor tier unavailable, falling to human queue", map[string]interface{}{"error": err.Error()})
	} else if ok {
		return rec, nil
	}

	return e.runHumanTier(ctx, req, sessCtx, key)
}

func (e *Engine) resolveSession(req Request) (*session.Context, error) {
	if !e.Sessions.IsRegistered(req.SessionID) {
		timeout := e.RegistrationTimeoutSecs
		if err := e.Sessions.WaitForRegistration(req.SessionID, timeout); err != nil {
			return nil, err
		}
	}
	return e.Sessions.GetOrPopulate(req.SessionID, req.Cwd)
}

func (e *Engine) terminal(req Request, v decision.Verdict, tier decision.Tier, reason, sessionID string) decision.Record {
	var filePath *string
	if req.FilePath != "" {
		filePath = &req.FilePath
	}
	return decision.Record{
		Key:       decision.CacheKey{SanitizedInput: req.ToolInput, Tool: req.Tool},
		Decision:  v,
		Metadata:  decision.Metadata{Tier: tier, Confidence: 1.0, Reason: reason},
		Timestamp: time.Now().UTC(),
		FilePath:  filePath,
		SessionID: sessionID,
	}
}

// retagMatch returns a copy of a token-Jaccard or embedding tier match with
// its query key and similarity score filled in. The producer tier in
// Metadata is left untouched: per spec §4.K only Tier 1 (exact cache) hits
// retag themselves to their own tier, preserving every other tier's actual
// producer in the metadata regardless of which tier retrieved it.
func retagMatch(rec decision.Record, queryKey decision.CacheKey, score float64) decision.Record {
	out := rec.Clone()
	out.Key = queryKey
	out.Metadata.SimilarityScore = &score
	out.Timestamp = time.Now().UTC()
	return out
}

func (e *Engine) trySupervisor(ctx context.Context, req Request, sessCtx *session.Context, key decision.CacheKey) (decision.Record, bool, error) {
	if e.SupervisorClient == nil {
		return decision.Record{}, false, pgerr.New(pgerr.SocketNotFound, "no supervisor client configured")
	}

	resp, err := e.SupervisorClient.Ask(ctx, supervisor.Request{
		SessionID:       sessCtx.SessionID,
		ToolName:        req.Tool,
		ToolInput:       key.SanitizedInput,
		Role:            sessCtx.Role,
		FilePath:        req.FilePath,
		TaskDescription: req.TaskDescription,
		PromptPath:      req.PromptPath,
		Cwd:             req.Cwd,
	})
	if err != nil {
		return decision.Record{}, false, err
	}

	resp.Metadata.Tier = decision.TierSupervisor
	rec := decision.Record{
		Key:       key,
		Decision:  resp.Verdict,
		Metadata:  resp.Metadata,
		Timestamp: time.Now().UTC(),
		Scope:     tierPersistScope,
		SessionID: sessCtx.SessionID,
	}
	e.persistAndFanOut(rec)
	return rec, true, nil
}

func (e *Engine) runHumanTier(ctx context.Context, req Request, sessCtx *session.Context, key decision.CacheKey) (decision.Record, error) {
	var filePath *string
	if req.FilePath != "" {
		filePath = &req.FilePath
	}

	id, err := e.HumanQueue.Enqueue(humanqueue.PendingDecision{
		Key:          key,
		Tool:         req.Tool,
		Path:         req.FilePath,
		SessionID:    sessCtx.SessionID,
		ScopeCeiling: humanScopeCeiling,
		Reason:       "no automated tier produced a definitive verdict",
	})
	if err != nil {
		return decision.Record{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(e.humanTimeoutSecs())*time.Second)
	defer cancel()

	reply, err := e.HumanQueue.Await(waitCtx, id)
	if err != nil {
		return decision.Record{}, err
	}

	storeVerdict := reply.Verdict
	if reply.AlwaysAsk {
		storeVerdict = decision.Ask
	}

	rec := decision.Record{
		Key:       key,
		Decision:  storeVerdict,
		Metadata:  decision.Metadata{Tier: decision.TierHuman, Confidence: 1.0, Reason: "human review"},
		Timestamp: time.Now().UTC(),
		FilePath:  filePath,
		SessionID: sessCtx.SessionID,
	}

	if reply.AddRule {
		rec.Scope = reply.RuleScope
		e.persistAndFanOut(rec)
	}

	out := rec
	out.Decision = reply.Verdict
	return out, nil
}

func (e *Engine) humanTimeoutSecs() int {
	if e.HumanTimeoutSecs <= 0 {
		return 60
	}
	return e.HumanTimeoutSecs
}

// persistAndFanOut writes rec to the durable store and updates every
// in-memory index so subsequent turns can hit a faster tier, per spec
// §4.K's "fans out to C/D/E" requirement. Index/cache updates are best
// effort and logged, never allowed to fail the cascade turn that already
// produced its verdict.
func (e *Engine) persistAndFanOut(rec decision.Record) {
	if err := e.Store.Save(rec); err != nil {
		e.Log.ErrorWithErr(rec.SessionID, "persist cascade decision", err, nil)
	}
	e.ExactCache.Put(rec)
	e.TokenIndex.Insert(rec)
	e.EmbedIndex.Insert(rec)
}
