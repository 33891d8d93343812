package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"permgate/internal/decision"
	"permgate/internal/obslog"
	"permgate/internal/pgerr"
	"permgate/internal/sanitize"
)

// verdictFiles lists the three leaf files every scope directory holds.
var verdictFiles = []decision.Verdict{decision.Allow, decision.Deny, decision.Ask}

// JSONLStore is a filesystem-backed Store rooted at one base directory, with
// one subdirectory per scope and one file per verdict inside it.
type JSONLStore struct {
	root     string
	mu       sync.Mutex // serializes writers per spec §5; readers never block
	log      *obslog.Logger
	pipeline *sanitize.Pipeline
}

// NewJSONLStore creates a store rooted at root, creating it if absent.
func NewJSONLStore(root string) (*JSONLStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "create store root", err).WithContext("path", root)
	}
	return &JSONLStore{
		root:     root,
		log:      obslog.New("store"),
		pipeline: sanitize.Default(),
	}, nil
}

func (s *JSONLStore) scopeDir(scope decision.Scope) string {
	return filepath.Join(s.root, string(scope))
}

func (s *JSONLStore) verdictPath(scope decision.Scope, v decision.Verdict) string {
	return filepath.Join(s.scopeDir(scope), string(v)+".jsonl")
}

// Load reads all three verdict files for scope, skipping malformed lines
// with a warning. A missing file is treated as empty.
func (s *JSONLStore) Load(scope decision.Scope) ([]decision.Record, error) {
	var all []decision.Record
	for _, v := range verdictFiles {
		records, err := s.readFile(s.verdictPath(scope, v))
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

// LoadForRole loads scope and filters to records whose role matches role
// exactly or is the wildcard "*".
func (s *JSONLStore) LoadForRole(scope decision.Scope, role string) ([]decision.Record, error) {
	all, err := s.Load(scope)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.Key.Role == role || r.Key.Role == decision.WildcardRole {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *JSONLStore) readFile(path string) ([]decision.Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, pgerr.Wrap(pgerr.Storage, "open decision file", err).WithContext("path", path)
	}
	defer f.Close()

	var records []decision.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec decision.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Warn("", "skipping malformed decision record", map[string]interface{}{
				"path": path, "line": lineNum, "error": err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, pgerr.Wrap(pgerr.Storage, "scan decision file", err).WithContext("path", path)
	}
	return records, nil
}

// Save appends one record to its (scope, verdict) file, creating parent
// directories as needed. Appends are O_APPEND so concurrent writers to
// distinct files never interleave a partial line; writers within this
// process serialize through mu to match spec §5's ordering guarantee.
func (s *JSONLStore) Save(record decision.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.scopeDir(record.Scope)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return pgerr.Wrap(pgerr.Storage, "create scope dir", err).WithContext("path", dir)
	}
	path := s.verdictPath(record.Scope, record.Decision)

	b, err := json.Marshal(record)
	if err != nil {
		return pgerr.Wrap(pgerr.Serialization, "marshal decision record", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return pgerr.Wrap(pgerr.Storage, "open decision file for append", err).WithContext("path", path)
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		return pgerr.Wrap(pgerr.Storage, "append decision record", err).WithContext("path", path)
	}
	return f.Sync()
}

// InvalidateRole rewrites each of the three verdict files for scope, keeping
// only records whose role != role. The rewrite is atomic at file
// granularity: write to a sibling temp file, fsync, then rename over the
// original — this is the one place the Go implementation strengthens the
// original source's direct-overwrite rewrite to match spec §4.B.
func (s *JSONLStore) InvalidateRole(scope decision.Scope, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range verdictFiles {
		path := s.verdictPath(scope, v)
		records, err := s.readFile(path)
		if err != nil {
			return err
		}
		kept := records[:0]
		for _, r := range records {
			if r.Key.Role != role {
				kept = append(kept, r)
			}
		}
		if err := s.atomicRewrite(path, kept); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateAll deletes the three verdict files for scope outright.
func (s *JSONLStore) InvalidateAll(scope decision.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range verdictFiles {
		path := s.verdictPath(scope, v)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return pgerr.Wrap(pgerr.Storage, "remove decision file", err).WithContext("path", path)
		}
	}
	return nil
}

// atomicRewrite writes records to path via temp+fsync+rename. A record set
// of length zero still produces an (empty) file, since callers rely on
// InvalidateRole leaving a present-but-empty file rather than deleting it.
func (s *JSONLStore) atomicRewrite(path string, records []decision.Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*.jsonl")
	if err != nil {
		return pgerr.Wrap(pgerr.Storage, "create temp file for rewrite", err).WithContext("path", path)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	w := bufio.NewWriter(tmp)
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			tmp.Close()
			return pgerr.Wrap(pgerr.Serialization, "marshal record during rewrite", err)
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			tmp.Close()
			return pgerr.Wrap(pgerr.Storage, "write temp file", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return pgerr.Wrap(pgerr.Storage, "flush temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return pgerr.Wrap(pgerr.Storage, "fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return pgerr.Wrap(pgerr.Storage, "close temp file", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return pgerr.Wrap(pgerr.Storage, "chmod temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return pgerr.Wrap(pgerr.Storage, "rename temp file into place", err).WithContext("path", path)
	}
	return nil
}

// ScanForSecrets runs the sanitizer over each line of path; any line that
// changes under sanitization is reported as a potential stored-secret leak.
func (s *JSONLStore) ScanForSecrets(path string) ([]SecretFinding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "open file to scan", err).WithContext("path", path)
	}
	defer f.Close()

	var findings []SecretFinding
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if finding := scanLineForSecrets(s.pipeline, path, lineNum, scanner.Text()); finding != nil {
			findings = append(findings, *finding)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "scan file", err).WithContext("path", path)
	}
	return findings, nil
}
