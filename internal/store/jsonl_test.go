package store

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"permgate/internal/decision"
)

func mkRecord(role string, v decision.Verdict) decision.Record {
	return decision.Record{
		Key:       decision.CacheKey{SanitizedInput: "echo hi", Tool: "Bash", Role: role},
		Decision:  v,
		Metadata:  decision.Metadata{Tier: decision.TierHuman, Confidence: 1.0, Reason: "test"},
		Timestamp: time.Now().UTC(),
		Scope:     decision.ScopeProject,
		SessionID: "s1",
	}
}

func TestJSONLStore_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	rec := mkRecord("coder", decision.Allow)
	require.NoError(t, s.Save(rec))

	records, err := s.Load(decision.ScopeProject)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, rec.Key, records[0].Key)
}

func TestJSONLStore_MissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	records, err := s.Load(decision.ScopeOrg)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestJSONLStore_LoadForRoleWildcard(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(mkRecord("coder", decision.Allow)))
	require.NoError(t, s.Save(mkRecord("*", decision.Ask)))
	require.NoError(t, s.Save(mkRecord("tester", decision.Deny)))

	records, err := s.LoadForRole(decision.ScopeProject, "coder")
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestJSONLStore_InvalidateRole(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(mkRecord("coder", decision.Allow)))
	require.NoError(t, s.Save(mkRecord("tester", decision.Allow)))

	require.NoError(t, s.InvalidateRole(decision.ScopeProject, "coder"))

	records, err := s.Load(decision.ScopeProject)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "tester", records[0].Key.Role)
}

func TestJSONLStore_InvalidateAll(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(mkRecord("coder", decision.Allow)))
	require.NoError(t, s.InvalidateAll(decision.ScopeProject))

	records, err := s.Load(decision.ScopeProject)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestJSONLStore_MalformedLineSkipped(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(mkRecord("coder", decision.Allow)))

	path := s.verdictPath(decision.ScopeProject, decision.Allow)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := s.Load(decision.ScopeProject)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
