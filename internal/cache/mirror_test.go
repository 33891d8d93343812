package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"permgate/internal/decision"
)

func newTestMirror(t *testing.T) *RedisMirror {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	m := NewRedisMirror(mr.Addr(), "", 0, time.Minute)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestRedisMirror_PutThenGet(t *testing.T) {
	m := newTestMirror(t)
	key := decision.CacheKey{SanitizedInput: "ls", Tool: "Bash", Role: "coder"}
	rec := decision.Record{Key: key, Decision: decision.Allow, Metadata: decision.Metadata{Tier: decision.TierHuman}}

	m.Put(key, rec)
	got, ok := m.Get(key)
	require.True(t, ok)
	require.Equal(t, decision.Allow, got.Decision)
}

func TestRedisMirror_GetMissReturnsFalse(t *testing.T) {
	m := newTestMirror(t)
	_, ok := m.Get(decision.CacheKey{SanitizedInput: "never put", Tool: "Bash", Role: "coder"})
	require.False(t, ok)
}

func TestRedisMirror_GetOnDeadConnReturnsFalseNotPanic(t *testing.T) {
	m := NewRedisMirror("127.0.0.1:1", "", 0, time.Minute)
	defer m.Close()
	_, ok := m.Get(decision.CacheKey{SanitizedInput: "x", Tool: "Bash", Role: "coder"})
	require.False(t, ok)
}

func TestExactCache_UsesMirrorOnLocalMiss(t *testing.T) {
	m := newTestMirror(t)
	ec := New(m)

	key := decision.CacheKey{SanitizedInput: "docker build .", Tool: "Bash", Role: "coder"}
	// another process wrote this via the mirror; our local map never saw it.
	m.Put(key, decision.Record{Key: key, Decision: decision.Deny, Metadata: decision.Metadata{Tier: decision.TierSupervisor}})

	rec, ok := ec.Get(key)
	require.True(t, ok)
	require.Equal(t, decision.Deny, rec.Decision)
	require.Equal(t, decision.TierExactCache, rec.Metadata.Tier)
}
