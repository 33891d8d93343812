package scope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"permgate/internal/decision"
	"permgate/internal/store"
)

func insertAt(t *testing.T, s store.Store, scope decision.Scope, role string, v decision.Verdict) {
	t.Helper()
	require.NoError(t, s.Save(decision.Record{
		Key:       decision.CacheKey{SanitizedInput: "deploy prod", Tool: "Bash", Role: role},
		Decision:  v,
		Metadata:  decision.Metadata{Tier: decision.TierHuman, Confidence: 1.0, Reason: "seed"},
		Timestamp: time.Now().UTC(),
		Scope:     scope,
		SessionID: "s1",
	}))
}

func TestResolve_NoMatchingRecords(t *testing.T) {
	s, err := store.NewJSONLStore(t.TempDir())
	require.NoError(t, err)
	r := New(s)

	_, ok, err := r.Resolve(decision.CacheKey{SanitizedInput: "x", Tool: "Bash", Role: "coder"})
	require.NoError(t, err)
	require.False(t, ok)
}

// Property 6: highest verdict rank wins regardless of scope origin.
func TestResolve_DenyWinsOverAllowAcrossScopes(t *testing.T) {
	s, err := store.NewJSONLStore(t.TempDir())
	require.NoError(t, err)
	insertAt(t, s, decision.ScopeOrg, "coder", decision.Allow)
	insertAt(t, s, decision.ScopeRole, "coder", decision.Deny)

	r := New(s)
	res, ok, err := r.Resolve(decision.CacheKey{SanitizedInput: "deploy prod", Tool: "Bash", Role: "coder"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, decision.Deny, res.Verdict)
}

func TestResolve_TieBreaksNarrowestScopeWins(t *testing.T) {
	s, err := store.NewJSONLStore(t.TempDir())
	require.NoError(t, err)
	insertAt(t, s, decision.ScopeOrg, "coder", decision.Ask)
	insertAt(t, s, decision.ScopeUser, "coder", decision.Ask)

	r := New(s)
	res, ok, err := r.Resolve(decision.CacheKey{SanitizedInput: "deploy prod", Tool: "Bash", Role: "coder"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, decision.ScopeUser, res.Scope)
}

func TestResolve_WildcardRoleMatches(t *testing.T) {
	s, err := store.NewJSONLStore(t.TempDir())
	require.NoError(t, err)
	insertAt(t, s, decision.ScopeProject, decision.WildcardRole, decision.Ask)

	r := New(s)
	res, ok, err := r.Resolve(decision.CacheKey{SanitizedInput: "deploy prod", Tool: "Bash", Role: "tester"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, decision.Ask, res.Verdict)
}

func TestReload_PicksUpNewRecords(t *testing.T) {
	s, err := store.NewJSONLStore(t.TempDir())
	require.NoError(t, err)
	r := New(s)

	_, ok, err := r.Resolve(decision.CacheKey{SanitizedInput: "deploy prod", Tool: "Bash", Role: "coder"})
	require.NoError(t, err)
	require.False(t, ok)

	insertAt(t, s, decision.ScopeOrg, "coder", decision.Deny)
	require.NoError(t, r.Reload())

	res, ok, err := r.Resolve(decision.CacheKey{SanitizedInput: "deploy prod", Tool: "Bash", Role: "coder"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, decision.Deny, res.Verdict)
}
