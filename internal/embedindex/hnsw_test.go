package embedindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"permgate/internal/decision"
)

func seed(input, tool, role string, v decision.Verdict) decision.Record {
	return decision.Record{
		Key:       decision.CacheKey{SanitizedInput: input, Tool: tool, Role: role},
		Decision:  v,
		Metadata:  decision.Metadata{Tier: decision.TierHuman, Confidence: 1.0, Reason: "seed"},
		Timestamp: time.Now().UTC(),
		Scope:     decision.ScopeProject,
		SessionID: "s1",
	}
}

func TestIndex_NilEmbedderDegradesToNoMatch(t *testing.T) {
	idx := New(nil, 0.85)
	idx.Insert(seed("cargo build", "Bash", "coder", decision.Allow))
	_, ok := idx.Search("cargo build", "Bash", "coder")
	require.False(t, ok)
}

func TestIndex_InsertAndSearchBeforeRebuild(t *testing.T) {
	idx := New(NewHashingEmbedder(32), 0.5)
	idx.Insert(seed("deploy the staging environment now", "Bash", "coder", decision.Allow))

	m, ok := idx.Search("deploy the staging environment now", "Bash", "coder")
	require.True(t, ok)
	require.Equal(t, decision.Allow, m.Record.Decision)
	require.GreaterOrEqual(t, m.Score, 0.5)
}

func TestIndex_RebuildTriggersAtThreshold(t *testing.T) {
	idx := New(NewHashingEmbedder(32), 0.99)
	for i := 0; i < PendingRebuildThreshold; i++ {
		idx.Insert(seed("filler input number", "Bash", "coder", decision.Allow))
	}
	require.Equal(t, PendingRebuildThreshold, idx.Len())
	require.Empty(t, idx.pending)
}

func TestIndex_DenyNeverAutoApplies(t *testing.T) {
	idx := New(NewHashingEmbedder(32), 0.1)
	idx.Insert(seed("rm -rf /tmp/cache now", "Bash", "coder", decision.Deny))

	_, ok := idx.Search("rm -rf /tmp/cache now", "Bash", "coder")
	require.False(t, ok)
}

func TestIndex_InvalidateRole(t *testing.T) {
	idx := New(NewHashingEmbedder(32), 0.1)
	idx.Insert(seed("a b c", "Bash", "coder", decision.Allow))
	idx.Insert(seed("a b c", "Bash", "tester", decision.Allow))

	idx.InvalidateRole("coder")
	require.Equal(t, 1, idx.Len())
}

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	v := []float32{1, 0, 0}
	require.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}
