package cascade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"permgate/internal/cache"
	"permgate/internal/decision"
	"permgate/internal/embedindex"
	"permgate/internal/humanqueue"
	"permgate/internal/pathpolicy"
	"permgate/internal/scope"
	"permgate/internal/session"
	"permgate/internal/store"
	"permgate/internal/tokenindex"
)

type fakePolicyProvider struct {
	policies map[string]pathpolicy.RawPolicy
}

func (f *fakePolicyProvider) RolePolicy(role string) (pathpolicy.RawPolicy, bool) {
	p, ok := f.policies[role]
	return p, ok
}
func (f *fakePolicyProvider) ProjectSensitivePaths(org, project string) []string { return nil }
func (f *fakePolicyProvider) DefaultRole() string                               { return "coder" }

type testEngine struct {
	engine *Engine
	store  store.Store
	queue  *humanqueue.Queue
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	policy := &fakePolicyProvider{policies: map[string]pathpolicy.RawPolicy{
		"coder": {
			DenyWrite:         []string{"**/*.prod.yaml"},
			SensitiveAskWrite: []string{"**/.env"},
			AllowWrite:        []string{"**/*.go"},
		},
	}}
	sessions := session.New("test-team", policy)
	require.NoError(t, sessions.Register("s1", "coder", "", "", ""))

	st, err := store.NewJSONLStore(t.TempDir())
	require.NoError(t, err)

	resolver := scope.New(st)
	exact := cache.New(nil)
	tokens := tokenindex.New(0.70, 3)
	embeds := embedindex.New(nil, 0.85)
	queue, err := humanqueue.New(t.TempDir())
	require.NoError(t, err)

	eng := New(sessions, resolver, exact, tokens, embeds, nil, queue, st)
	eng.HumanTimeoutSecs = 1
	eng.RegistrationTimeoutSecs = 1

	return &testEngine{engine: eng, store: st, queue: queue}
}

func TestEvaluate_PathPolicyDenyShortCircuits(t *testing.T) {
	te := newTestEngine(t)
	rec, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "s1", Tool: "Write", ToolInput: "edit it", FilePath: "app.prod.yaml", Cwd: t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, decision.Deny, rec.Decision)
	require.Equal(t, decision.TierPathPolicy, rec.Metadata.Tier)
}

func TestEvaluate_SensitivePathAsks(t *testing.T) {
	te := newTestEngine(t)
	rec, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "s1", Tool: "Write", ToolInput: "edit it", FilePath: "config/.env", Cwd: t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, decision.Ask, rec.Decision)
	require.Equal(t, decision.TierSensitivePath, rec.Metadata.Tier)
}

func TestEvaluate_DisabledSessionAllowsUnconditionally(t *testing.T) {
	te := newTestEngine(t)
	require.NoError(t, te.engine.Sessions.Disable("s1"))

	rec, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "s1", Tool: "Bash", ToolInput: "rm -rf /", Cwd: t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, decision.Allow, rec.Decision)
}

func TestEvaluate_RegistrationTimeoutErrors(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "never-registered", Tool: "Bash", ToolInput: "ls", Cwd: t.TempDir(),
	})
	require.Error(t, err)
}

func TestEvaluate_ExactCacheHitBypassesTierWork(t *testing.T) {
	te := newTestEngine(t)
	key := decision.CacheKey{SanitizedInput: "docker build .", Tool: "Bash", Role: "coder"}
	te.engine.ExactCache.Put(decision.Record{
		Key: key, Decision: decision.Allow,
		Metadata: decision.Metadata{Tier: decision.TierHuman, Confidence: 1.0, Reason: "previously approved"},
	})

	rec, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "s1", Tool: "Bash", ToolInput: "docker build .", Cwd: t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, decision.Allow, rec.Decision)
	require.Equal(t, decision.TierExactCache, rec.Metadata.Tier)
}

func TestEvaluate_TokenJaccardHitPreservesProducerTier(t *testing.T) {
	te := newTestEngine(t)
	te.engine.TokenIndex.Insert(decision.Record{
		Key:      decision.CacheKey{SanitizedInput: "cargo build --release", Tool: "Bash", Role: "coder"},
		Decision: decision.Allow,
		Metadata: decision.Metadata{Tier: decision.TierHuman, Confidence: 1.0, Reason: "prior approval"},
	})

	rec, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "s1", Tool: "Bash", ToolInput: "cargo build --release --target x86_64", Cwd: t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, decision.Allow, rec.Decision)
	require.Equal(t, decision.TierHuman, rec.Metadata.Tier, "similarity tiers must preserve the original producer tier")
	require.NotNil(t, rec.Metadata.SimilarityScore)
}

func TestEvaluate_ScopeResolveHit(t *testing.T) {
	te := newTestEngine(t)
	require.NoError(t, te.store.Save(decision.Record{
		Key:       decision.CacheKey{SanitizedInput: "deploy prod", Tool: "Bash", Role: "coder"},
		Decision:  decision.Deny,
		Metadata:  decision.Metadata{Tier: decision.TierOverride, Confidence: 1.0, Reason: "org policy"},
		Timestamp: time.Now().UTC(),
		Scope:     decision.ScopeOrg,
	}))

	rec, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "s1", Tool: "Bash", ToolInput: "deploy prod", Cwd: t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, decision.Deny, rec.Decision)
}

func TestEvaluate_NoSupervisorFallsToHumanQueue(t *testing.T) {
	te := newTestEngine(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.Eventually(t, func() bool {
			pending, err := te.queue.List()
			return err == nil && len(pending) == 1
		}, 2*time.Second, 10*time.Millisecond)
		pending, _ := te.queue.List()
		require.NoError(t, te.queue.Reply(pending[0].ID, humanqueue.Reply{Verdict: decision.Allow}))
	}()

	rec, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "s1", Tool: "Bash", ToolInput: "totally novel command never seen before", Cwd: t.TempDir(),
	})
	<-done
	require.NoError(t, err)
	require.Equal(t, decision.Allow, rec.Decision)
	require.Equal(t, decision.TierHuman, rec.Metadata.Tier)
}

func TestEvaluate_HumanTimeoutErrors(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "s1", Tool: "Bash", ToolInput: "another totally novel command", Cwd: t.TempDir(),
	})
	require.Error(t, err)
}

func TestEvaluate_HumanAddRulePersistsAtRuleScope(t *testing.T) {
	te := newTestEngine(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.Eventually(t, func() bool {
			pending, err := te.queue.List()
			return err == nil && len(pending) == 1
		}, 2*time.Second, 10*time.Millisecond)
		pending, _ := te.queue.List()
		require.NoError(t, te.queue.Reply(pending[0].ID, humanqueue.Reply{
			Verdict: decision.Allow, AddRule: true, RuleScope: decision.ScopeUser,
		}))
	}()

	rec, err := te.engine.Evaluate(context.Background(), Request{
		SessionID: "s1", Tool: "Bash", ToolInput: "yet another novel command", Cwd: t.TempDir(),
	})
	<-done
	require.NoError(t, err)
	require.Equal(t, decision.Allow, rec.Decision)

	stored, err := te.store.Load(decision.ScopeUser)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}
