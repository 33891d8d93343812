package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"permgate/internal/pathpolicy"
)

type fakePolicyProvider struct {
	policies map[string]pathpolicy.RawPolicy
	sensitive []string
	def      string
}

func (f *fakePolicyProvider) RolePolicy(role string) (pathpolicy.RawPolicy, bool) {
	p, ok := f.policies[role]
	return p, ok
}

func (f *fakePolicyProvider) ProjectSensitivePaths(org, project string) []string {
	return f.sensitive
}

func (f *fakePolicyProvider) DefaultRole() string {
	return f.def
}

func newTestManager(t *testing.T) (*Manager, *fakePolicyProvider) {
	t.Helper()
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	fp := &fakePolicyProvider{
		policies: map[string]pathpolicy.RawPolicy{
			"coder": {AllowWrite: []string{"**/*.go"}, SensitiveAskWrite: []string{"**/.env"}},
		},
		def: "coder",
	}
	return New("team1", fp), fp
}

func TestManager_RegisterThenGetOrPopulate(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Register("s1", "coder", "fix bug", "deadbeef", "/tmp/prompt.txt"))

	ctx, err := m.GetOrPopulate("s1", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "coder", ctx.Role)
	require.Equal(t, "fix bug", ctx.TaskDescription)
	require.False(t, ctx.Disabled)
	require.NotNil(t, ctx.PathPolicy)
}

func TestManager_UnknownRoleFallsBackToDefault(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, err := m.GetOrPopulate("s2", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "coder", ctx.Role)
}

func TestManager_RoleWithoutPolicyErrors(t *testing.T) {
	m, fp := newTestManager(t)
	fp.def = "ghost"
	_, err := m.GetOrPopulate("s3", t.TempDir())
	require.Error(t, err)
}

func TestManager_DisableThenEnable(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Register("s4", "coder", "", "", ""))
	_, err := m.GetOrPopulate("s4", t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Disable("s4"))
	require.True(t, m.isDisabled("s4"))
	ctx, err := m.GetOrPopulate("s4", t.TempDir())
	require.NoError(t, err)
	require.True(t, ctx.Disabled)

	require.NoError(t, m.Enable("s4"))
	require.False(t, m.isDisabled("s4"))
}

func TestManager_SwitchRole(t *testing.T) {
	m, fp := newTestManager(t)
	fp.policies["reviewer"] = pathpolicy.RawPolicy{AllowRead: []string{"**/*"}}
	require.NoError(t, m.Register("s5", "coder", "", "", ""))
	require.NoError(t, m.SwitchRole("s5", "reviewer"))

	ctx, err := m.GetOrPopulate("s5", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "reviewer", ctx.Role)
}

func TestManager_SwitchRoleUnregisteredErrors(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.SwitchRole("ghost-session", "coder")
	require.Error(t, err)
}

func TestManager_WaitForRegistrationTimesOut(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.WaitForRegistration("never-registered", 1)
	require.Error(t, err)
}

func TestManager_WaitForRegistrationSucceedsImmediately(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Register("s6", "coder", "", "", ""))
	require.NoError(t, m.WaitForRegistration("s6", 1))
}

func TestRuntimeDirHonoursEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rt")
	t.Setenv("XDG_RUNTIME_DIR", dir)
	require.Equal(t, dir, runtimeDir())
}
