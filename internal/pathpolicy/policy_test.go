package pathpolicy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"permgate/internal/decision"
)

func coderPolicy(t *testing.T) *Compiled {
	t.Helper()
	c, err := Compile("coder", RawPolicy{
		AllowWrite:        []string{"src/**", "internal/**"},
		DenyWrite:         []string{"**/*.key", "/etc/**"},
		AllowRead:         []string{"**"},
		SensitiveAskWrite: []string{".env*", "**/secrets/**"},
	})
	require.NoError(t, err)
	return c
}

func TestEvaluate_DenyWinsOverSensitive(t *testing.T) {
	c := coderPolicy(t)
	v, reason, ok := c.Evaluate("Write", "prod.key")
	require.True(t, ok)
	require.Equal(t, decision.Deny, v)
	require.Contains(t, reason, "deny_write")
}

// S5: sensitive path -> ask.
func TestEvaluate_S5_SensitivePathAsks(t *testing.T) {
	c := coderPolicy(t)
	v, reason, ok := c.Evaluate("Write", ".env")
	require.True(t, ok)
	require.Equal(t, decision.Ask, v)
	require.Equal(t, "sensitive path default", reason)
}

func TestEvaluate_AllowWriteMatch(t *testing.T) {
	c := coderPolicy(t)
	v, _, ok := c.Evaluate("Write", "src/main.go")
	require.True(t, ok)
	require.Equal(t, decision.Allow, v)
}

func TestEvaluate_NoMatchFallsThrough(t *testing.T) {
	c := coderPolicy(t)
	_, _, ok := c.Evaluate("Write", "docs/readme.md")
	require.False(t, ok)
}

func TestEvaluate_GeneralToolBypasses(t *testing.T) {
	c := coderPolicy(t)
	_, _, ok := c.Evaluate("Bash", ".env")
	require.False(t, ok)
}

func TestEvaluate_ReadUsesAllowRead(t *testing.T) {
	c := coderPolicy(t)
	v, _, ok := c.Evaluate("Read", "anything/at/all.go")
	require.True(t, ok)
	require.Equal(t, decision.Allow, v)
}

func TestCompile_InvalidGlobRejected(t *testing.T) {
	_, err := Compile("coder", RawPolicy{AllowWrite: []string{"["}})
	require.Error(t, err)
}

func TestWithSensitivePaths_Joins(t *testing.T) {
	c := coderPolicy(t)
	joined := c.WithSensitivePaths([]string{"**/*.pem"})
	v, _, ok := joined.Evaluate("Write", "certs/site.pem")
	require.True(t, ok)
	require.Equal(t, decision.Ask, v)
}
