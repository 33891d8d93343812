// Package session implements session context resolution (spec §4.J):
// per-session role binding, disabled flag, and compiled path policy,
// grounded on the original implementation's session module (SessionContext,
// SessionManager, the registration/exclusion file atomics) reworked with
// Go's sync.Map in place of a DashMap and golang.org/x/sys/unix.Flock in
// place of libc::flock.
package session

import (
	"time"

	"permgate/internal/pathpolicy"
)

// Context is the in-memory, per-session state populated on first touch.
type Context struct {
	SessionID       string
	User            string
	Org             string
	Project         string
	Team            string
	Role            string
	PathPolicy      *pathpolicy.Compiled
	AgentPromptHash string
	AgentPromptPath string
	TaskDescription string
	RegisteredAt    *time.Time
	Disabled        bool
}

// NewMinimal builds a bare context with no role or policy resolved yet,
// e.g. for a session the registry has never seen and no fallback resolved.
func NewMinimal(sessionID, user, org, project string) *Context {
	return &Context{SessionID: sessionID, User: user, Org: org, Project: project}
}
