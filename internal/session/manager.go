package session

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"permgate/internal/obslog"
	"permgate/internal/pathpolicy"
	"permgate/internal/pgerr"
)

// PolicyProvider supplies the role and project configuration a Manager needs
// to compile a Context's path policy. Implemented by internal/config; kept
// as an interface here so session stays decoupled from the YAML loader.
type PolicyProvider interface {
	RolePolicy(role string) (pathpolicy.RawPolicy, bool)
	ProjectSensitivePaths(org, project string) []string
	DefaultRole() string
}

const defaultRegistrationTimeoutSecs = 5
const registrationPollInterval = 200 * time.Millisecond

// Manager resolves, registers, and disables per-session contexts, backed by
// an in-memory map plus the on-disk registration/exclusion files so that
// multiple cooperating processes (a hook process and a supervisor daemon)
// observe the same session state. Grounded on the original implementation's
// SessionManager, replacing its DashMap with a sync.Map.
type Manager struct {
	sessions         sync.Map // sessionID -> *Context
	registrationFile string
	exclusionFile    string
	policy           PolicyProvider
	log              *obslog.Logger
}

// New builds a Manager whose registration/exclusion files live in the
// runtime directory, namespaced by teamID so multiple teams on one host
// don't collide.
func New(teamID string, policy PolicyProvider) *Manager {
	dir := runtimeDir()
	suffix := teamID
	if suffix == "" {
		suffix = "default"
	}
	return &Manager{
		registrationFile: filepath.Join(dir, "permgate-"+suffix+"-sessions.json"),
		exclusionFile:    filepath.Join(dir, "permgate-"+suffix+"-exclusions.json"),
		policy:           policy,
		log:              obslog.New("session-manager"),
	}
}

// runtimeDir resolves XDG_RUNTIME_DIR, falling back to /tmp.
func runtimeDir() string {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return d
	}
	return os.TempDir()
}

// resolveRole determines the role to use for a freshly-seen session: the
// registration file's entry if present, else the env var fallback, else
// the provider's configured default.
func (m *Manager) resolveRole(sessionID string) (string, *RegistrationEntry) {
	entries, err := readRegistrationFile(m.registrationFile)
	if err == nil {
		if e, ok := entries[sessionID]; ok {
			entry := e
			return e.Role, &entry
		}
	}
	if r := os.Getenv("PERMGATE_ROLE"); r != "" {
		return r, nil
	}
	return m.policy.DefaultRole(), nil
}

// isDisabled reports whether sessionID appears in the exclusion file.
func (m *Manager) isDisabled(sessionID string) bool {
	exclusions, err := readExclusionFile(m.exclusionFile)
	if err != nil {
		m.log.ErrorWithErr(sessionID, "read exclusion file", err, nil)
		return false
	}
	for _, id := range exclusions {
		if id == sessionID {
			return true
		}
	}
	return false
}

// GetOrPopulate returns the cached Context for sessionID, building and
// caching one from the registration file, cwd-derived git metadata, and the
// compiled path policy on first touch.
func (m *Manager) GetOrPopulate(sessionID, cwd string) (*Context, error) {
	if v, ok := m.sessions.Load(sessionID); ok {
		ctx := v.(*Context)
		ctx.Disabled = m.isDisabled(sessionID)
		return ctx, nil
	}

	org, project := ExtractGitOrgProject(cwd)
	role, entry := m.resolveRole(sessionID)

	raw, ok := m.policy.RolePolicy(role)
	if !ok {
		return nil, pgerr.New(pgerr.RoleNotFound, "no policy configured for role").WithContext("role", role)
	}
	compiled, err := pathpolicy.Compile(role, raw)
	if err != nil {
		return nil, err
	}
	compiled = compiled.WithSensitivePaths(m.policy.ProjectSensitivePaths(org, project))

	ctx := &Context{
		SessionID:  sessionID,
		User:       Whoami(),
		Org:        org,
		Project:    project,
		Role:       role,
		PathPolicy: compiled,
		Disabled:   m.isDisabled(sessionID),
	}
	if entry != nil {
		ctx.TaskDescription = entry.Task
		ctx.AgentPromptHash = entry.PromptHash
		ctx.AgentPromptPath = entry.PromptPath
		t := entry.RegisteredAt
		ctx.RegisteredAt = &t
	}

	m.sessions.Store(sessionID, ctx)
	return ctx, nil
}

// Register persists a registration entry for sessionID and updates the
// in-memory context immediately so a concurrent GetOrPopulate sees it
// without waiting on the on-disk round trip.
func (m *Manager) Register(sessionID, role, task, promptHash, promptPath string) error {
	now := time.Now().UTC()
	entry := RegistrationEntry{
		Role:         role,
		Task:         task,
		PromptHash:   promptHash,
		PromptPath:   promptPath,
		RegisteredAt: now,
		RegisteredBy: Whoami(),
	}
	if err := writeRegistrationEntry(m.registrationFile, sessionID, entry); err != nil {
		return err
	}
	m.sessions.Delete(sessionID)
	return nil
}

// SwitchRole re-registers sessionID under a new role, discarding its
// compiled context so the next GetOrPopulate recompiles against the new
// role's policy.
func (m *Manager) SwitchRole(sessionID, newRole string) error {
	entries, err := readRegistrationFile(m.registrationFile)
	if err != nil {
		return err
	}
	existing, ok := entries[sessionID]
	if !ok {
		return pgerr.New(pgerr.SessionNotRegistered, "cannot switch role for unregistered session").
			WithContext("session_id", sessionID)
	}
	return m.Register(sessionID, newRole, existing.Task, existing.PromptHash, existing.PromptPath)
}

// Disable adds sessionID to the exclusion file; subsequent cascade turns
// for it short-circuit to allow without consulting any tier, per spec §4.J.
func (m *Manager) Disable(sessionID string) error {
	exclusions, err := readExclusionFile(m.exclusionFile)
	if err != nil {
		return err
	}
	for _, id := range exclusions {
		if id == sessionID {
			return nil
		}
	}
	if err := writeExclusionFile(m.exclusionFile, append(exclusions, sessionID)); err != nil {
		return err
	}
	if v, ok := m.sessions.Load(sessionID); ok {
		v.(*Context).Disabled = true
	}
	return nil
}

// Enable removes sessionID from the exclusion file.
func (m *Manager) Enable(sessionID string) error {
	exclusions, err := readExclusionFile(m.exclusionFile)
	if err != nil {
		return err
	}
	filtered := exclusions[:0]
	for _, id := range exclusions {
		if id != sessionID {
			filtered = append(filtered, id)
		}
	}
	if err := writeExclusionFile(m.exclusionFile, filtered); err != nil {
		return err
	}
	if v, ok := m.sessions.Load(sessionID); ok {
		v.(*Context).Disabled = false
	}
	return nil
}

// IsRegistered reports whether sessionID is resolvable without blocking:
// already populated in memory, persisted to the registration file, disabled
// (an excluded session never needs to register), or resolvable via the
// PERMGATE_ROLE fallback.
func (m *Manager) IsRegistered(sessionID string) bool {
	if _, ok := m.sessions.Load(sessionID); ok {
		return true
	}
	if m.isDisabled(sessionID) {
		return true
	}
	if os.Getenv("PERMGATE_ROLE") != "" {
		return true
	}
	entries, err := readRegistrationFile(m.registrationFile)
	if err != nil {
		return false
	}
	_, ok := entries[sessionID]
	return ok
}

// WaitForRegistration polls the registration file every 200ms until
// sessionID appears or timeoutSecs elapses, for a hook invocation racing an
// agent's own registration call on startup. timeoutSecs <= 0 uses the
// package default of 5 seconds.
func (m *Manager) WaitForRegistration(sessionID string, timeoutSecs int) error {
	if timeoutSecs <= 0 {
		timeoutSecs = defaultRegistrationTimeoutSecs
	}
	deadline := time.Now().Add(time.Duration(timeoutSecs) * time.Second)
	for {
		if m.IsRegistered(sessionID) {
			return nil
		}
		if time.Now().After(deadline) {
			return pgerr.New(pgerr.RegistrationTimeout, "session did not register in time").
				WithContext("session_id", sessionID).
				WithContext("timeout_secs", timeoutSecs)
		}
		time.Sleep(registrationPollInterval)
	}
}
