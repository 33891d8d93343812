// Package scope implements the scope resolver (spec §4.I): merging
// (role, user, project, org) decision records under deny > ask > allow,
// grounded on the original implementation's scope/mod.rs and scope/merge.rs.
package scope

import (
	"sync"

	"permgate/internal/decision"
	"permgate/internal/store"
)

// Resolved pairs an effective verdict with the scope and record it came
// from.
type Resolved struct {
	Verdict decision.Verdict
	Scope   decision.Scope
	Record  decision.Record
}

// Resolver merges records across scopes for a given cache key. It caches
// the scope->records map lazily on first call and exposes an explicit
// Reload, matching spec §4.I.
type Resolver struct {
	backing store.Store

	mu    sync.RWMutex
	cache map[decision.Scope][]decision.Record
}

func New(backing store.Store) *Resolver {
	return &Resolver{backing: backing}
}

func (r *Resolver) ensureCache() error {
	r.mu.RLock()
	populated := r.cache != nil
	r.mu.RUnlock()
	if populated {
		return nil
	}

	m := make(map[decision.Scope][]decision.Record, len(decision.Scopes))
	for _, s := range decision.Scopes {
		records, err := r.backing.Load(s)
		if err != nil {
			return err
		}
		m[s] = records
	}

	r.mu.Lock()
	r.cache = m
	r.mu.Unlock()
	return nil
}

// Reload forces the scope->records cache to repopulate from storage.
func (r *Resolver) Reload() error {
	r.mu.Lock()
	r.cache = nil
	r.mu.Unlock()
	return r.ensureCache()
}

// Resolve merges all records across scopes matching key exactly or with
// key's role replaced by the wildcard. Scopes are checked in order
// role -> user -> project -> org; ties on verdict rank are broken by a
// strict "first found beats current" comparison, so the narrowest scope
// wins ties (see DESIGN.md's resolution of the open scope tie-breaking
// question). Returns (_, false) if no scope has a matching record.
func (r *Resolver) Resolve(key decision.CacheKey) (Resolved, bool, error) {
	if err := r.ensureCache(); err != nil {
		return Resolved{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Resolved
	for _, s := range decision.Scopes {
		for _, rec := range r.cache[s] {
			if !matches(rec.Key, key) {
				continue
			}
			candidate := Resolved{Verdict: rec.Decision, Scope: s, Record: rec}
			if best == nil || candidate.Verdict.Precedence() > best.Verdict.Precedence() {
				best = &candidate
			}
		}
	}

	if best == nil {
		return Resolved{}, false, nil
	}
	return *best, true, nil
}

func matches(recordKey, query decision.CacheKey) bool {
	if recordKey == query {
		return true
	}
	return recordKey.Role == decision.WildcardRole &&
		recordKey.Tool == query.Tool &&
		recordKey.SanitizedInput == query.SanitizedInput
}
