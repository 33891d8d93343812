// Package embedindex implements the embedding similarity tier (spec §4.E,
// Tier 2b): an approximate nearest-neighbor index in cosine space over
// sentence embeddings, backed by github.com/coder/hnsw — no example repo in
// the corpus imports an ANN library, so this dependency is named rather
// than grounded, per the project's out-of-pack dependency rules (see
// DESIGN.md). The HNSW graph itself is never serialized: it is always
// rebuilt from the entry log, on startup and after each rebuild, matching
// spec §9's codification of "rebuild from log" as the intended behavior.
package embedindex

import (
	"sync"

	"github.com/coder/hnsw"

	"permgate/internal/decision"
	"permgate/internal/obslog"
)

// PendingRebuildThreshold is the fixed pending-buffer size that triggers an
// atomic drain-and-rebuild, per spec §4.E.
const PendingRebuildThreshold = 50

// item pairs an embedding with its decision record, identified by position
// in entries for HNSW node keys.
type item struct {
	vec    []float32
	key    decision.CacheKey
	record decision.Record
}

// Index is the embedding similarity tier: entries + HNSW graph + pending
// buffer, one reader-writer lock over the whole structure (spec §5: the
// embedding model itself sits behind a separate mutex since most
// text-embedding libraries require single-threaded access).
type Index struct {
	mu        sync.RWMutex
	entries   []item
	pending   []item
	graph     *hnsw.Graph[int]
	embedder  Embedder
	embedMu   sync.Mutex
	threshold float64
	log       *obslog.Logger
}

// New creates an Index with the given embedder and similarity threshold
// (default 0.85 per spec). The embedder may be nil to degrade the tier to a
// uniform no-op, per spec §4.E's graceful-degradation requirement.
func New(embedder Embedder, threshold float64) *Index {
	return &Index{
		graph:     newGraph(),
		embedder:  embedder,
		threshold: threshold,
		log:       obslog.New("embedindex"),
	}
}

func newGraph() *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.Distance = cosineDistance
	return g
}

// cosineDistance adapts CosineSimilarity to a distance (1 - cos), the
// convention hnsw.Graph expects for its Distance field.
func cosineDistance(a, b []float32) float32 {
	return float32(1 - CosineSimilarity(a, b))
}

// LoadFrom bulk-embeds and indexes a set of records, e.g. on startup. Embed
// failures are skipped with a warning — never partially present, per the
// spec's invariant on the embedding index's content.
func (idx *Index) LoadFrom(records []decision.Record) {
	if idx.embedder == nil {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, r := range records {
		vec, err := idx.embed(r.Key.SanitizedInput)
		if err != nil {
			idx.log.Warn(r.SessionID, "embedding failed during load, skipping record", map[string]interface{}{"error": err.Error()})
			continue
		}
		idx.entries = append(idx.entries, item{vec: vec, key: r.Key, record: r})
	}
	idx.rebuildLocked()
}

func (idx *Index) embed(text string) ([]float32, error) {
	idx.embedMu.Lock()
	defer idx.embedMu.Unlock()
	return idx.embedder.Embed(text)
}

// Insert embeds record and pushes it onto the pending buffer; once the
// buffer reaches PendingRebuildThreshold it is atomically drained into
// entries and the graph is rebuilt. Degrades to a silent no-op if the
// embedder is nil or embedding fails.
func (idx *Index) Insert(record decision.Record) {
	if idx.embedder == nil {
		return
	}
	vec, err := idx.embed(record.Key.SanitizedInput)
	if err != nil {
		idx.log.Warn(record.SessionID, "embedding failed on insert, skipping record", map[string]interface{}{"error": err.Error()})
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.pending = append(idx.pending, item{vec: vec, key: record.Key, record: record})
	if len(idx.pending) >= PendingRebuildThreshold {
		idx.drainPendingLocked()
		idx.rebuildLocked()
	}
}

func (idx *Index) drainPendingLocked() {
	idx.entries = append(idx.entries, idx.pending...)
	idx.pending = nil
}

// rebuildLocked is O(N) in embeddings and must be called with mu held for
// writing.
func (idx *Index) rebuildLocked() {
	g := newGraph()
	for i, e := range idx.entries {
		g.Add(hnsw.MakeNode(i, e.vec))
	}
	idx.graph = g
}

// Rebuild forces a drain-and-rebuild regardless of pending buffer size,
// used by the "build"/"invalidate" CLI commands.
func (idx *Index) Rebuild() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.drainPendingLocked()
	idx.rebuildLocked()
}

// Match is the outcome of a successful similarity query.
type Match struct {
	Record decision.Record
	Score  float64
}

// Search embeds the query, checks both the HNSW graph and the pending
// buffer, and returns the overall best match above threshold that also
// matches tool and role-or-wildcard. Tri-state policy identical to the
// token-Jaccard tier: a deny match is never returned.
func (idx *Index) Search(sanitizedInput, tool, role string) (Match, bool) {
	if idx.embedder == nil {
		return Match{}, false
	}
	vec, err := idx.embed(sanitizedInput)
	if err != nil {
		idx.log.Warn("", "embedding failed on search, tier yields", map[string]interface{}{"error": err.Error()})
		return Match{}, false
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var best *item
	var bestScore float64

	if len(idx.entries) > 0 {
		k := 8
		if k > len(idx.entries) {
			k = len(idx.entries)
		}
		for _, node := range idx.graph.Search(vec, k) {
			if node.Key < 0 || node.Key >= len(idx.entries) {
				continue
			}
			e := &idx.entries[node.Key]
			if !candidateMatches(e.key, tool, role) {
				continue
			}
			score := CosineSimilarity(vec, e.vec)
			if best == nil || score > bestScore {
				best, bestScore = e, score
			}
		}
	}

	for i := range idx.pending {
		e := &idx.pending[i]
		if !candidateMatches(e.key, tool, role) {
			continue
		}
		score := CosineSimilarity(vec, e.vec)
		if best == nil || score > bestScore {
			best, bestScore = e, score
		}
	}

	if best == nil || bestScore < idx.threshold {
		return Match{}, false
	}
	if best.record.Decision == decision.Deny {
		return Match{}, false
	}
	return Match{Record: best.record, Score: bestScore}, true
}

func candidateMatches(key decision.CacheKey, tool, role string) bool {
	if key.Tool != tool {
		return false
	}
	return key.Role == role || key.Role == decision.WildcardRole
}

// InvalidateRole filters entries (and pending) for role and rebuilds.
func (idx *Index) InvalidateRole(role string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	kept := idx.entries[:0]
	for _, e := range idx.entries {
		if e.key.Role != role {
			kept = append(kept, e)
		}
	}
	idx.entries = kept

	keptPending := idx.pending[:0]
	for _, e := range idx.pending {
		if e.key.Role != role {
			keptPending = append(keptPending, e)
		}
	}
	idx.pending = keptPending
	idx.rebuildLocked()
}

// InvalidateAll clears entries, pending, and graph.
func (idx *Index) InvalidateAll() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = nil
	idx.pending = nil
	idx.graph = newGraph()
}

// Len reports entries+pending count.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries) + len(idx.pending)
}

// SaveIndex and LoadIndex are intentionally no-ops: the HNSW graph is a
// derived cache of the entry log (spec §9), never persisted directly.
func (idx *Index) SaveIndex(string) error { return nil }
func (idx *Index) LoadIndex(string) error { return nil }
