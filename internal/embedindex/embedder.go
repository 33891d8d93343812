package embedindex

import (
	"hash/fnv"
	"math"
)

// Embedder turns sanitized tool input into a fixed-dimension embedding
// vector. The real embedding model is an external collaborator (spec §1
// Non-goals: the core does not train or serve it); Embedder is the seam a
// host process plugs a real model into.
type Embedder interface {
	Embed(text string) ([]float32, error)
}

// HashingEmbedder is the default, dependency-free stand-in: a
// character-trigram hashing embedding, normalized to unit length. It is
// deterministic and good enough to exercise the index's wiring end to end;
// it is not a substitute for a real sentence-embedding model and is
// expected to be swapped out in production via the Embedder interface.
type HashingEmbedder struct {
	Dims int
}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashingEmbedder{Dims: dims}
}

func (h *HashingEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, h.Dims)
	if len(text) == 0 {
		return vec, nil
	}
	runes := []rune(text)
	n := 3
	if len(runes) < n {
		n = len(runes)
	}
	for i := 0; i+n <= len(runes); i++ {
		gram := string(runes[i : i+n])
		hsh := fnv.New32a()
		_, _ = hsh.Write([]byte(gram))
		bucket := int(hsh.Sum32()) % h.Dims
		if bucket < 0 {
			bucket += h.Dims
		}
		vec[bucket]++
	}
	normalize(vec)
	return vec, nil
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors, assumed already normalized or not — it divides by the product of
// norms either way.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
