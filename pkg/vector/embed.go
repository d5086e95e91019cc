package vector

import (
	"context"
	"hash/fnv"
	"strings"
)

// HashEmbedder is a deterministic bag-of-words embedder used when no
// embedding provider is configured. Tokens are hashed into a fixed number
// of buckets; similar texts share buckets and score high on cosine.
type HashEmbedder struct {
	Dimensions int
}

// NewHashEmbedder returns an embedder with the given dimensionality.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{Dimensions: dimensions}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.Dimensions)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.Dimensions)]++
	}
	return vec, nil
}
