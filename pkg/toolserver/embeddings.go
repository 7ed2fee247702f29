package toolserver

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"math"

	"github.com/ecomops/opsloop/pkg/llm"
)

// Embedder produces a fixed-dimension vector for a text. The memory tools
// use it for both storage and recall, so the same implementation must serve
// a process for its whole lifetime or similarity scores degrade.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// apiEmbedder calls the configured embeddings API and falls back to the
// deterministic vector when the call fails. The fallback keeps the memory
// tools functional offline; recall quality drops to lexical-identity only
// (the same text always maps to the same vector).
type apiEmbedder struct {
	primary  llm.Embedder
	fallback *deterministicEmbedder
	logger   *slog.Logger
}

// NewEmbedder wraps the given API embedder with the deterministic fallback.
func NewEmbedder(primary llm.Embedder, dimension int) Embedder {
	return &apiEmbedder{
		primary:  primary,
		fallback: &deterministicEmbedder{dim: dimension},
		logger:   slog.With("component", "embedder"),
	}
}

func (e *apiEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := e.primary.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("Embeddings API unavailable, using deterministic fallback", "error", err)
		return e.fallback.Embed(ctx, text)
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out, nil
}

// deterministicEmbedder derives a pseudo-embedding from a sha256 digest
// chain over the text. No semantic structure, but stable across processes.
type deterministicEmbedder struct {
	dim int
}

// NewDeterministicEmbedder returns the offline embedder. Tests and
// installations without an embeddings API use it directly.
func NewDeterministicEmbedder(dimension int) Embedder {
	return &deterministicEmbedder{dim: dimension}
}

func (e *deterministicEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	dim := e.dim
	if dim <= 0 {
		dim = 256
	}

	vec := make([]float64, 0, dim)
	block := sha256.Sum256([]byte(text))
	for len(vec) < dim {
		for _, b := range block {
			if len(vec) == dim {
				break
			}
			vec = append(vec, float64(b)/127.5-1)
		}
		block = sha256.Sum256(block[:])
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// cosineSimilarity returns the cosine of the angle between two vectors, or
// zero when the dimensions disagree or either vector has no magnitude.
// Mismatched dimensions happen when stored vectors predate a config change;
// scoring them zero quietly retires them from recall.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
