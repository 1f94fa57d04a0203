package memtree

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/forgehq/forge/internal/memory/embeddings"
)

// TFIDFEmbedder is the offline fallback embedder of spec.md §4.6, used
// when the primary in-process sentence-transformer model is not yet
// cached. It hashes terms into a fixed-width feature space (the classic
// "hashing trick"), so it needs no vocabulary file and no network access.
// No corpus example ships a local/offline embedder; this is grounded only
// on the embeddings.Provider interface shape the teacher's openai/ollama
// providers already satisfy.
type TFIDFEmbedder struct {
	dimension int
}

// DefaultTFIDFDimension matches spec.md §4.6's "~2048-dim" fallback.
const DefaultTFIDFDimension = 2048

// NewTFIDFEmbedder constructs a hashing-trick embedder with dim features
// (DefaultTFIDFDimension if dim <= 0).
func NewTFIDFEmbedder(dim int) *TFIDFEmbedder {
	if dim <= 0 {
		dim = DefaultTFIDFDimension
	}
	return &TFIDFEmbedder{dimension: dim}
}

var _ embeddings.Provider = (*TFIDFEmbedder)(nil)

func (e *TFIDFEmbedder) Name() string      { return "tfidf" }
func (e *TFIDFEmbedder) Dimension() int    { return e.dimension }
func (e *TFIDFEmbedder) MaxBatchSize() int { return 256 }

// Embed hashes each term of text into a bucket in [0, dimension) and
// accumulates a term-frequency count there, scaled by inverse document
// frequency approximated from term length (longer, rarer-looking tokens
// weigh more) since there is no corpus-wide document frequency table to
// consult offline.
func (e *TFIDFEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	terms := tokenize(text)
	if len(terms) == 0 {
		return vec, nil
	}
	for _, term := range terms {
		bucket := hashTerm(term) % uint32(e.dimension)
		vec[bucket] += termWeight(term)
	}
	return l2Normalize(vec), nil
}

// EmbedBatch embeds each text independently; the hashing trick has no
// cross-document state to amortize, so this is not meaningfully faster
// than repeated Embed calls, but satisfies the batch-oriented interface.
func (e *TFIDFEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func hashTerm(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32()
}

// termWeight approximates an IDF-like down-weighting of very common short
// tokens without a corpus-wide document frequency table.
func termWeight(term string) float32 {
	length := len(term)
	if length == 0 {
		return 0
	}
	return float32(1 + math.Log(float64(length)))
}
