package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const localDefaultDims = 256

// LocalEngine is a deterministic, dependency-free embedding backend: a
// hashed bag-of-words projected into a fixed-dimension unit vector. It is
// not semantically strong, but it is stable across runs, needs no network,
// and keeps ingest and retrieval working offline.
type LocalEngine struct {
	dims int
}

// NewLocalEngine creates a local engine with the given output size.
func NewLocalEngine(dims int) *LocalEngine {
	if dims <= 0 {
		dims = localDefaultDims
	}
	return &LocalEngine{dims: dims}
}

// Name returns the engine identifier.
func (e *LocalEngine) Name() string { return "local" }

// Dimensions returns the output vector size.
func (e *LocalEngine) Dimensions() int { return e.dims }

// Embed returns the hashed bag-of-words vector for one text.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dims)
	words := tokenize(text)
	if len(words) == 0 {
		return v, nil
	}

	for i, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		v[h.Sum64()%uint64(e.dims)]++

		// Mix in bigrams so nearby word order matters a little.
		if i+1 < len(words) {
			h = fnv.New64a()
			h.Write([]byte(w + " " + words[i+1]))
			v[h.Sum64()%uint64(e.dims)] += 0.5
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v, nil
}

// EmbedBatch embeds each text in input order.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
