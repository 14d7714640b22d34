// Package retrieval finds the source chunks most relevant to a draft query.
// Vector search does the heavy lifting; a coverage-aware rerank spreads the
// picks across source files, and a keyword fallback keeps retrieval alive
// when vector search is unavailable.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/embedding"
	"github.com/ghostline-ai/ghostline/internal/metrics"
	"github.com/ghostline-ai/ghostline/internal/store"
)

// ErrVectorUnavailable reports that the sqlite-vec extension is not loaded.
// Retrieval falls back to keyword overlap when it sees this.
var ErrVectorUnavailable = errors.New("vector search unavailable")

// Result is a ranked set of retrieved chunks.
type Result struct {
	Query  string
	Chunks []store.ChunkMatch
	Mode   string // "vector", "keyword"
}

// Retriever runs retrieval queries against a project's chunks.
type Retriever struct {
	store  *store.Store
	engine embedding.Engine
	cfg    config.RetrievalCfg
	flags  config.Flags
	logger *slog.Logger
}

// New creates a retriever.
func New(st *store.Store, engine embedding.Engine, cfg config.RetrievalCfg, flags config.Flags, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:  st,
		engine: engine,
		cfg:    cfg,
		flags:  flags,
		logger: logger.With("component", "retrieval"),
	}
}

// Retrieve returns the top chunks for a query. Vector search failures fall
// back to keyword overlap so drafting never runs without source context.
func (r *Retriever) Retrieve(ctx context.Context, projectID, query string) (*Result, error) {
	topK := r.cfg.TopK
	if topK <= 0 {
		topK = 20
	}

	matches, err := r.vectorSearch(ctx, projectID, query, topK)
	mode := "vector"
	if err != nil {
		r.logger.Warn("vector search failed, falling back to keyword overlap", "error", err)
		mode = "keyword"
		matches, err = r.keywordSearch(ctx, projectID, query, topK)
		if err != nil {
			metrics.RetrievalTotal.WithLabelValues(mode, "error").Inc()
			return nil, fmt.Errorf("retrieval failed: %w", err)
		}
	}
	metrics.RetrievalTotal.WithLabelValues(mode, "success").Inc()

	if r.flags.RAGRerank && len(matches) > 0 {
		matches = Rerank(query, matches, topK)
	} else if len(matches) > topK {
		matches = matches[:topK]
	}

	return &Result{Query: query, Chunks: matches, Mode: mode}, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, projectID, query string, topK int) ([]store.ChunkMatch, error) {
	if r.engine == nil || !r.store.VectorSearchAvailable() {
		return nil, ErrVectorUnavailable
	}

	start := time.Now()
	qvec, err := r.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if embedding.IsZero(qvec) {
		return nil, fmt.Errorf("query embedded to zero vector")
	}

	// Over-fetch so the rerank has spare candidates to diversify across.
	matches, err := r.store.SearchChunks(ctx, projectID, qvec, topK*2)
	if err != nil {
		return nil, err
	}
	metrics.RetrievalDuration.WithLabelValues("vector").Observe(time.Since(start).Seconds())

	filtered := matches[:0]
	for _, m := range matches {
		if m.Similarity >= r.cfg.SimilarityThreshold {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// keywordSearch scores every chunk by query-token overlap. It is the
// fallback path, so it loads all project chunks rather than using an index.
func (r *Retriever) keywordSearch(ctx context.Context, projectID, query string, topK int) ([]store.ChunkMatch, error) {
	start := time.Now()
	chunks, err := r.store.ListChunks(ctx, projectID)
	if err != nil {
		return nil, err
	}

	qTokens := tokenSet(query)
	if len(qTokens) == 0 {
		return nil, nil
	}

	var matches []store.ChunkMatch
	for _, c := range chunks {
		score := overlapScore(qTokens, c.Content)
		if score <= 0 {
			continue
		}
		matches = append(matches, store.ChunkMatch{Chunk: c, Similarity: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK*2 {
		matches = matches[:topK*2]
	}
	metrics.RetrievalDuration.WithLabelValues("keyword").Observe(time.Since(start).Seconds())
	return matches, nil
}

// tokenSet splits text into normalized tokens.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		set[t] = true
	}
	return set
}

// overlapScore is the fraction of query tokens present in the content.
func overlapScore(qTokens map[string]bool, content string) float64 {
	if len(qTokens) == 0 {
		return 0
	}
	cTokens := tokenSet(content)
	hits := 0
	for t := range qTokens {
		if cTokens[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(qTokens))
}
