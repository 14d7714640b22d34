// Package ledger records every LLM call with token counts, dollar cost, and
// attribution, and answers cost queries over the recorded rows. Costs are
// computed from a static pricing table at record time so a row's cost never
// changes after the fact.
package ledger

import (
	"log/slog"

	"github.com/ghostline-ai/ghostline/internal/store"
)

// Ledger is the append-only LLM usage ledger.
type Ledger struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a ledger backed by the given store.
func New(st *store.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  st,
		logger: logger.With("component", "ledger"),
	}
}
