// Package svcctx provides the service container for dependency injection
// via context. Commands build the container once at startup and extract
// what they need; the package stays free of construction logic to avoid
// import cycles with the components it carries.
package svcctx

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/convlog"
	"github.com/ghostline-ai/ghostline/internal/embedding"
	"github.com/ghostline-ai/ghostline/internal/home"
	"github.com/ghostline-ai/ghostline/internal/ingest"
	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/llm"
	"github.com/ghostline-ai/ghostline/internal/prompts"
	"github.com/ghostline-ai/ghostline/internal/providers"
	"github.com/ghostline-ai/ghostline/internal/retrieval"
	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/tasks"
	"github.com/ghostline-ai/ghostline/internal/workflow"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Home         *home.Dir
	Config       *config.Manager
	Flags        config.Flags
	Store        *store.Store
	Ledger       *ledger.Ledger
	Registry     *providers.Registry
	LLM          *llm.Client
	Embedder     embedding.Engine
	Retriever    *retrieval.Retriever
	Prompts      *prompts.Resolver
	ConvLog      *convlog.Log
	Orchestrator *workflow.Orchestrator
	Runner       *tasks.Runner
	Ingest       *ingest.Service
	Logger       *slog.Logger
}

// Close releases everything the container owns: the task runner drains
// first so in-flight workflows checkpoint before the store goes away.
func (s *Services) Close() error {
	var errs []error
	if s.Runner != nil {
		errs = append(errs, s.Runner.Close())
	}
	if s.ConvLog != nil {
		errs = append(errs, s.ConvLog.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the persistence store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// LedgerFrom extracts the cost ledger from context.
func LedgerFrom(ctx context.Context) *ledger.Ledger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Ledger
	}
	return nil
}

// OrchestratorFrom extracts the workflow orchestrator from context.
func OrchestratorFrom(ctx context.Context) *workflow.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// RunnerFrom extracts the background task runner from context.
func RunnerFrom(ctx context.Context) *tasks.Runner {
	if s := ServicesFrom(ctx); s != nil {
		return s.Runner
	}
	return nil
}

// IngestFrom extracts the source ingest service from context.
func IngestFrom(ctx context.Context) *ingest.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Ingest
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// FlagsFrom extracts the runtime feature flags from context.
func FlagsFrom(ctx context.Context) config.Flags {
	if s := ServicesFrom(ctx); s != nil {
		return s.Flags
	}
	return config.Flags{}
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
