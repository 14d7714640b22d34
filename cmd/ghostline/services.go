package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ghostline-ai/ghostline/internal/agents"
	"github.com/ghostline-ai/ghostline/internal/chapter"
	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/convlog"
	"github.com/ghostline-ai/ghostline/internal/embedding"
	"github.com/ghostline-ai/ghostline/internal/home"
	"github.com/ghostline-ai/ghostline/internal/ingest"
	"github.com/ghostline-ai/ghostline/internal/ledger"
	"github.com/ghostline-ai/ghostline/internal/llm"
	"github.com/ghostline-ai/ghostline/internal/outline"
	"github.com/ghostline-ai/ghostline/internal/prompts"
	"github.com/ghostline-ai/ghostline/internal/providers"
	"github.com/ghostline-ai/ghostline/internal/retrieval"
	"github.com/ghostline-ai/ghostline/internal/safety"
	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/svcctx"
	"github.com/ghostline-ai/ghostline/internal/tasks"
	"github.com/ghostline-ai/ghostline/internal/voice"
	"github.com/ghostline-ai/ghostline/internal/workflow"
)

// withServices wraps a command handler with the full service container:
// built before the handler runs, attached to its context, closed after.
func withServices(run func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()
		return run(svcctx.WithServices(cmd.Context(), svc), args)
	}
}

// buildServices wires every component from home directory to task runner.
// ctx is the base context for background tasks; cancelling it stops
// in-flight workflow runs at their next checkpoint.
func buildServices(ctx context.Context) (*svcctx.Services, error) {
	logger := slog.Default()

	h, err := home.New(homePath)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	manager, err := config.NewManager(path)
	if err != nil {
		return nil, err
	}
	cfg := manager.Get()
	flags := config.FlagsFromEnv()

	st, err := store.Open(h.DatabasePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	led := ledger.New(st, logger)

	registry := providers.NewRegistryFromConfig(providerConfigs(cfg), logger)
	manager.OnChange(func(next *config.Config) {
		registry.Reload(providerConfigs(next))
	})
	manager.WatchConfig()

	client := llm.New(registry, led, cfg, flags, logger)
	convLog := convlog.New(h.LogsDir(), logger)
	client.AttachConversationLog(convLog)

	embedder, err := embedding.NewFromConfig(cfg.Embedding, led, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	retriever := retrieval.New(st, embedder, cfg.Retrieval, flags, logger)
	resolver := prompts.NewResolver(h.PromptsDir(), logger)

	outlineSub := outline.New(
		agents.NewOutlinePlanner(client, resolver, flags, logger),
		agents.NewOutlineCritic(client, resolver, flags, logger),
		cfg.Outline, logger,
	)
	chapterSub := chapter.New(
		agents.NewContentDrafter(client, resolver, flags, logger),
		agents.NewVoiceEditor(client, resolver, flags, logger),
		agents.NewFactChecker(client, resolver, flags, logger),
		agents.NewCohesionAnalyst(client, resolver, flags, logger),
		voice.NewComparator(embedder, logger),
		cfg.Chapter, cfg.Quality, flags, logger,
	)
	voices := voice.NewBuilder(embedder,
		agents.NewVoiceAnalyst(client, resolver, flags, logger), logger)

	orch, err := workflow.New(workflow.Deps{
		Store:     st,
		Retriever: retriever,
		Embedder:  embedder,
		Ledger:    led,
		Outline:   outlineSub,
		Chapter:   chapterSub,
		Voices:    voices,
		Screener:  safety.NewScreener(flags),
		Config:    cfg,
		Flags:     flags,
		Logger:    logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	runner := tasks.New(ctx, tasks.Deps{
		Store:  st,
		Orch:   orch,
		Logs:   convLog,
		Config: cfg,
		Logger: logger,
	})

	return &svcctx.Services{
		Home:         h,
		Config:       manager,
		Flags:        flags,
		Store:        st,
		Ledger:       led,
		Registry:     registry,
		LLM:          client,
		Embedder:     embedder,
		Retriever:    retriever,
		Prompts:      resolver,
		ConvLog:      convLog,
		Orchestrator: orch,
		Runner:       runner,
		Ingest:       ingest.New(st, h, cfg.Ingest, logger),
		Logger:       logger,
	}, nil
}

// providerConfigs maps the config file's primary/fallback blocks onto
// registry entries keyed by provider type. API keys are resolved here so
// the registry never sees ${ENV_VAR} placeholders.
func providerConfigs(cfg *config.Config) map[string]providers.ClientConfig {
	out := make(map[string]providers.ClientConfig, 2)

	p := cfg.Providers.Primary
	if p.Type != "" {
		out[p.Type] = providers.ClientConfig{
			Type:           p.Type,
			Model:          p.Model,
			APIKey:         cfg.ResolvedPrimaryKey(),
			MaxRetries:     p.MaxRetries,
			TimeoutSeconds: p.TimeoutSeconds,
			Enabled:        p.Enabled,
		}
	}

	f := cfg.Providers.Fallback
	if f.Type != "" && f.Type != p.Type {
		out[f.Type] = providers.ClientConfig{
			Type:           f.Type,
			Model:          f.Model,
			APIKey:         cfg.ResolvedFallbackKey(),
			MaxRetries:     f.MaxRetries,
			TimeoutSeconds: f.TimeoutSeconds,
			Enabled:        f.Enabled,
		}
	}
	return out
}
