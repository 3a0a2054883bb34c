package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/extract"
	"github.com/sells-group/copper-cli/internal/ingest"
	"github.com/sells-group/copper-cli/internal/insight"
	"github.com/sells-group/copper-cli/internal/model"
	"github.com/sells-group/copper-cli/internal/monitoring"
	"github.com/sells-group/copper-cli/internal/quote"
	"github.com/sells-group/copper-cli/internal/resilience"
	"github.com/sells-group/copper-cli/internal/store"
	anthropicpkg "github.com/sells-group/copper-cli/pkg/anthropic"
	"github.com/sells-group/copper-cli/pkg/perplexity"
)

// ingestEnv holds the store, the orchestrator, and the monitoring pieces
// shared by every command.
type ingestEnv struct {
	Store        store.Store
	Orchestrator *ingest.Orchestrator
	Alerter      *monitoring.Alerter
	Collector    *monitoring.Collector
	Location     *time.Location
}

// Close waits for background work and releases the store.
func (e *ingestEnv) Close() {
	if e.Orchestrator != nil {
		e.Orchestrator.Wait()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the store, loads the history, and builds the orchestrator.
// mode is passed to Config.Validate; only "ingest" and "serve" wire the AI
// clients, so offline commands run without API keys. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string) (*ingestEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	loc, err := loadLocation(cfg.Ingest.Timezone)
	if err != nil {
		return nil, err
	}

	materials := cfg.Materials
	if len(materials) == 0 {
		materials = model.DefaultMaterials()
	}

	st, err := store.Open(ctx, cfg.Store, materials[0])
	if err != nil {
		return nil, err
	}

	alerter := monitoring.NewAlerter(cfg.Monitoring)
	deps := ingest.Deps{
		Store:     st,
		Extractor: extract.New(extract.Bounds{Min: cfg.Ingest.MinPrice, Max: cfg.Ingest.MaxPrice}, extract.DefaultUnit),
		Notifier:  alerter,
	}

	if mode == "ingest" || mode == "serve" {
		var anthropicOpts []anthropicpkg.Option
		if cfg.Anthropic.BaseURL != "" {
			anthropicOpts = append(anthropicOpts, anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key, anthropicOpts...)
		perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		timeout := time.Duration(cfg.Ingest.FetchTimeoutSecs) * time.Second

		deps.Fetcher = quote.NewAIFetcher(perplexityClient, anthropicClient, quote.Options{
			SearchModel:       cfg.Perplexity.Model,
			SearchDomains:     cfg.Perplexity.SearchDomains,
			CleanupModel:      cfg.Anthropic.HaikuModel,
			Timeout:           timeout,
			RequestsPerMinute: cfg.Ingest.RequestsPerMinute,
		})
		deps.Insight = &insight.Generator{
			AI:           anthropicClient,
			Search:       perplexityClient,
			InsightModel: cfg.Anthropic.SonnetModel,
			SearchModel:  cfg.Perplexity.Model,
			Timeout:      timeout,
		}
	}

	orch := ingest.New(deps, ingest.Config{
		Materials: materials,
		Retry: resilience.FromConfig(
			cfg.Ingest.MaxAttempts,
			time.Duration(cfg.Ingest.RetryDelaySecs)*time.Second,
			cfg.Ingest.ExponentialBackoff,
		),
		Cooldown:      time.Duration(cfg.Ingest.CooldownSecs) * time.Second,
		Location:      loc,
		BackfillWeeks: cfg.Ingest.BackfillWeeks,
		SkipExisting:  cfg.Ingest.SkipExisting,
		Insights:      cfg.Ingest.Insights,
	})
	if err := orch.Load(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	zap.L().Debug("environment ready",
		zap.String("mode", mode),
		zap.String("driver", cfg.Store.Driver),
		zap.Int("materials", len(model.ActiveMaterials(materials))),
	)

	return &ingestEnv{
		Store:        st,
		Orchestrator: orch,
		Alerter:      alerter,
		Collector:    monitoring.NewCollector(st, materials, loc),
		Location:     loc,
	}, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, eris.Wrapf(err, "load timezone %q", name)
	}
	return loc, nil
}
