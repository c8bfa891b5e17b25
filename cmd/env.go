package main

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/aicache"
	"github.com/sells-group/sheets-crm/internal/company"
	"github.com/sells-group/sheets-crm/internal/db"
	"github.com/sells-group/sheets-crm/internal/enrich"
	"github.com/sells-group/sheets-crm/internal/importer"
	"github.com/sells-group/sheets-crm/internal/jobs"
	"github.com/sells-group/sheets-crm/internal/llm"
	"github.com/sells-group/sheets-crm/internal/record"
	"github.com/sells-group/sheets-crm/internal/research"
	"github.com/sells-group/sheets-crm/internal/snippet"
	"github.com/sells-group/sheets-crm/pkg/perplexity"
)

// appEnv holds the pool, stores and services shared by the commands.
type appEnv struct {
	Pool      *pgxpool.Pool
	Records   *record.PostgresStore
	Companies *company.PostgresStore
	Deduper   *company.Deduper
	Jobs      *jobs.PostgresStore
	Enqueuer  *jobs.Enqueuer
	Snippets  *snippet.PostgresStore
	Importer  *importer.Importer
	Enrich    *enrich.Service
	Runner    *jobs.Runner
	Research  *research.Service

	closers []func() error
}

// Close releases the pool and any cache handles.
func (e *appEnv) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// openPool validates cfg for mode, connects and applies migrations.
func openPool(ctx context.Context, mode string) (*pgxpool.Pool, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, db.PoolConfig{MaxConns: cfg.Store.MaxConns})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "migrate")
	}
	return pool, nil
}

// initApp wires every store and service. AI providers without keys are
// left nil; their steps report not-configured at call time.
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	pool, err := openPool(ctx, mode)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Pool: pool}

	env.Records = record.NewPostgresStore(pool)
	env.Companies = company.NewPostgresStore(pool)
	env.Deduper = company.NewDeduper(pool)
	env.Jobs = jobs.NewPostgresStore(pool)
	env.Enqueuer = jobs.NewEnqueuer(env.Records, env.Jobs)
	env.Snippets = snippet.NewPostgresStore(pool)
	env.Importer = importer.New(env.Records, company.NewResolver(env.Companies, env.Records))

	cache, err := initCache(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	provider := initLLM()
	search := initPerplexity()

	env.Enrich = enrich.NewService(env.Records, enrich.Config{
		LLM:         provider,
		Research:    search,
		Cache:       cache,
		StepTimeout: cfg.Jobs.StepTimeout(),
	})
	env.Runner = jobs.NewRunner(env.Jobs, env.Enrich, jobs.RunnerConfig{
		MinDelay:         cfg.Jobs.MinDelay(),
		RateLimitBackoff: time.Duration(cfg.Jobs.RateLimitBackoffSecs) * time.Second,
		AuthBackoff:      time.Duration(cfg.Jobs.AuthBackoffHours) * time.Hour,
		MaxBatch:         cfg.Jobs.MaxBatch,
		DefaultBatch:     cfg.Jobs.DefaultBatch,
	})
	env.Research = research.NewService(research.Config{
		Search:    search,
		LLM:       provider,
		Cache:     cache,
		Companies: env.Companies,
		Records:   env.Records,
		Jobs:      env.Enqueuer,
		Timeout:   cfg.Jobs.StepTimeout(),
	})

	return env, nil
}

func initCache(ctx context.Context, env *appEnv) (aicache.Cache, error) {
	switch cfg.AICache.Driver {
	case "sqlite":
		c, err := aicache.NewSQLite(ctx, cfg.AICache.SQLitePath)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, c.Close)
		zap.L().Info("ai cache using sqlite", zap.String("path", cfg.AICache.SQLitePath))
		return c, nil
	default:
		return aicache.NewPostgres(env.Pool), nil
	}
}

func initLLM() llm.Provider {
	p, err := llm.New(llm.Config{
		Provider:       cfg.LLM.Provider,
		OpenAIKey:      cfg.OpenAI.Key,
		OpenAIModel:    cfg.OpenAI.Model,
		OpenAIBaseURL:  cfg.OpenAI.BaseURL,
		AnthropicKey:   cfg.Anthropic.Key,
		AnthropicModel: cfg.Anthropic.Model,
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			zap.L().Warn("llm provider not configured, AI steps disabled", zap.String("provider", cfg.LLM.Provider))
		} else {
			zap.L().Error("llm provider init failed", zap.Error(err))
		}
		return nil
	}
	return p
}

func initPerplexity() perplexity.Client {
	if cfg.Perplexity.Key == "" {
		zap.L().Debug("CRM_PERPLEXITY_KEY not set, research steps disabled")
		return nil
	}
	return perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)
}
