package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alem-hub/study-buddy/config"
	"github.com/alem-hub/study-buddy/internal/application/command"
	"github.com/alem-hub/study-buddy/internal/application/query"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/infrastructure/external/llm"
	"github.com/alem-hub/study-buddy/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/study-buddy/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// app holds the connected infrastructure and the handlers built on it.
type app struct {
	cfg *config.Config
	log *logger.Logger

	db    *postgres.Connection
	cache *redis.Cache      // nil when Redis is disabled or unreachable
	llm   *llm.OpenAIClient // nil without an API key

	findCandidates    *query.FindCandidatesHandler
	rankMatches       *query.RankMatchesHandler
	calculate         *query.CalculateCompatibilityHandler
	analyze           *query.AnalyzeCompatibilityHandler
	listMatches       *query.ListMatchesHandler
	suggestMatch      *command.SuggestMatchHandler
	respondToMatch    *command.RespondToMatchHandler
	updatePreferences *command.UpdatePreferencesHandler
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: logger.ParseFormat(cfg.Observability.LogFormat),
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
	return cfg, log, nil
}

func connectDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.MaxConns = int32(cfg.Database.MaxConns)
	dbCfg.MinConns = int32(cfg.Database.MinConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	conn, err := postgres.NewConnection(ctx, dbCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}

// connectCache returns nil when Redis is disabled or down. The service then
// runs without the AI cache and the AI rate limit.
func connectCache(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Cache {
	if cfg.Redis.Disabled {
		log.Info("redis disabled, AI cache and rate limit are off")
		return nil
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := redis.NewCache(ctx, redisCfg)
	if err != nil {
		log.Warn("failed to connect to redis, continuing without it", logger.Err(err))
		return nil
	}
	log.Info("redis connection established", logger.String("addr", redisCfg.Addr()))
	return cache
}

func newLLMClient(cfg *config.Config, log *logger.Logger) *llm.OpenAIClient {
	if !cfg.LLM.Enabled() {
		log.Info("LLM_API_KEY not set, AI analysis degrades to unavailable")
		return nil
	}

	clientCfg := llm.DefaultClientConfig()
	clientCfg.APIKey = cfg.LLM.APIKey
	clientCfg.BaseURL = cfg.LLM.BaseURL
	clientCfg.Model = cfg.LLM.Model
	clientCfg.MaxTokens = cfg.LLM.MaxTokens
	clientCfg.Temperature = float32(cfg.LLM.Temperature)
	clientCfg.RequestTimeout = cfg.LLM.RequestTimeout
	clientCfg.MaxAttempts = cfg.LLM.MaxRetries
	clientCfg.BreakerFailureThreshold = cfg.LLM.CircuitBreakerThreshold
	clientCfg.BreakerTimeout = cfg.LLM.CircuitBreakerTimeout
	clientCfg.BreakerHalfOpenMax = cfg.LLM.CircuitBreakerHalfOpenMax

	return llm.NewOpenAIClient(clientCfg, log)
}

// newApp connects to the stores and builds every handler.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	db, err := connectDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db}
	a.cache = connectCache(ctx, cfg, log)

	students := postgres.NewStudentRepository(db)
	preferences := postgres.NewPreferencesRepository(db)
	matches := postgres.NewMatchRepository(db)

	var (
		analysisCache social.AnalysisCache
		limiter       query.RateLimiter
	)
	if a.cache != nil {
		analysisCache = redis.NewAnalysisCache(a.cache, cfg.Matching.AICacheTTL)
		limiter = redis.NewRateLimiter(a.cache, "ai_analysis", cfg.Matching.AIRateLimit, cfg.Matching.AIRateLimitWindow)
	}
	var analyzer social.CompatibilityAnalyzer
	if a.llm = newLLMClient(cfg, log); a.llm != nil {
		analyzer = llm.NewAnalyzer(a.llm, cfg.LLM.Timeout, log)
	}

	settings := query.Settings{
		MinScore:          cfg.Matching.MinScore,
		DefaultLimit:      cfg.Matching.DefaultLimit,
		MaxLimit:          cfg.Matching.MaxLimit,
		EnrichConcurrency: cfg.Matching.EnrichConcurrency,
		AIConcurrency:     cfg.Matching.AIConcurrency,
	}

	a.findCandidates = query.NewFindCandidatesHandler(query.FindCandidatesDeps{
		Profiles:      students,
		Preferences:   preferences,
		Activity:      students,
		Pool:          students,
		Matches:       matches,
		Analyzer:      analyzer,
		AnalysisCache: analysisCache,
		AIToggle:      cfg.Features.Toggle(config.FeatureMatchingAIEnrichment),
		Settings:      settings,
		Logger:        log,
	})
	a.rankMatches = query.NewRankMatchesHandler(students, preferences, students, settings, nil, log)
	a.calculate = query.NewCalculateCompatibilityHandler(students, preferences, students, nil, log)
	a.analyze = query.NewAnalyzeCompatibilityHandler(query.AnalyzeCompatibilityDeps{
		Profiles:    students,
		Preferences: preferences,
		Activity:    students,
		Analyzer:    analyzer,
		Cache:       analysisCache,
		Limiter:     limiter,
		Toggle:      cfg.Features.Toggle(config.FeatureMatchingAIAnalysis),
		Logger:      log,
	})
	a.listMatches = query.NewListMatchesHandler(matches)
	a.suggestMatch = command.NewSuggestMatchHandler(a.calculate, matches, nil, log)
	a.respondToMatch = command.NewRespondToMatchHandler(matches, nil, log)
	a.updatePreferences = command.NewUpdatePreferencesHandler(preferences, nil, log)

	return a, nil
}

// Close releases connections.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("failed to close redis", logger.Err(err))
		}
	}
	a.db.Close()
}
