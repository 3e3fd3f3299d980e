package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/cache"
	"github.com/ZanzyTHEbar/blind-match/internal/config"
	"github.com/ZanzyTHEbar/blind-match/internal/database"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/llm"
	"github.com/ZanzyTHEbar/blind-match/internal/matching"
	"github.com/ZanzyTHEbar/blind-match/internal/middleware"
	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
	"github.com/ZanzyTHEbar/blind-match/internal/privacy"
	"github.com/ZanzyTHEbar/blind-match/internal/questions"
	"github.com/ZanzyTHEbar/blind-match/internal/ratelimit"
	"github.com/ZanzyTHEbar/blind-match/internal/security"
)

// application holds the long-lived services shared by handlers and jobs.
type application struct {
	cfg     *config.Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	db           *database.DB
	repo         *database.Repository
	participants *database.ParticipantService
	cacheStore   *database.CacheStore

	redis    *ratelimit.RedisClient
	limiter  *ratelimit.RateLimiter
	auth     *security.AdminAuth
	security *security.SecurityMiddleware
	compress *middleware.Compressor

	llm       *llm.Client
	policy    analysis.Policy
	scorer    *analysis.Scorer
	pairs     *cache.PairCache
	memory    *cache.Cache
	runner    *matching.Runner
	questions *questions.Generator
	privacy   *privacy.PrivacyService

	started time.Time
}

// newApplication opens storage and wires every service from cfg.
func newApplication(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*application, error) {
	app := &application{
		cfg:     cfg,
		logger:  logger,
		metrics: monitoring.NewMetrics(),
		started: time.Now(),
	}

	db, err := database.Open(cfg.DatabaseConfig())
	if err != nil {
		return nil, errors.NewConfigurationError("failed to open database", err)
	}
	app.db = db
	app.repo = database.NewRepository(db)

	// A failed ping leaves a disabled client; limits and cache stay in memory.
	app.redis, err = ratelimit.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.SystemLogger("redis_unavailable", err.Error())
	}
	app.limiter = ratelimit.NewRateLimiter(app.redis, cfg.RateLimitConfig(), app.metrics)

	app.auth, err = security.NewAdminAuth(cfg.AuthConfig(), app.limiter, app.metrics, logger)
	if err != nil {
		app.close()
		return nil, err
	}
	app.security = security.NewSecurityMiddleware(cfg.SecurityConfig())
	if cfg.Server.Compression {
		compression := middleware.DefaultCompressionConfig()
		compression.MinSize = cfg.Server.CompressMinSize
		app.compress = middleware.NewCompressor(compression)
	}

	app.policy, err = analysis.NewPolicyStore(cfg.Database.DataDir).Load(cfg.Scoring.Policy)
	if err != nil {
		app.close()
		return nil, errors.NewConfigurationError(fmt.Sprintf("failed to load scoring policy %q", cfg.Scoring.Policy), err)
	}

	app.llm = llm.NewClient(cfg.LLMConfig(), app.metrics, logger)
	app.scorer = analysis.NewScorer(app.policy, llm.NewVibeScorer(app.llm), logger.Logger)

	app.memory = cache.NewCache(cfg.Cache.MemoryTTL)
	var backends []cache.Backend
	if app.redis.IsEnabled() {
		backends = append(backends, cache.NewRedisBackend(app.redis.GetClient(), cfg.Cache.StoreTTL))
	}
	if cfg.Cache.Persist {
		app.cacheStore = database.NewCacheStore(db, cfg.Cache.StoreTTL)
		backends = append(backends, app.cacheStore)
	}
	app.pairs = cache.NewPairCache(app.memory, app.metrics, logger, backends...)

	app.privacy = privacy.NewService(cfg.Privacy.PhoneSalt)
	app.participants = database.NewParticipantService(app.repo, app.privacy, app.pairs)
	app.runner = matching.NewRunner(app.repo, app.scorer, app.pairs, app.metrics, logger, cfg.Scoring.Parallelism)

	var completer questions.Completer
	if app.llm.Enabled() {
		completer = app.llm
	}
	app.questions = questions.NewGenerator(completer, database.NewQuestionStore(db), app.metrics, logger)

	logger.SystemLogger("application_ready", fmt.Sprintf("driver=%s redis=%t ai=%t policy=%s",
		cfg.Database.Driver, app.redis.IsEnabled(), app.llm.Enabled(), cfg.Scoring.Policy))
	return app, nil
}

// close releases external resources. Safe on a partially built application.
func (a *application) close() {
	if a.llm != nil {
		errors.SafeClose(a.llm, "llm client")
	}
	if a.redis != nil {
		errors.SafeClose(a.redis, "redis")
	}
	if a.db != nil {
		errors.SafeClose(a.db, "database")
	}
}
