// Command pipeline wires every pipeline.md component into one process:
// Cache, RateLimiter, StoreClient, ExtractionProvider, SimilarityMatcher,
// TranscriptProcessor, BatchRunner, and JobQueue, in that order (spec.md
// §9). Flag/env handling, godotenv loading, and the minimal gin health
// endpoint are grounded on cmd/tarsy/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/batch"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/cache"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/config"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/extraction"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/jobqueue"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/jobqueue/pgstore"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/processor"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/ratelimit"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/similarity"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/store"
	"github.com/blackcore-intel/pipeline/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := *configDir + "/.env"
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	logLevel := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cacheEncryptionEnabled := getEnv("CACHE_ENCRYPTION_ENABLED", "false") == "true"
	cfg, err := config.LoadFromEnv(cacheEncryptionEnabled)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue, reaper, closeFns, err := buildJobQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build job queue", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, fn := range closeFns {
			fn()
		}
	}()

	queue.Start(ctx)
	defer queue.Stop()
	reaper.Start(ctx)
	defer reaper.Stop()

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": version.Full(),
			"cache":   cfg.CacheDir,
		})
	})

	logger.Info("pipeline starting", "http_port", httpPort)
	if err := router.Run(":" + httpPort); err != nil {
		logger.Error("http server exited", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildJobQueue constructs Cache -> RateLimiter -> StoreClient ->
// ExtractionProvider -> SimilarityMatcher -> Processor -> BatchRunner ->
// JobQueue, in that order, and returns the ready JobQueue plus any
// resources the caller must close on shutdown.
func buildJobQueue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*jobqueue.Queue, *jobqueue.Reaper, []func(), error) {
	var closeFns []func()

	schemaCache, err := cache.New(cfg.CacheDir, "schema", logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building schema cache: %w", err)
	}

	limiter, closeLimiter := buildLimiter(cfg, logger)
	if closeLimiter != nil {
		closeFns = append(closeFns, closeLimiter)
	}

	storeClient := store.New(getEnv("STORE_BASE_URL", "https://api.store.internal"), cfg.StoreAPIKey, limiter, schemaCache, logger)

	extractor, closeExtractor, err := buildExtractor(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if closeExtractor != nil {
		closeFns = append(closeFns, closeExtractor)
	}

	// The similarity matcher is not held centrally: processor.New takes
	// thresholds via Defaults and builds a Matcher for each entity it
	// deduplicates, so only DefaultSettings needs to be resolved here.
	_ = similarity.New(cfg.DedupHighThreshold, cfg.DedupLowThreshold)

	router := buildRouter()
	defaults := processor.DefaultSettings()
	defaults.DedupHighThreshold = cfg.DedupHighThreshold
	defaults.DedupLowThreshold = cfg.DedupLowThreshold
	defaults.OverwriteConfidence = cfg.OverwriteConfidence

	proc := processor.New(storeClient, extractor, router, defaults, logger)
	runner := batch.New(proc)

	backend, closeBackend, err := buildBackend(ctx, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if closeBackend != nil {
		closeFns = append(closeFns, closeBackend)
	}

	workers, err := strconv.Atoi(getEnv("JOB_QUEUE_WORKERS", "2"))
	if err != nil || workers <= 0 {
		workers = 2
	}
	queue := jobqueue.New(backend, proc, runner, workers, logger)
	reaper := jobqueue.NewReaper(backend, cfg.JobResultTTL, 0, logger)

	return queue, reaper, closeFns, nil
}

// buildLimiter returns a DistributedLimiter when REDIS_URL is set,
// falling back to a process-local Limiter otherwise (spec.md §4.1: the
// rate limit is always enforced, distributed sharing across nodes is an
// operational refinement, not a correctness requirement).
func buildLimiter(cfg *config.Config, logger *slog.Logger) (interface {
	Wait(ctx context.Context) error
}, func()) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return ratelimit.New(cfg.RateLimitRPS), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, falling back to local rate limiter", "error", err)
		return ratelimit.New(cfg.RateLimitRPS), nil
	}
	rdb := redis.NewClient(opts)
	limiter := ratelimit.NewDistributed(rdb, getEnv("STORE_BASE_URL", "store"), cfg.RateLimitRPS, logger)
	return limiter, func() { _ = rdb.Close() }
}

// buildExtractor returns a GRPCProvider when EXTRACTION_GRPC_TARGET is
// set, otherwise a StubProvider (suitable for local development and the
// default docker-compose profile without a live extraction vendor).
func buildExtractor(cfg *config.Config) (extraction.Provider, func(), error) {
	target := os.Getenv("EXTRACTION_GRPC_TARGET")
	if target == "" {
		return extraction.NewStub(200_000), nil, nil
	}
	p, err := extraction.NewGRPCProvider(target, 60*time.Second, 200_000)
	if err != nil {
		return nil, nil, fmt.Errorf("building extraction provider: %w", err)
	}
	return p, func() { _ = p.Close() }, nil
}

// buildRouter maps each entity kind to the document-store database id it
// is written into. Deployments override these via env vars; unset
// entries mean that kind is never written (Processor.Process skips it with
// reason disallowed_kind).
func buildRouter() processor.DatabaseRouter {
	router := processor.DatabaseRouter{}
	add := func(kind models.EntityKind, envVar string) {
		if id := os.Getenv(envVar); id != "" {
			router[kind] = id
		}
	}
	add(models.KindPerson, "DATABASE_ID_PERSON")
	add(models.KindOrganization, "DATABASE_ID_ORGANIZATION")
	add(models.KindTask, "DATABASE_ID_TASK")
	add(models.KindEvent, "DATABASE_ID_EVENT")
	add(models.KindDocument, "DATABASE_ID_DOCUMENT")
	add(models.KindTransgression, "DATABASE_ID_TRANSGRESSION")
	add(models.KindPlace, "DATABASE_ID_PLACE")
	return router
}

// buildBackend returns the PostgresShared backend when JOB_QUEUE_DSN is
// set (multi-node deployment), otherwise an in-process backend suitable
// for a single replica.
func buildBackend(ctx context.Context, logger *slog.Logger) (jobqueue.Backend, func(), error) {
	dsn := os.Getenv("JOB_QUEUE_DSN")
	if dsn == "" {
		logger.Info("job queue backend: in-process")
		return jobqueue.NewInProcess(), nil, nil
	}
	logger.Info("job queue backend: postgres shared")
	s, err := pgstore.Open(ctx, pgstore.Config{DSN: dsn})
	if err != nil {
		return nil, nil, fmt.Errorf("opening postgres job queue backend: %w", err)
	}
	return s, s.Close, nil
}
