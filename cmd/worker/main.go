// Background worker entry point for LegisGraph.  Consumes extraction jobs
// from Kafka and executes the pipeline for each run: chunking, annotation,
// pattern extraction, merging, canonicalization, and persistence into the
// graph and the search index.  Failed jobs are retried with backoff and
// dead-lettered when the retry budget is exhausted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/LegisGraph/internal/application/extraction"
	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/database/neo4j"
	neorepos "github.com/turtacn/LegisGraph/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/LegisGraph/internal/infrastructure/database/postgres"
	"github.com/turtacn/LegisGraph/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/LegisGraph/internal/infrastructure/database/redis"
	"github.com/turtacn/LegisGraph/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LegisGraph/internal/infrastructure/search/opensearch"
	"github.com/turtacn/LegisGraph/internal/infrastructure/storage/minio"
	"github.com/turtacn/LegisGraph/internal/intelligence/annotate"
	"github.com/turtacn/LegisGraph/internal/intelligence/canonical"
	pipecommon "github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/internal/intelligence/patterns"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
)

// Build metadata, injected via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const (
	defaultHealthPort = 8081
	startupTimeout    = 60 * time.Second
	jobTimeout        = 10 * time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (env-only when empty)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port for the health/metrics endpoint")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, *healthPort); err != nil {
		logger.Error("worker exited", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger, healthPort int) error {
	logger.Info("starting LegisGraph extraction worker",
		logging.String("version", Version),
		logging.String("commit", GitCommit),
		logging.String("group_id", cfg.Kafka.GroupID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	kv := kvLog{base: logger}

	namespace := cfg.Metrics.Namespace
	if namespace == "" {
		namespace = "legisgraph"
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            namespace,
		Subsystem:            "worker",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	appMetrics := prometheus.NewAppMetrics(collector)
	pipeMetrics, err := pipecommon.NewPrometheusExtractionMetrics(collector.Registerer())
	if err != nil {
		return fmt.Errorf("pipeline metrics: %w", err)
	}

	pool, err := postgres.NewConnectionPool(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	docRepo := repositories.NewDocumentRepository(pool, kv)
	runRepo := repositories.NewExtractionRunRepository(pool, kv)

	graphDriver, err := neo4j.NewDriver(cfg.Neo4j, logger)
	if err != nil {
		return fmt.Errorf("neo4j: %w", err)
	}
	defer graphDriver.Close()
	graphRepo := neorepos.NewKnowledgeGraphRepository(graphDriver, cfg.Neo4j.BatchSize, logger)

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	locks := redis.NewLockFactory(redisClient, logger)

	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	osClient, err := opensearch.NewClient(cfg.OpenSearch, logger)
	if err != nil {
		return fmt.Errorf("opensearch: %w", err)
	}
	indexer := opensearch.NewIndexer(osClient, cfg.OpenSearch, logger)
	if err := indexer.EnsureIndexes(startCtx); err != nil {
		return fmt.Errorf("opensearch indexes: %w", err)
	}

	storageClient, err := minio.NewClient(cfg.MinIO, logger)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	if err := storageClient.EnsureBuckets(startCtx); err != nil {
		return fmt.Errorf("minio buckets: %w", err)
	}
	objectStore := minio.NewObjectStore(storageClient, logger)

	var respCache annotate.ResponseCache
	if cfg.Annotation.CacheEnabled {
		respCache = redis.NewAnnotationCache(redisClient, cfg.Redis, logger)
	}
	annotatorCfg := annotate.DefaultClientConfig()
	if cfg.Annotation.ServerURL != "" {
		annotatorCfg.ServerURL = cfg.Annotation.ServerURL
	}
	if cfg.Annotation.Timeout > 0 {
		annotatorCfg.Timeout = cfg.Annotation.Timeout
	}
	if cfg.Annotation.CacheTTL > 0 {
		annotatorCfg.CacheTTL = cfg.Annotation.CacheTTL
	}
	annotator, err := annotate.NewHTTPAnnotator(annotatorCfg, respCache, kv, pipeMetrics)
	if err != nil {
		return fmt.Errorf("annotator: %w", err)
	}

	runService, err := extraction.NewRunService(extraction.RunServiceDeps{
		Documents:       docRepo,
		Runs:            runRepo,
		Graph:           graphRepo,
		Index:           indexer,
		Store:           objectStore,
		Events:          producer,
		Locks:           locks,
		Annotator:       annotator,
		Catalog:         patterns.DefaultCatalog(),
		Aliases:         canonical.NewAliasTable(canonical.DefaultAliasGroups()),
		Logger:          logger,
		Metrics:         appMetrics,
		PipelineMetrics: pipeMetrics,
		DefaultMode:     btypes.ExtractionMode(cfg.Pipeline.Mode),
		MaxChunkChars:   cfg.Pipeline.MaxChunkChars,
		Parallelism:     cfg.Pipeline.Parallelism,
	})
	if err != nil {
		return fmt.Errorf("run service: %w", err)
	}

	retry := kafka.DefaultRetryPolicy()
	if cfg.Worker.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Worker.MaxRetries
	}
	if cfg.Worker.RetryBackoff > 0 {
		retry.InitialBackoff = cfg.Worker.RetryBackoff
	}
	consumer, err := kafka.NewConsumer(cfg.Kafka, []string{kafka.TopicExtractions}, logger,
		kafka.WithRetryPolicy(retry),
		kafka.WithDeadLetterTopic(kafka.TopicExtractionsDLQ),
	)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer consumer.Close()

	consumer.Subscribe(kafka.TopicExtractions, extractionJobHandler(runService, logger))

	healthSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: healthMux(collector.Handler()),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gCtx)
	})
	g.Go(func() error {
		logger.Info("worker health endpoint listening", logging.Int("port", healthPort))
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down worker")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("health endpoint shutdown error", logging.Err(err))
		}
		return consumer.Close()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}

// extractionJobHandler decodes one extraction job message and executes the
// run.  Returned errors trigger the consumer's retry policy; messages that
// exhaust the budget land on the dead letter topic.
func extractionJobHandler(runs extraction.RunService, logger logging.Logger) kafka.Handler {
	return func(ctx context.Context, msg *kafka.Message) error {
		var job btypes.ExtractionJobMessage
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			logger.Error("undecodable extraction job",
				logging.String("topic", msg.Topic),
				logging.Int64("offset", msg.Offset),
				logging.Err(err),
			)
			return err
		}
		if err := job.Validate(); err != nil {
			logger.Error("invalid extraction job",
				logging.String("run_id", string(job.RunID)),
				logging.Err(err),
			)
			return err
		}

		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		run, err := runs.ExecuteRun(jobCtx, job.RunID)
		if err != nil {
			logger.Error("extraction run failed",
				logging.String("run_id", string(job.RunID)),
				logging.Err(err),
			)
			return err
		}

		logger.Info("extraction run processed",
			logging.String("run_id", string(run.ID)),
			logging.String("status", string(run.Status)),
		)
		return nil
	}
}

func healthMux(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", metrics)
	return mux
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
