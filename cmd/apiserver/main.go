// API server entry point for LegisGraph.  Wires configuration, storage,
// messaging, the extraction pipeline, and the HTTP/gRPC surfaces together,
// then runs until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/LegisGraph/internal/application/extraction"
	"github.com/turtacn/LegisGraph/internal/application/query"
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
	grpcserver "github.com/turtacn/LegisGraph/internal/interfaces/grpc"
	httpserver "github.com/turtacn/LegisGraph/internal/interfaces/http"
	"github.com/turtacn/LegisGraph/internal/interfaces/http/handlers"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
)

// Build metadata, injected via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const startupTimeout = 60 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (env-only when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logConfig(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	logger.Info("starting LegisGraph API server",
		logging.String("version", Version),
		logging.String("commit", GitCommit),
		logging.Int("http_port", cfg.Server.Port),
		logging.Int("grpc_port", cfg.GRPC.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	kv := kvLog{base: logger}

	// Metrics.
	namespace := cfg.Metrics.Namespace
	if namespace == "" {
		namespace = "legisgraph"
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	appMetrics := prometheus.NewAppMetrics(collector)
	grpcMetrics := prometheus.NewGRPCMetrics(collector)
	pipeMetrics, err := pipecommon.NewPrometheusExtractionMetrics(collector.Registerer())
	if err != nil {
		return fmt.Errorf("pipeline metrics: %w", err)
	}

	// PostgreSQL.
	if cfg.Database.MigrationPath != "" {
		path := cfg.Database.MigrationPath
		if !strings.Contains(path, "://") {
			path = "file://" + path
		}
		if err := postgres.RunMigrations(postgres.DSN(cfg.Database), path); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	pool, err := postgres.NewConnectionPool(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	docRepo := repositories.NewDocumentRepository(pool, kv)
	runRepo := repositories.NewExtractionRunRepository(pool, kv)

	// Neo4j knowledge graph.
	graphDriver, err := neo4j.NewDriver(cfg.Neo4j, logger)
	if err != nil {
		return fmt.Errorf("neo4j: %w", err)
	}
	defer graphDriver.Close()
	graphRepo := neorepos.NewKnowledgeGraphRepository(graphDriver, cfg.Neo4j.BatchSize, logger)

	// Redis.
	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	resultCache := redis.NewCache(redisClient, logger)
	locks := redis.NewLockFactory(redisClient, logger)

	// Kafka.
	if cfg.Kafka.AutoCreateTopics {
		tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
		if err != nil {
			return fmt.Errorf("kafka admin: %w", err)
		}
		err = tm.EnsureDefaultTopics(startCtx, cfg.Kafka)
		tm.Close()
		if err != nil {
			return fmt.Errorf("kafka topics: %w", err)
		}
	}
	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	// OpenSearch.
	osClient, err := opensearch.NewClient(cfg.OpenSearch, logger)
	if err != nil {
		return fmt.Errorf("opensearch: %w", err)
	}
	indexer := opensearch.NewIndexer(osClient, cfg.OpenSearch, logger)
	if err := indexer.EnsureIndexes(startCtx); err != nil {
		return fmt.Errorf("opensearch indexes: %w", err)
	}
	searcher := opensearch.NewSearcher(osClient, cfg.OpenSearch, logger)

	// MinIO object storage.
	storageClient, err := minio.NewClient(cfg.MinIO, logger)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	if err := storageClient.EnsureBuckets(startCtx); err != nil {
		return fmt.Errorf("minio buckets: %w", err)
	}
	objectStore := minio.NewObjectStore(storageClient, logger)

	// Annotation client.
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

	// Application services.
	ingestService, err := extraction.NewIngestService(extraction.IngestDeps{
		Documents: docRepo,
		Store:     objectStore,
		Index:     indexer,
		Logger:    logger,
		Metrics:   appMetrics,
	})
	if err != nil {
		return fmt.Errorf("ingest service: %w", err)
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
	searchService, err := query.NewSearchService(query.SearchServiceDeps{
		Search:  searcher,
		Graph:   graphRepo,
		Cache:   resultCache,
		Logger:  logger,
		Metrics: appMetrics,
	})
	if err != nil {
		return fmt.Errorf("search service: %w", err)
	}

	// HTTP surface.
	healthHandler := handlers.NewHealthHandler(Version,
		handlers.CheckerFunc{ComponentName: "postgres", Fn: pool.Ping},
		handlers.CheckerFunc{ComponentName: "redis", Fn: redisClient.Ping},
		handlers.CheckerFunc{ComponentName: "neo4j", Fn: graphDriver.HealthCheck},
		handlers.CheckerFunc{ComponentName: "opensearch", Fn: osClient.Ping},
		handlers.CheckerFunc{ComponentName: "minio", Fn: storageClient.Ping},
	)
	routerCfg := httpserver.RouterConfig{
		DocumentHandler:   handlers.NewDocumentHandler(ingestService),
		ExtractionHandler: handlers.NewExtractionHandler(runService),
		SearchHandler:     handlers.NewSearchHandler(searchService),
		HealthHandler:     healthHandler,
		Logger:            logger,
		Metrics:           appMetrics,
		Mode:              cfg.Server.Mode,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsHandler = collector.Handler()
	}
	httpSrv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)

	// gRPC operations surface.
	grpcSrv, err := grpcserver.NewServer(&cfg.GRPC,
		grpcserver.WithLogger(logger),
		grpcserver.WithMetrics(grpcMetrics),
	)
	if err != nil {
		return fmt.Errorf("grpc server: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(httpSrv.Start)
	g.Go(grpcSrv.Start)
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpSrv.Stop(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", logging.Err(err))
		}
		return grpcSrv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("servers stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func logConfig(cfg config.LogConfig) logging.LogConfig {
	lc := logging.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
	}
	if cfg.Output != "" {
		lc.OutputPaths = []string{cfg.Output}
	}
	return lc
}
