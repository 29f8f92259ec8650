// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/api"
	"github.com/JakeFAU/siepe-rag/internal/chunker"
	"github.com/JakeFAU/siepe-rag/internal/clock/system"
	"github.com/JakeFAU/siepe-rag/internal/config"
	"github.com/JakeFAU/siepe-rag/internal/crawl"
	"github.com/JakeFAU/siepe-rag/internal/embedding/openai"
	"github.com/JakeFAU/siepe-rag/internal/fetcher"
	collyfetcher "github.com/JakeFAU/siepe-rag/internal/fetcher/colly"
	"github.com/JakeFAU/siepe-rag/internal/fetcher/download"
	headlessfetcher "github.com/JakeFAU/siepe-rag/internal/fetcher/headless"
	"github.com/JakeFAU/siepe-rag/internal/hash/sha256"
	"github.com/JakeFAU/siepe-rag/internal/headless/detector"
	"github.com/JakeFAU/siepe-rag/internal/id/uuid"
	"github.com/JakeFAU/siepe-rag/internal/ingest"
	"github.com/JakeFAU/siepe-rag/internal/jobs"
	"github.com/JakeFAU/siepe-rag/internal/llm/llamacpp"
	"github.com/JakeFAU/siepe-rag/internal/metrics"
	"github.com/JakeFAU/siepe-rag/internal/pdf"
	"github.com/JakeFAU/siepe-rag/internal/policy/ratelimit"
	"github.com/JakeFAU/siepe-rag/internal/progress"
	progresssinks "github.com/JakeFAU/siepe-rag/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/siepe-rag/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/siepe-rag/internal/publisher/pubsub"
	"github.com/JakeFAU/siepe-rag/internal/rag"
	"github.com/JakeFAU/siepe-rag/internal/retrieval"
	"github.com/JakeFAU/siepe-rag/internal/scraper"
	gcsstorage "github.com/JakeFAU/siepe-rag/internal/storage/gcs"
	localstorage "github.com/JakeFAU/siepe-rag/internal/storage/local"
	memorystorage "github.com/JakeFAU/siepe-rag/internal/storage/memory"
	vecmemory "github.com/JakeFAU/siepe-rag/internal/vectorstore/memory"
	vecpostgres "github.com/JakeFAU/siepe-rag/internal/vectorstore/postgres"
	vecqdrant "github.com/JakeFAU/siepe-rag/internal/vectorstore/qdrant"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	manager   *jobs.Manager
	hub       *progress.Hub

	registerer prometheus.Registerer

	headless     *headlessfetcher.Fetcher
	pgStore      *vecpostgres.Store
	storage      *storage.Client
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until ctx is canceled or a signal
// arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close waits for running crawl jobs, then releases infrastructure. Jobs
// still running when ctx ends are abandoned.
func (a *App) Close(ctx context.Context) error {
	if a.manager != nil {
		if err := a.manager.Wait(ctx); err != nil {
			a.logger.Warn("crawl jobs still running at shutdown", zap.Error(err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

// Option customizes Build.
type Option func(*App)

// WithRegisterer sets where progress collectors are registered. Defaults to
// the Prometheus default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		if reg != nil {
			a.registerer = reg
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	app := &App{cfg: cfg, logger: logger, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(app)
	}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Driver),
		zap.String("publisher", cfg.Publisher.Backend),
		zap.Bool("archive", cfg.Archive.Enabled),
	)
	metrics.Init()

	embedder, err := openai.New(openai.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	}, logger.Named("embedding"))
	if err != nil {
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}
	completer, err := llamacpp.New(llamacpp.Config{
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		APIKey:  cfg.Completion.APIKey,
		Timeout: cfg.Completion.Timeout,
	}, logger.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("completion client init failed: %w", err)
	}

	store, err := setupVectorStore(ctx, app)
	if err != nil {
		return nil, err
	}
	ingestor, err := setupIngestor(ctx, app, embedder, store)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := setupJobs(app, ingestor); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	extractor := retrieval.NewFilterExtractor(completer, logger.Named("extractor"))
	assembler := retrieval.NewAssembler(retrieval.Config{
		ContextChars: cfg.Retrieval.ContextChars,
		SnippetChars: cfg.Retrieval.SnippetChars,
		MaxTokens:    cfg.Completion.MaxTokens,
		Temperature:  cfg.Completion.Temperature,
	}, extractor, embedder, store, completer, logger.Named("retrieval"))

	app.apiServer = api.NewServer(api.Config{
		AuthEnabled:    cfg.Auth.Enabled,
		AuthToken:      cfg.Auth.Token,
		CORSEnabled:    cfg.CORS.Enabled,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		TempDir:        cfg.Crawler.TempDir,
		DefaultTopK:    cfg.Retrieval.DefaultTopK,
	}, api.Deps{
		Jobs:     app.manager,
		Ingester: ingestor,
		Answerer: assembler,
		Logger:   logger.Named("api"),
	})
	return app, nil
}

func setupVectorStore(ctx context.Context, app *App) (rag.VectorStore, error) {
	cfg := app.cfg
	switch cfg.VectorStore.Driver {
	case "postgres":
		store, err := vecpostgres.New(ctx, vecpostgres.Config{
			DSN:       cfg.VectorStore.Postgres.DSN,
			Table:     cfg.VectorStore.Postgres.Table,
			Dimension: cfg.Embedding.Dimension,
			MaxConns:  cfg.VectorStore.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres vector store init failed: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		app.pgStore = store
		app.logger.Info("using postgres vector store", zap.String("table", cfg.VectorStore.Postgres.Table))
		return store, nil
	case "qdrant":
		store, err := vecqdrant.New(vecqdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Dimension:  cfg.Embedding.Dimension,
			Timeout:    cfg.VectorStore.Qdrant.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant vector store init failed: %w", err)
		}
		if err := store.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("qdrant collection init failed: %w", err)
		}
		app.logger.Info("using qdrant vector store", zap.String("collection", cfg.VectorStore.Qdrant.Collection))
		return store, nil
	default:
		app.logger.Warn("using in-memory vector store; points are lost on restart")
		return vecmemory.New(), nil
	}
}

func setupArchive(ctx context.Context, app *App) (rag.BlobStore, error) {
	cfg := app.cfg.Archive
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blob, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("archiving sources to GCS", zap.String("bucket", cfg.GCS.Bucket))
		return blob, nil
	case "local":
		blob, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("archiving sources locally", zap.String("path", cfg.Local.BaseDir))
		return blob, nil
	default:
		app.logger.Info("archiving sources in memory")
		return memorystorage.NewBlobStore(), nil
	}
}

// memoryPublisherCapacity bounds notifications retained by the memory backend.
const memoryPublisherCapacity = 1000

func setupPublisher(ctx context.Context, app *App) (rag.Publisher, error) {
	cfg := app.cfg.Publisher
	switch cfg.Backend {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubClient = client
		app.gcpPublisher = gcppublisher.New(client)
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", cfg.ProjectID),
			zap.String("topic", cfg.Topic),
		)
		return app.gcpPublisher, nil
	case "memory":
		app.logger.Info("using in-memory publisher")
		return memorypublisher.New(memorypublisher.WithCapacity(memoryPublisherCapacity)), nil
	default:
		return nil, nil
	}
}

func setupIngestor(ctx context.Context, app *App, embedder rag.Embedder, store rag.VectorStore) (*ingest.Ingestor, error) {
	cfg := app.cfg
	opts := []ingest.Option{
		ingest.WithClock(system.New()),
		ingest.WithChecksum(sha256.New()),
	}
	if cfg.Archive.Enabled {
		blob, err := setupArchive(ctx, app)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ingest.WithArchive(blob, cfg.Archive.Prefix))
	}
	pub, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		opts = append(opts, ingest.WithPublisher(pub, cfg.Publisher.Topic))
	}

	split := chunker.New(
		chunker.WithMaxTokens(cfg.Chunker.MaxTokens),
		chunker.WithOverlap(cfg.Chunker.OverlapTokens),
	)
	return ingest.New(
		pdf.NewReader(),
		split,
		embedder,
		store,
		uuid.New(),
		app.logger.Named("ingest"),
		opts...,
	), nil
}

func setupListingFetcher(app *App) rag.ListingFetcher {
	cfg := app.cfg
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		RespectRobots:  !cfg.Crawler.IgnoreRobots,
		ConnectTimeout: cfg.Crawler.ListingConnect,
		Timeout:        cfg.Crawler.ListingTimeout,
	}, app.logger.Named("listing"))
	if !cfg.Headless.Enabled {
		return static
	}
	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: cfg.Headless.NavTimeout,
		Settle:            cfg.Headless.Settle,
	}, app.logger.Named("headless"))
	if err != nil {
		app.logger.Warn("headless fetcher init failed; listings use static fetches only", zap.Error(err))
		return static
	}
	app.headless = headless
	app.logger.Info("headless promotion enabled", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	detect := detector.NewHeuristic(cfg.Headless.PromotionThresh, detector.DefaultSelectors)
	return fetcher.NewPromoting(static, headless, detect, app.logger.Named("promote"))
}

func setupJobs(app *App, ingestor *ingest.Ingestor) error {
	cfg := app.cfg
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.DownloadRPS,
		DefaultBurst: cfg.Crawler.DownloadBurst,
	})
	downloader := download.New(download.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		ConnectTimeout: cfg.Crawler.DownloadConnect,
		ReadTimeout:    cfg.Crawler.DownloadTimeout,
	}, limiter, app.logger.Named("download"))

	assembler := pdf.NewAssembler()
	pageScraper := scraper.New(scraper.Config{
		BaseURL: cfg.Crawler.BaseURL,
		TempDir: cfg.Crawler.TempDir,
	}, scraper.Deps{
		Fetcher:    setupListingFetcher(app),
		Downloader: downloader,
		Pages:      assembler,
		Cover:      pdf.NewCoverWriter(),
		Merger:     assembler,
		Ingester:   ingestor,
		Logger:     app.logger.Named("scraper"),
	})

	orchestrator := crawl.New(pageScraper, app.logger.Named("crawl"),
		crawl.WithBaseURL(cfg.Crawler.BaseURL),
		crawl.WithDefaultYears(yearStrings(cfg.Crawler.Years)),
	)

	promSink, err := progresssinks.NewPrometheusSink(app.registerer)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	app.hub = progress.NewHub(progress.Config{
		BufferSize:  cfg.Crawler.ProgressBuffer,
		SinkTimeout: cfg.Crawler.ProgressSinkWait,
		Logger:      app.logger.Named("progress_hub"),
	}, progresssinks.NewLogSink(app.logger.Named("progress")), promSink)

	clock := system.New()
	app.manager = jobs.NewManager(
		jobs.NewMemoryRegistry(clock),
		orchestrator,
		uuid.NewTimeOrdered(),
		app.logger.Named("jobs"),
		jobs.WithClock(clock),
		jobs.WithObserver(app.hub),
		jobs.WithEventBuffer(cfg.Crawler.EventBufferSize),
	)
	return nil
}

func yearStrings(years []int) []string {
	if len(years) == 0 {
		return nil
	}
	out := make([]string, len(years))
	for i, y := range years {
		out[i] = strconv.Itoa(y)
	}
	return out
}
