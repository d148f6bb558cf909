package app

import (
	"context"
	"fmt"
	"log"

	"github.com/smurching/cloudnotes/internal/config"
	"github.com/smurching/cloudnotes/internal/database"
	"github.com/smurching/cloudnotes/internal/metrics"
	"github.com/smurching/cloudnotes/internal/ocr"
	"github.com/smurching/cloudnotes/internal/ocr/tesseract"
	"github.com/smurching/cloudnotes/internal/queue"
	"github.com/smurching/cloudnotes/internal/service"
	"github.com/smurching/cloudnotes/internal/storage"
	"github.com/smurching/cloudnotes/internal/tracker"
	"github.com/smurching/cloudnotes/internal/worker"
)

// App holds the backends selected by config. Binaries take what they need
// and call Close on exit.
type App struct {
	Config     *config.Config
	Store      storage.ObjectStore
	Tracker    tracker.Tracker
	Queue      queue.Queue
	Recognizer ocr.Recognizer
	Metrics    *metrics.Metrics

	// HealthChecks probe the network backends
	HealthChecks map[string]func(context.Context) error

	closers []func()
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:       cfg,
		Metrics:      metrics.NewDefault(),
		HealthChecks: make(map[string]func(context.Context) error),
	}

	steps := []func(context.Context) error{
		a.connectStore,
		a.connectTracker,
		a.connectQueue,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Recognizer = NewRecognizer(cfg.OCRLanguages)
	return a, nil
}

func (a *App) connectStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.StoreBackend {
	case config.BackendMemory:
		a.Store = storage.NewMemoryStore(cfg.MinioBucket, []byte(cfg.JWTSecretKey))
		log.Println("✓ Using in-memory object store")
	default:
		store, err := storage.NewMinioStore(ctx, &storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.Store = store
		log.Println("✓ Connected to MinIO")
	}
	return nil
}

func (a *App) connectTracker(ctx context.Context) error {
	cfg := a.Config

	var backend tracker.Tracker
	switch cfg.TrackerBackend {
	case config.BackendMemory:
		backend = tracker.NewMemoryTracker()
		log.Println("✓ Using in-memory status tracker")

	case config.BackendScylla:
		db, err := database.ConnectScylla(cfg.ScyllaKeyspace, cfg.ScyllaHosts...)
		if err != nil {
			return fmt.Errorf("failed to connect to ScyllaDB cluster: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.HealthChecks["scylla"] = db.HealthCheck

		st := tracker.NewScyllaTracker(db.Session)
		if err := st.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to create tracker table: %w", err)
		}
		backend = st
		log.Println("✓ Connected to ScyllaDB")

	default:
		db, err := database.Connect(ctx, cfg.DatabaseUrl, database.DefaultConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.HealthChecks["postgres"] = db.HealthCheck
		backend = tracker.NewPostgresTracker(db.Pool)
		log.Println("✓ Connected to PostgreSQL")
	}

	if cfg.RedisAddr == "" {
		a.Tracker = backend
		return nil
	}

	client, err := tracker.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.closers = append(a.closers, func() { client.Close() })
	a.HealthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	a.Tracker = tracker.NewCachedTracker(backend, client, cfg.RedisCacheTTL)
	log.Println("✓ Connected to Redis")
	return nil
}

func (a *App) connectQueue(ctx context.Context) error {
	cfg := a.Config
	switch cfg.QueueBackend {
	case config.BackendMemory:
		q := queue.NewMemoryQueue(1024)
		a.closers = append(a.closers, func() { q.Close() })
		a.Queue = q
		log.Println("✓ Using in-memory job queue")
	default:
		client, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })

		q, err := queue.NewJobQueue(client, queue.JobQueueConfig{
			QueueName: cfg.OCRQueue,
			DLQName:   cfg.DLQName,
			Prefetch:  cfg.WorkerConcurrency,
		})
		if err != nil {
			return fmt.Errorf("failed to declare job queues: %w", err)
		}
		a.Queue = q
		log.Println("✓ Connected to RabbitMQ")
	}
	return nil
}

// NewRecognizer registers the pure-Go engines plus Tesseract for images.
func NewRecognizer(languages []string) *ocr.Registry {
	registry := ocr.NewDefaultRegistry()
	registry.Register(tesseract.NewEngine(languages...))
	return registry
}

func (a *App) RetryPolicy() worker.RetryPolicy {
	return worker.RetryPolicy{
		MaxRetries: a.Config.MaxRetries,
		BaseDelay:  a.Config.RetryBaseDelay,
		MaxDelay:   a.Config.RetryMaxDelay,
	}
}

func (a *App) Sweeper() *worker.Sweeper {
	return worker.NewSweeper(a.Tracker, a.Queue, a.Metrics, a.RetryPolicy(), a.Config.StaleAfter)
}

func (a *App) Pool() *worker.Pool {
	return worker.NewPool(a.Queue, a.Store, a.Tracker, a.Recognizer, a.Metrics, worker.Config{
		Concurrency: a.Config.WorkerConcurrency,
		JobTimeout:  a.Config.JobTimeout,
		Retry:       a.RetryPolicy(),
	})
}

func (a *App) Files(sweeper *worker.Sweeper) *service.Files {
	return service.NewFiles(a.Store, a.Tracker, a.Queue, sweeper, a.Metrics, service.Config{
		URLExpiry:      a.Config.URLExpiry,
		MaxUploadBytes: a.Config.MaxUploadBytes,
	})
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
