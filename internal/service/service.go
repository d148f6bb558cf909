package service

import (
	"time"

	"github.com/smurching/cloudnotes/internal/metrics"
	"github.com/smurching/cloudnotes/internal/queue"
	"github.com/smurching/cloudnotes/internal/storage"
	"github.com/smurching/cloudnotes/internal/tracker"
	"github.com/smurching/cloudnotes/internal/worker"
)

const defaultURLExpiry = 15 * time.Minute

type Config struct {
	URLExpiry      time.Duration
	MaxUploadBytes int64
}

// Files is the request-facing side of the pipeline. It never runs
// recognition itself; work reaches the worker pool only through the queue.
type Files struct {
	store   storage.ObjectStore
	tracker tracker.Tracker
	queue   queue.Queue
	sweeper *worker.Sweeper
	metrics *metrics.Metrics
	cfg     Config
}

func NewFiles(
	store storage.ObjectStore,
	tr tracker.Tracker,
	q queue.Queue,
	sweeper *worker.Sweeper,
	m *metrics.Metrics,
	cfg Config,
) *Files {
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = defaultURLExpiry
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Files{
		store:   store,
		tracker: tr,
		queue:   q,
		sweeper: sweeper,
		metrics: m,
		cfg:     cfg,
	}
}
