package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/losol/eventuras-sub008/internal/domain/job"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

// Handler executes one job. Returning an error schedules a retry unless the
// error is Permanent or the job is out of attempts.
type Handler func(ctx context.Context, j job.Job) error

type Metrics interface {
	ObserveJob(jobType, result string, d time.Duration)
}

type Config struct {
	WorkerID     string
	PollInterval time.Duration
	Concurrency  int
	// JobTimeout bounds a single execution.
	JobTimeout time.Duration
	// StaleAfter requeues processing jobs whose worker disappeared.
	StaleAfter time.Duration
	Logger     *slog.Logger
	Metrics    Metrics
	Backoff    func(attempt int) time.Duration
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	handlers map[string]Handler
	log      *slog.Logger

	readyMu sync.RWMutex
	ready   bool
}

func DefaultWorkerID() string {
	host, _ := os.Hostname()
	return host + "-" + strconv.Itoa(os.Getpid())
}

func New(cfg Config, repo JobsRepository) *Worker {
	if cfg.WorkerID == "" {
		cfg.WorkerID = DefaultWorkerID()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Backoff == nil {
		cfg.Backoff = ExponentialBackoff
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		handlers: make(map[string]Handler),
		log:      cfg.Logger.With("worker_id", cfg.WorkerID),
	}
}

// Handle registers h for jobType. Not safe to call once Run has started.
func (w *Worker) Handle(jobType string, h Handler) {
	w.handlers[jobType] = h
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

// Run polls for jobs with Concurrency loops until ctx is cancelled.
// In-flight jobs finish before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			return w.loop(gctx)
		})
	}
	g.Go(func() error {
		return w.reaper(gctx)
	})

	w.setReady(true)
	w.log.Info("worker.started", "concurrency", w.cfg.Concurrency, "handlers", len(w.handlers))

	err := g.Wait()
	w.setReady(false)
	w.log.Info("worker.stopped")
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// drain while there is work
		for {
			if ctx.Err() != nil {
				return nil
			}
			processed, err := w.ProcessOne(ctx)
			if err != nil {
				w.log.Error("worker.process_error", "err", err)
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) reaper(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.StaleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.StaleAfter)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					w.log.Error("worker.requeue_stale_failed", "err", err)
				}
				continue
			}
			if n > 0 {
				w.log.Warn("worker.requeued_stale", "count", n)
			}
		}
	}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

var ErrNoHandler = errors.New("no handler for job type")

func (w *Worker) execute(ctx context.Context, j job.Job) (err error) {
	h, ok := w.handlers[j.Type]
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrNoHandler, j.Type))
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()

	return h(ctx, j)
}
