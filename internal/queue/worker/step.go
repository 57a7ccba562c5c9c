package worker

import (
	"context"
	"errors"
	"time"

	"github.com/losol/eventuras-sub008/internal/domain/job"
)

// ProcessOne claims and runs at most one job. processed is false when no job
// was ready.
func (w *Worker) ProcessOne(ctx context.Context) (processed bool, err error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	log := w.log.With("job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)
	log.Debug("worker.claimed")

	start := time.Now()
	runErr := w.execute(ctx, j)
	elapsed := time.Since(start)

	// Persist the outcome even when shutting down.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelPersist()

	if runErr != nil {
		return true, w.handleFailure(persistCtx, j, runErr, elapsed)
	}

	if err := w.repo.MarkDone(persistCtx, j.ID); err != nil {
		_ = w.repo.MarkFailed(persistCtx, j.ID, "mark_done_failed: "+err.Error())
		w.observe(j.Type, "error", elapsed)
		return true, err
	}

	w.observe(j.Type, "done", elapsed)
	log.Info("worker.job_done", "duration_ms", elapsed.Milliseconds())
	return true, nil
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, runErr error, elapsed time.Duration) error {
	log := w.log.With("job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)

	if IsPermanent(runErr) || j.Attempts+1 >= j.MaxAttempts {
		w.observe(j.Type, "failed", elapsed)
		log.Error("worker.job_failed", "err", runErr, "permanent", IsPermanent(runErr))
		return w.repo.MarkFailed(ctx, j.ID, runErr.Error())
	}

	delay := w.cfg.Backoff(j.Attempts)
	w.observe(j.Type, "retry", elapsed)
	log.Warn("worker.job_retry", "err", runErr, "retry_in", delay.String())
	return w.repo.Reschedule(ctx, j.ID, time.Now().UTC().Add(delay), runErr.Error())
}

func (w *Worker) observe(jobType, result string, d time.Duration) {
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.ObserveJob(jobType, result, d)
	}
}
