package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultLease         = 15 * time.Minute
	defaultSweepInterval = time.Minute
)

// RunWorkers runs concurrency claim/reconcile loops plus a stale-lease
// sweeper until the context is cancelled. Jobs for different deployments
// run in parallel; per deployment the open-job index keeps them serial.
func (r *Reconciler) RunWorkers(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}

	g := errgroup.Group{}

	for w := 1; w <= concurrency; w++ {
		id := w
		workerID := fmt.Sprintf("worker-%d-%s", w, uuid.NewString()[:8])
		g.Go(func() error {
			r.logger.Debugf("worker %d/%d started (%s)", id, concurrency, workerID)
			r.runWorker(ctx, workerID)
			r.logger.Debugf("worker %d/%d finished", id, concurrency)
			return nil
		})
	}

	g.Go(func() error {
		r.runSweeper(ctx)
		return nil
	})

	_ = g.Wait()
}

func (r *Reconciler) runWorker(ctx context.Context, workerID string) {
	for {
		claimed, err := r.ReconcileOne(ctx, workerID)
		if err != nil {
			r.logger.Errorf("worker %s: %v", workerID, err)
		}
		if claimed && err == nil {
			// Drain the queue before going back to sleep.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(defaultPollInterval):
		}
	}
}

func (r *Reconciler) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.queue.RecoverStale(ctx, defaultLease); err != nil {
				r.logger.Errorf("stale job sweep: %v", err)
			}
		}
	}
}
