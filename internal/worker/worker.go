// Package worker runs background reconciliation of payments left pending.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/learnhub/backend/internal/gateway"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/internal/payments"
	"github.com/learnhub/backend/pkg/queue"
)

// StaleLister finds pending payments older than a cutoff.
type StaleLister interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
}

// JobQueue is the Redis job queue.
type JobQueue interface {
	EnqueueReconcile(ctx context.Context, payload queue.ReconcilePayload) error
	Dequeue(ctx context.Context, key string) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Reconciler applies the provider's session status.
type Reconciler interface {
	Reconcile(ctx context.Context, sessionID, source string) (*gateway.SessionStatus, error)
}

// Sweeper periodically enqueues reconcile jobs for stale pending payments, so a
// lost webhook never leaves a payment pending forever.
type Sweeper struct {
	payments   StaleLister
	queue      JobQueue
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	logger     *zap.Logger
	now        func() time.Time
}

// DefaultSweepInterval replaces a non-positive sweep interval.
const DefaultSweepInterval = 5 * time.Minute

// NewSweeper creates a sweeper.
func NewSweeper(payments StaleLister, q JobQueue, interval, staleAfter time.Duration, batch int, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = 50
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		payments:   payments,
		queue:      q,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      batch,
		logger:     logger,
		now:        time.Now,
	}
}

// Sweep enqueues one batch and returns how many jobs were pushed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.payments.ListStalePending(ctx, s.now().Add(-s.staleAfter), s.batch)
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}
	n := 0
	for _, p := range stale {
		if err := s.queue.EnqueueReconcile(ctx, queue.ReconcilePayload{SessionID: p.SessionID, Reason: "stale"}); err != nil {
			return n, fmt.Errorf("enqueue %s: %w", p.SessionID, err)
		}
		n++
	}
	return n, nil
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		n, err := s.Sweep(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.Warn("sweep failed", zap.Int("enqueued", n), zap.Error(err))
		case n > 0:
			s.logger.Info("stale payments enqueued", zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}

// ReconcileProcessor consumes reconcile jobs.
type ReconcileProcessor struct {
	reconciler Reconciler
	queue      JobQueue
	workers    int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewReconcileProcessor creates a processor running workers consumers.
func NewReconcileProcessor(r Reconciler, q JobQueue, workers int, logger *zap.Logger) *ReconcileProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	return &ReconcileProcessor{reconciler: r, queue: q, workers: workers, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one reconcile job. Jobs for unknown sessions are dropped.
func (p *ReconcileProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeReconcilePayment {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ReconcilePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	st, err := p.reconciler.Reconcile(ctx, payload.SessionID, payments.SourceSweep)
	if errors.Is(err, payments.ErrPaymentNotFound) {
		p.logger.Warn("reconcile job for unknown session", zap.String("session_id", payload.SessionID))
		return nil
	}
	if err != nil {
		return err
	}
	p.logger.Debug("reconciled", zap.String("session_id", payload.SessionID), zap.String("payment_status", st.PaymentStatus))
	return nil
}

// Run starts the consumers and blocks until ctx is done.
func (p *ReconcileProcessor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		id := i
		g.Go(func() error {
			p.consume(ctx, id)
			return nil
		})
	}
	return g.Wait()
}

func (p *ReconcileProcessor) consume(ctx context.Context, id int) {
	log := p.logger.With(zap.Int("consumer", id))
	for {
		if ctx.Err() != nil {
			log.Info("reconcile worker stopping")
			return
		}
		job, err := p.queue.Dequeue(ctx, queue.QueueReconcile)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("dequeue error", zap.Error(err))
				p.sleep(ctx)
			}
			continue
		}
		if job == nil {
			continue
		}

		log.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			log.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				log.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ReconcileProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
