package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/backend/internal/gateway"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/internal/payments"
	"github.com/learnhub/backend/pkg/queue"
)

type memQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (q *memQueue) EnqueueReconcile(_ context.Context, p queue.ReconcilePayload) error {
	body, _ := json.Marshal(p)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, &queue.Job{ID: p.SessionID, Type: queue.JobTypeReconcilePayment, Queue: queue.QueueReconcile, Payload: body})
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context, _ string) (*queue.Job, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return j, nil
	}
	q.mu.Unlock()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Millisecond):
	}
	return nil, nil
}

func (q *memQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func (q *memQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type staleList struct {
	payments []models.Payment
	cutoff   time.Time
	limit    int
}

func (s *staleList) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	s.cutoff, s.limit = cutoff, limit
	if len(s.payments) > limit {
		return s.payments[:limit], nil
	}
	return s.payments, nil
}

type fakeReconciler struct {
	mu    sync.Mutex
	seen  map[string]int
	errs  map[string]error
	calls int
}

func (f *fakeReconciler) Reconcile(_ context.Context, sessionID, source string) (*gateway.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if source != payments.SourceSweep {
		return nil, errors.New("unexpected source " + source)
	}
	if err := f.errs[sessionID]; err != nil {
		return nil, err
	}
	if f.seen == nil {
		f.seen = map[string]int{}
	}
	f.seen[sessionID]++
	return &gateway.SessionStatus{ID: sessionID, PaymentStatus: gateway.PaymentPaid}, nil
}

func TestSweepEnqueuesStalePayments(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	list := &staleList{payments: []models.Payment{
		{SessionID: "cs_1", Amount: decimal.NewFromInt(10)},
		{SessionID: "cs_2", Amount: decimal.NewFromInt(10)},
		{SessionID: "cs_3", Amount: decimal.NewFromInt(10)},
	}}
	q := &memQueue{}
	s := NewSweeper(list, q, time.Minute, 5*time.Minute, 2, nil)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, now.Add(-5*time.Minute), list.cutoff)
	assert.Equal(t, 2, list.limit)
	require.Len(t, q.jobs, 2)

	var p queue.ReconcilePayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &p))
	assert.Equal(t, "cs_1", p.SessionID)
}

func TestSweeperDefaultsNonPositiveSettings(t *testing.T) {
	s := NewSweeper(&staleList{}, &memQueue{}, 0, time.Minute, -1, nil)
	assert.Equal(t, DefaultSweepInterval, s.interval)
	assert.Equal(t, 50, s.batch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() { s.Run(ctx) })
}

func TestProcessDropsUnknownSession(t *testing.T) {
	rec := &fakeReconciler{errs: map[string]error{"cs_gone": payments.ErrPaymentNotFound}}
	p := NewReconcileProcessor(rec, &memQueue{}, 1, nil)

	body, _ := json.Marshal(queue.ReconcilePayload{SessionID: "cs_gone"})
	assert.NoError(t, p.Process(context.Background(), &queue.Job{Type: queue.JobTypeReconcilePayment, Payload: body}))

	assert.Error(t, p.Process(context.Background(), &queue.Job{Type: "other"}))
	assert.Error(t, p.Process(context.Background(), &queue.Job{Type: queue.JobTypeReconcilePayment, Payload: []byte("{")}))
}

func TestRunConsumesAndRetries(t *testing.T) {
	q := &memQueue{}
	for _, id := range []string{"cs_1", "cs_2", "cs_3", "cs_down"} {
		require.NoError(t, q.EnqueueReconcile(context.Background(), queue.ReconcilePayload{SessionID: id}))
	}
	rec := &fakeReconciler{errs: map[string]error{"cs_down": gateway.ErrProviderDown}}
	p := NewReconcileProcessor(rec, q, 3, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.jobs) == 0 && len(q.retried) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, map[string]int{"cs_1": 1, "cs_2": 1, "cs_3": 1}, rec.seen)
	assert.Equal(t, "cs_down", q.retried[0].ID)
	assert.Equal(t, 1, q.retried[0].Attempt)
	assert.Zero(t, q.pending())
}
