package payments

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/learnhub/backend/internal/gateway"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/queue"
)

type enrollKey struct{ user, course uuid.UUID }

// memStore applies SettlePaid atomically under one mutex, mirroring the conditional update.
type memStore struct {
	mu          sync.Mutex
	payments    map[string]*models.Payment
	enrollments map[enrollKey]int
	earnings    decimal.Decimal
	credits     int
}

func newMemStore(ps ...*models.Payment) *memStore {
	s := &memStore{payments: map[string]*models.Payment{}, enrollments: map[enrollKey]int{}}
	for _, p := range ps {
		s.payments[p.SessionID] = p
	}
	return s
}

func (s *memStore) GetBySessionID(_ context.Context, sessionID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[sessionID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) SettlePaid(_ context.Context, sessionID string, commission decimal.Decimal) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[sessionID]
	if !ok || p.PaymentStatus == models.PaymentStatusPaid {
		return &Settlement{}, nil
	}
	p.PaymentStatus = models.PaymentStatusPaid
	k := enrollKey{p.UserID, p.CourseID}
	s.enrollments[k]++
	share := InstructorShare(p.Amount, commission)
	s.earnings = s.earnings.Add(share)
	s.credits++
	cp := *p
	return &Settlement{Payment: &cp, Transitioned: true, EnrollmentCreated: s.enrollments[k] == 1, InstructorShare: share}, nil
}

func (s *memStore) MarkFailed(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[sessionID]
	if !ok || p.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	p.PaymentStatus = models.PaymentStatusFailed
	return true, nil
}

func (s *memStore) status(sessionID string) models.PaymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[sessionID].PaymentStatus
}

type fakeProvider struct {
	mu       sync.Mutex
	statuses map[string]*gateway.SessionStatus
	err      error
	calls    int
}

func (f *fakeProvider) CreateSession(context.Context, gateway.SessionRequest) (*gateway.Session, error) {
	return nil, gateway.ErrProviderRejected
}

func (f *fakeProvider) GetStatus(_ context.Context, sessionID string) (*gateway.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	st, ok := f.statuses[sessionID]
	if !ok {
		return nil, gateway.ErrSessionNotFound
	}
	cp := *st
	return &cp, nil
}

func (f *fakeProvider) ExpireSession(context.Context, string) error { return nil }

// ParseWebhook accepts signature "valid" and a body of {id, type, session_id}.
func (f *fakeProvider) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	if signature != "valid" {
		return nil, gateway.ErrInvalidSignature
	}
	var ev struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, gateway.ErrInvalidSignature.Wrap(err)
	}
	return &gateway.WebhookEvent{ID: ev.ID, Type: ev.Type, SessionID: ev.SessionID}, nil
}

func (f *fakeProvider) set(sessionID, status, paymentStatus string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[string]*gateway.SessionStatus{}
	}
	f.statuses[sessionID] = &gateway.SessionStatus{ID: sessionID, Status: status, PaymentStatus: paymentStatus}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []queue.NotificationPayload
}

func (r *recordingNotifier) EnqueueNotification(_ context.Context, p queue.NotificationPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, p)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type archived struct {
	eventID string
	body    []byte
}

type memArchiver struct {
	mu    sync.Mutex
	items []archived
}

func (a *memArchiver) ArchiveWebhook(_ context.Context, eventID string, _ time.Time, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, archived{eventID, body})
	return "webhooks/" + eventID + ".json", nil
}
