package certificates

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/backend/internal/enrollments"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/metrics"
	"github.com/learnhub/backend/pkg/queue"
)

type certKey struct{ user, course uuid.UUID }

type memCerts struct {
	mu    sync.Mutex
	certs map[certKey]*models.Certificate
}

func (m *memCerts) Find(_ context.Context, userID, courseID uuid.UUID) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.certs[certKey{userID, courseID}], nil
}

func (m *memCerts) CreateIfAbsent(_ context.Context, userID, courseID uuid.UUID) (*models.Certificate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := certKey{userID, courseID}
	if c, ok := m.certs[k]; ok {
		return c, false, nil
	}
	c := &models.Certificate{ID: uuid.New(), UserID: userID, CourseID: courseID, IssuedDate: time.Now()}
	m.certs[k] = c
	return c, true, nil
}

type memEnrollments map[certKey]*models.Enrollment

func (m memEnrollments) GetByUserCourse(_ context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	e, ok := m[certKey{userID, courseID}]
	if !ok {
		return nil, enrollments.ErrEnrollmentNotFound
	}
	return e, nil
}

type memQuizzes struct {
	quizzes []models.Quiz
	scores  map[uuid.UUID]float64
}

func (m *memQuizzes) ListByCourse(context.Context, uuid.UUID) ([]models.Quiz, error) {
	return m.quizzes, nil
}

func (m *memQuizzes) LatestScores(context.Context, uuid.UUID, uuid.UUID) (map[uuid.UUID]float64, error) {
	return m.scores, nil
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

type fixture struct {
	user, course uuid.UUID
	certs        *memCerts
	enrollments  memEnrollments
	quizzes      *memQuizzes
	notifier     *recordingNotifier
	engine       *Engine
}

func newFixture(progress float64, quizzes ...models.Quiz) *fixture {
	f := &fixture{
		user:        uuid.New(),
		course:      uuid.New(),
		certs:       &memCerts{certs: map[certKey]*models.Certificate{}},
		enrollments: memEnrollments{},
		quizzes:     &memQuizzes{quizzes: quizzes, scores: map[uuid.UUID]float64{}},
		notifier:    &recordingNotifier{},
	}
	f.enrollments[certKey{f.user, f.course}] = &models.Enrollment{UserID: f.user, CourseID: f.course, Progress: progress}
	f.engine = NewEngine(f.certs, f.enrollments, f.quizzes, f.notifier, 0, metrics.New(), nil)
	return f
}

func TestTwoQuizzesOneMissing(t *testing.T) {
	q1 := models.Quiz{ID: uuid.New(), Title: "Basics"}
	q2 := models.Quiz{ID: uuid.New(), Title: "Advanced"}
	f := newFixture(100, q1, q2)
	f.quizzes.scores[q1.ID] = 80

	el, err := f.engine.CheckEligibility(context.Background(), f.user, f.course)
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.Equal(t, ReasonQuizNotPassed, el.Reason)
	assert.Equal(t, "Advanced", el.QuizTitle)
	assert.Equal(t, "Quiz 'Advanced' not passed (minimum 70% required)", el.Message)

	id, err := f.engine.IssueIfEligible(context.Background(), f.user, f.course)
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Empty(t, f.certs.certs)
}

func TestFirstFailingQuizInOrder(t *testing.T) {
	q1 := models.Quiz{ID: uuid.New(), Title: "One"}
	q2 := models.Quiz{ID: uuid.New(), Title: "Two"}
	f := newFixture(100, q1, q2)
	f.quizzes.scores[q1.ID] = 69.99
	f.quizzes.scores[q2.ID] = 10

	el, err := f.engine.CheckEligibility(context.Background(), f.user, f.course)
	require.NoError(t, err)
	assert.Equal(t, "One", el.QuizTitle)
}

func TestCourseNotCompleted(t *testing.T) {
	f := newFixture(99.5)
	el, err := f.engine.CheckEligibility(context.Background(), f.user, f.course)
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.Equal(t, ReasonCourseNotCompleted, el.Reason)
	assert.Equal(t, "Course not completed", el.Message)

	el, err = f.engine.CheckEligibility(context.Background(), uuid.New(), f.course)
	require.NoError(t, err)
	assert.Equal(t, ReasonCourseNotCompleted, el.Reason)
}

func TestZeroQuizzesEligibleOnProgress(t *testing.T) {
	f := newFixture(100)
	el, err := f.engine.CheckEligibility(context.Background(), f.user, f.course)
	require.NoError(t, err)
	assert.True(t, el.Eligible)
}

func TestIssueIsIdempotent(t *testing.T) {
	q := models.Quiz{ID: uuid.New(), Title: "Only"}
	f := newFixture(100, q)
	f.quizzes.scores[q.ID] = 70

	first, err := f.engine.IssueIfEligible(context.Background(), f.user, f.course)
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := f.engine.IssueIfEligible(context.Background(), f.user, f.course)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, *first, *second)
	assert.Len(t, f.certs.certs, 1)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, queue.NotifyCertificateIssued, f.notifier.sent[0].Kind)
}

func TestConcurrentIssueCreatesOne(t *testing.T) {
	f := newFixture(100)
	ids := make([]uuid.UUID, 16)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.engine.IssueIfEligible(context.Background(), f.user, f.course)
			if assert.NoError(t, err) && assert.NotNil(t, id) {
				ids[i] = *id
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.certs.certs, 1)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, f.notifier.sent, 1)
}
