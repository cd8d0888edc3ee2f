package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"studybot-backend/internal/models"
)

// ─── Fakes ───

type fakeTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every pending unstopped timer. Timers armed while firing are
// queued for the next call, keeping test steps explicit.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	pending := c.timers
	c.timers = nil
	c.mu.Unlock()

	for _, t := range pending {
		if t.stopped {
			continue
		}
		t.fired = true
		t.f()
	}
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeStore struct {
	sessions    map[uuid.UUID]*models.StudySession
	responses   []*models.QuestionResponse
	marked      []uuid.UUID
	deactivated []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[uuid.UUID]*models.StudySession)}
}

func (st *fakeStore) CreateSession(_ context.Context, sess *models.StudySession) error {
	sess.ID = uuid.New()
	st.sessions[sess.ID] = sess
	return nil
}

func (st *fakeStore) MarkQuestionAsked(_ context.Context, sessionID uuid.UUID, _ time.Time) error {
	st.marked = append(st.marked, sessionID)
	return nil
}

func (st *fakeStore) DeactivateSession(_ context.Context, sessionID uuid.UUID) error {
	if sess, ok := st.sessions[sessionID]; ok {
		sess.IsActive = false
	}
	st.deactivated = append(st.deactivated, sessionID)
	return nil
}

func (st *fakeStore) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]*models.StudySession, error) {
	var out []*models.StudySession
	for _, sess := range st.sessions {
		if sess.UserID == userID && sess.IsActive {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (st *fakeStore) CreateResponse(_ context.Context, resp *models.QuestionResponse) error {
	resp.ID = uuid.New()
	st.responses = append(st.responses, resp)
	return nil
}

type fakeQuestions struct {
	pool  []*models.Question
	err   error
	calls int
}

func (q *fakeQuestions) RandomQuestion(_ context.Context, _ uuid.UUID) (*models.Question, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	if len(q.pool) == 0 {
		return nil, nil
	}
	return q.pool[(q.calls-1)%len(q.pool)], nil
}

func questionPool(n int) []*models.Question {
	pool := make([]*models.Question, n)
	for i := range pool {
		pool[i] = &models.Question{
			ID:             uuid.New(),
			DocumentID:     uuid.New(),
			Question:       fmt.Sprintf("What is topic %d?", i+1),
			ExpectedAnswer: fmt.Sprintf("Topic %d explained", i+1),
			Difficulty:     "medium",
		}
	}
	return pool
}

type fakeEvaluator struct {
	eval  models.AnswerEvaluation
	err   error
	calls int
}

func (e *fakeEvaluator) EvaluateAnswer(_ context.Context, _, _, _ string) (models.AnswerEvaluation, error) {
	e.calls++
	if e.err != nil {
		return models.AnswerEvaluation{}, e.err
	}
	return e.eval, nil
}

type fakeTransport struct {
	messages []string
	failNext bool
}

func (t *fakeTransport) SendMessage(_ int64, text string) error {
	if t.failNext {
		t.failNext = false
		return errors.New("telegram unreachable")
	}
	t.messages = append(t.messages, text)
	return nil
}

func newTestScheduler(questions *fakeQuestions, evaluator *fakeEvaluator) (*Scheduler, *fakeStore, *fakeClock) {
	store := newFakeStore()
	clock := newFakeClock()
	s := New(store, questions, evaluator, clock, Config{
		SweepInterval: time.Minute,
		AnswerTimeout: 5 * time.Minute,
		ExamPacing:    2 * time.Second,
	})
	s.launch = func(f func()) { f() }
	return s, store, clock
}

func goodEvaluator() *fakeEvaluator {
	return &fakeEvaluator{eval: models.AnswerEvaluation{Score: 85, Feedback: "Solid answer."}}
}

// ─── Lifecycle ───

func TestStartSessionAsksFirstQuestionImmediately(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	s, store, _ := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	sess, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeStudy, 15, 0)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if len(transport.messages) != 1 {
		t.Fatalf("expected first question delivered immediately, got %d messages", len(transport.messages))
	}
	if !strings.Contains(transport.messages[0], "Question 1") {
		t.Errorf("expected first question message, got %q", transport.messages[0])
	}
	if sess.QuestionsAsked != 1 {
		t.Errorf("expected questionsAsked=1, got %d", sess.QuestionsAsked)
	}
	if len(store.marked) != 1 {
		t.Errorf("expected dispatch persisted once, got %d", len(store.marked))
	}
	if s.ActiveSessionCount() != 1 {
		t.Errorf("expected 1 registered session, got %d", s.ActiveSessionCount())
	}
}

func TestStartSessionStopsPriorSessionForParticipant(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(2)}
	s, store, _ := newTestScheduler(questions, goodEvaluator())
	userID := uuid.New()

	first, err := s.StartSession(context.Background(), userID, 42, &fakeTransport{}, uuid.New(), models.SessionModeStudy, 15, 0)
	if err != nil {
		t.Fatalf("first StartSession failed: %v", err)
	}

	second, err := s.StartSession(context.Background(), userID, 42, &fakeTransport{}, uuid.New(), models.SessionModeStudy, 5, 0)
	if err != nil {
		t.Fatalf("second StartSession failed: %v", err)
	}

	if store.sessions[first.ID].IsActive {
		t.Error("expected prior session to be deactivated")
	}
	if !store.sessions[second.ID].IsActive {
		t.Error("expected new session to be active")
	}

	active, _ := store.ListActiveByUser(context.Background(), userID)
	if len(active) != 1 {
		t.Fatalf("expected exactly one active session per participant, got %d", len(active))
	}
	if s.ActiveSessionCount() != 1 {
		t.Errorf("expected exactly one registered session, got %d", s.ActiveSessionCount())
	}
}

func TestStopSessionsDeactivatesAndUnregisters(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	s, store, _ := newTestScheduler(questions, goodEvaluator())
	userID := uuid.New()

	sess, err := s.StartSession(context.Background(), userID, 42, &fakeTransport{}, uuid.New(), models.SessionModeStudy, 15, 0)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	stopped, err := s.StopSessions(context.Background(), userID)
	if err != nil {
		t.Fatalf("StopSessions failed: %v", err)
	}
	if stopped != 1 {
		t.Errorf("expected 1 stopped session, got %d", stopped)
	}
	if store.sessions[sess.ID].IsActive {
		t.Error("expected session deactivated")
	}
	if s.ActiveSessionCount() != 0 {
		t.Errorf("expected empty registry, got %d", s.ActiveSessionCount())
	}
}

// ─── Sweep cadence ───

func TestSweepRespectsStudyInterval(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	s, _, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	fourMinAgo := clock.Now().Add(-4 * time.Minute)
	sess := &models.StudySession{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		DocumentID:      uuid.New(),
		Mode:            models.SessionModeStudy,
		IsActive:        true,
		IntervalMinutes: 5,
		QuestionsAsked:  1,
		LastQuestionAt:  &fourMinAgo,
	}
	s.Register(sess, transport, 42)

	s.sweep(clock.Now())
	if len(transport.messages) != 0 {
		t.Fatalf("session 4 minutes into a 5 minute interval must not be dispatched")
	}

	clock.advance(2 * time.Minute)
	s.sweep(clock.Now())
	if len(transport.messages) != 1 {
		t.Fatalf("session past its interval must be dispatched, got %d messages", len(transport.messages))
	}
}

func TestSweepTreatsFreshSessionAsDue(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	s, _, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	sess := &models.StudySession{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		DocumentID:      uuid.New(),
		Mode:            models.SessionModeStudy,
		IsActive:        true,
		IntervalMinutes: 30,
	}
	s.Register(sess, transport, 42)

	s.sweep(clock.Now())
	if len(transport.messages) != 1 {
		t.Fatalf("session with no question history must be immediately due")
	}
}

func TestSweepSkipsWaitingSession(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(2)}
	s, store, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	_, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeStudy, 5, 0)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	// The session is waiting for an answer; even a long-overdue sweep must
	// not dispatch a second question.
	clock.advance(time.Hour)
	s.sweep(clock.Now())
	s.sweep(clock.Now())

	if len(transport.messages) != 1 {
		t.Fatalf("expected at most one outstanding question, got %d messages", len(transport.messages))
	}
	if len(store.marked) != 1 {
		t.Errorf("expected a single persisted dispatch, got %d", len(store.marked))
	}
}

func TestSweepSkipsExamSessions(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(3)}
	s, _, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	sess := &models.StudySession{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		DocumentID:        uuid.New(),
		Mode:              models.SessionModeExam,
		IsActive:          true,
		ExamQuestionCount: 3,
	}
	s.Register(sess, transport, 42)

	s.sweep(clock.Now())
	if len(transport.messages) != 0 {
		t.Fatalf("exam sessions chain their own questions and must be skipped by the sweep")
	}
}

// ─── Answer resolution ───

func TestHandleAnswerResolvesStudyQuestion(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	evaluator := goodEvaluator()
	s, store, _ := newTestScheduler(questions, evaluator)
	transport := &fakeTransport{}

	sess, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeStudy, 15, 0)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	s.HandleAnswer(context.Background(), sess.ID, "my answer")

	if evaluator.calls != 1 {
		t.Fatalf("expected evaluator called once, got %d", evaluator.calls)
	}
	if len(store.responses) != 1 {
		t.Fatalf("expected one persisted response, got %d", len(store.responses))
	}
	resp := store.responses[0]
	if resp.Score != 85 {
		t.Errorf("expected score 85, got %d", resp.Score)
	}
	if resp.UserAnswer != "my answer" {
		t.Errorf("expected submitted answer recorded, got %q", resp.UserAnswer)
	}

	last := transport.messages[len(transport.messages)-1]
	if !strings.Contains(last, "Score: 85%") {
		t.Errorf("expected feedback with score, got %q", last)
	}
	if !strings.Contains(last, "Next question coming in 15 minutes") {
		t.Errorf("expected study cadence hint, got %q", last)
	}
}

func TestHandleAnswerDiscardsUnsolicitedText(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	evaluator := goodEvaluator()
	s, store, _ := newTestScheduler(questions, evaluator)
	transport := &fakeTransport{}

	sess, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeStudy, 15, 0)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	s.HandleAnswer(context.Background(), sess.ID, "first")
	s.HandleAnswer(context.Background(), sess.ID, "second, session no longer waiting")
	s.HandleAnswer(context.Background(), uuid.New(), "unknown session")

	if evaluator.calls != 1 {
		t.Errorf("expected only the solicited answer to be evaluated, got %d calls", evaluator.calls)
	}
	if len(store.responses) != 1 {
		t.Errorf("expected one response, got %d", len(store.responses))
	}
}

func TestEvaluatorFailureDegradesToZeroScore(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	evaluator := &fakeEvaluator{err: errors.New("gemini quota exceeded")}
	s, store, _ := newTestScheduler(questions, evaluator)
	transport := &fakeTransport{}

	sess, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeStudy, 15, 0)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	s.HandleAnswer(context.Background(), sess.ID, "my answer")

	if len(store.responses) != 1 {
		t.Fatalf("evaluation failure must still record a response, got %d", len(store.responses))
	}
	if store.responses[0].Score != 0 {
		t.Errorf("expected degraded score 0, got %d", store.responses[0].Score)
	}
	last := transport.messages[len(transport.messages)-1]
	if !strings.Contains(last, "Score: 0%") {
		t.Errorf("expected zero-score feedback message, got %q", last)
	}
}

func TestScoreClamping(t *testing.T) {
	tests := []struct {
		name     string
		raw      int
		expected int
	}{
		{"above range", 150, 100},
		{"below range", -5, 0},
		{"in range", 73, 73},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			questions := &fakeQuestions{pool: questionPool(1)}
			evaluator := &fakeEvaluator{eval: models.AnswerEvaluation{Score: tc.raw, Feedback: "ok"}}
			s, store, _ := newTestScheduler(questions, evaluator)

			sess, err := s.StartSession(context.Background(), uuid.New(), 42, &fakeTransport{}, uuid.New(), models.SessionModeStudy, 15, 0)
			if err != nil {
				t.Fatalf("StartSession failed: %v", err)
			}

			s.HandleAnswer(context.Background(), sess.ID, "answer")
			if store.responses[0].Score != tc.expected {
				t.Errorf("expected persisted score %d, got %d", tc.expected, store.responses[0].Score)
			}
		})
	}
}

// ─── Timeouts ───

func TestTimeoutReleasesStudySession(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	s, store, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	_, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeStudy, 5, 0)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	clock.fireAll() // answer timeout elapses unanswered

	if len(store.responses) != 0 {
		t.Errorf("timeout must not create a response, got %d", len(store.responses))
	}
	if len(transport.messages) != 1 {
		t.Errorf("study-mode timeout must be silent, got %d messages", len(transport.messages))
	}

	// The session is eligible again once its interval elapses.
	clock.advance(6 * time.Minute)
	s.sweep(clock.Now())
	if len(transport.messages) != 2 {
		t.Fatalf("expected released session to be dispatched on the next due sweep")
	}
}

func TestTimeoutIsNoopAfterAnswer(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	s, store, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	sess, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeStudy, 15, 0)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	s.HandleAnswer(context.Background(), sess.ID, "answered just in time")
	sent := len(transport.messages)

	// Simulate the timer racing in anyway, after resolution.
	s.expire(sess.ID, questions.pool[0].ID)
	clock.fireAll()

	if len(store.responses) != 1 {
		t.Errorf("stale timeout must not create a second response, got %d", len(store.responses))
	}
	if len(transport.messages) != sent {
		t.Errorf("stale timeout must not re-notify the participant")
	}
}

func TestExamTimeoutAutoAdvances(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(3)}
	s, store, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	_, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeExam, 0, 3)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if len(transport.messages) != 1 {
		t.Fatalf("expected exam to open with question 1")
	}

	clock.fireAll() // answer timeout: notice + pacing timer
	if !strings.Contains(transport.messages[len(transport.messages)-1], "Time is up") {
		t.Fatalf("expected timeout notice, got %q", transport.messages[len(transport.messages)-1])
	}

	clock.fireAll() // pacing delay: next question
	last := transport.messages[len(transport.messages)-1]
	if !strings.Contains(last, "Question 2 of 3") {
		t.Fatalf("expected exam to advance to question 2, got %q", last)
	}
	if len(store.responses) != 0 {
		t.Errorf("timed-out exam question must not record a response")
	}
}

// ─── Exam sequencing ───

func TestExamRunsToCompletion(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(5)}
	s, store, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}
	userID := uuid.New()

	sess, err := s.StartSession(context.Background(), userID, 42, transport, uuid.New(), models.SessionModeExam, 0, 3)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		s.HandleAnswer(context.Background(), sess.ID, fmt.Sprintf("answer %d", i))
		clock.fireAll() // pacing delay before the next question, if any
	}

	if len(store.responses) != 3 {
		t.Fatalf("expected exactly 3 resolved questions, got %d", len(store.responses))
	}
	if store.sessions[sess.ID].IsActive {
		t.Error("expected exam session deactivated after completion")
	}
	if s.ActiveSessionCount() != 0 {
		t.Errorf("expected completed exam unregistered, got %d handles", s.ActiveSessionCount())
	}

	var sawCompletion bool
	for _, msg := range transport.messages {
		if strings.Contains(msg, "Exam Complete") {
			sawCompletion = true
		}
	}
	if !sawCompletion {
		t.Error("expected exam completion message")
	}

	// A late fourth answer is discarded, never evaluated.
	s.HandleAnswer(context.Background(), sess.ID, "too late")
	if len(store.responses) != 3 {
		t.Errorf("answer after exam completion must be discarded, got %d responses", len(store.responses))
	}
}

func TestExamChainsWithPacingDelay(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(3)}
	s, _, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	sess, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeExam, 0, 3)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	s.HandleAnswer(context.Background(), sess.ID, "answer 1")

	// Feedback promises the next question, but it must not arrive before
	// the pacing timer fires.
	last := transport.messages[len(transport.messages)-1]
	if !strings.Contains(last, "Next question coming right up") {
		t.Fatalf("expected next-question hint, got %q", last)
	}

	clock.fireAll()
	last = transport.messages[len(transport.messages)-1]
	if !strings.Contains(last, "Question 2 of 3") {
		t.Fatalf("expected question 2 after pacing delay, got %q", last)
	}
}

// ─── Failure containment ───

func TestExhaustedQuestionPoolTerminatesSession(t *testing.T) {
	questions := &fakeQuestions{} // empty pool
	s, store, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	sess, err := s.StartSession(context.Background(), uuid.New(), 42, transport, uuid.New(), models.SessionModeStudy, 15, 0)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if len(transport.messages) != 1 || !strings.Contains(transport.messages[0], "No questions available") {
		t.Fatalf("expected exhaustion notice, got %v", transport.messages)
	}
	if store.sessions[sess.ID].IsActive {
		t.Error("expected exhausted session deactivated")
	}
	if s.ActiveSessionCount() != 0 {
		t.Error("expected exhausted session unregistered")
	}

	// Never retried.
	fetches := questions.calls
	clock.advance(time.Hour)
	s.sweep(clock.Now())
	if questions.calls != fetches {
		t.Error("exhausted session must not be scheduled again")
	}
}

func TestDeliveryFailureKeepsSessionEligible(t *testing.T) {
	questions := &fakeQuestions{pool: questionPool(1)}
	s, store, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{failNext: true}

	sess := &models.StudySession{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		DocumentID:      uuid.New(),
		Mode:            models.SessionModeStudy,
		IsActive:        true,
		IntervalMinutes: 5,
	}
	s.Register(sess, transport, 42)

	s.sweep(clock.Now())
	if len(store.marked) != 0 {
		t.Error("failed delivery must not persist a dispatch")
	}
	if sess.QuestionsAsked != 0 {
		t.Error("failed delivery must not advance the question counter")
	}

	// Transport recovers; the very next sweep retries.
	s.sweep(clock.Now())
	if len(transport.messages) != 1 {
		t.Fatalf("expected retry after transient delivery failure, got %d messages", len(transport.messages))
	}
	if len(store.marked) != 1 {
		t.Errorf("expected the retried dispatch persisted, got %d", len(store.marked))
	}
}

func TestQuestionSourceErrorIsContained(t *testing.T) {
	questions := &fakeQuestions{err: errors.New("database down")}
	s, store, clock := newTestScheduler(questions, goodEvaluator())
	transport := &fakeTransport{}

	sess := &models.StudySession{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		DocumentID:      uuid.New(),
		Mode:            models.SessionModeStudy,
		IsActive:        true,
		IntervalMinutes: 5,
	}
	s.Register(sess, transport, 42)

	s.sweep(clock.Now())

	if len(store.deactivated) != 0 {
		t.Error("transient question source failure must not terminate the session")
	}
	if s.ActiveSessionCount() != 1 {
		t.Error("session must stay registered after transient failure")
	}

	// Source recovers.
	questions.err = nil
	s.sweep(clock.Now())
	if len(transport.messages) != 1 {
		t.Fatalf("expected dispatch to succeed once the source recovers")
	}
}
