package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"studybot-backend/internal/models"
)

const (
	defaultSweepInterval = 1 * time.Minute
	defaultAnswerTimeout = 5 * time.Minute
	defaultExamPacing    = 2 * time.Second
)

const noQuestionsMessage = "❌ No questions available for this document yet.\n\n" +
	"This could be because:\n" +
	"• The document is still being processed\n" +
	"• The AI service quota has been exceeded\n" +
	"• The document content could not be analyzed\n\n" +
	"Please contact support or try uploading a different document."

// SessionStore persists sessions and responses. The scheduler is the only
// in-process writer, so no optimistic-concurrency handling is expected here.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *models.StudySession) error
	MarkQuestionAsked(ctx context.Context, sessionID uuid.UUID, askedAt time.Time) error
	DeactivateSession(ctx context.Context, sessionID uuid.UUID) error
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.StudySession, error)
	CreateResponse(ctx context.Context, resp *models.QuestionResponse) error
}

// QuestionSource returns a question for a document, or (nil, nil) when the
// document's pool is empty.
type QuestionSource interface {
	RandomQuestion(ctx context.Context, documentID uuid.UUID) (*models.Question, error)
}

// Evaluator scores a free-text answer against the expected answer. An error
// degrades the response to a zero score; it never stalls the session.
type Evaluator interface {
	EvaluateAnswer(ctx context.Context, question, expectedAnswer, userAnswer string) (models.AnswerEvaluation, error)
}

// Transport delivers a message to a participant. Fire and forget: failures
// are logged by the scheduler, not retried.
type Transport interface {
	SendMessage(chatID int64, text string) error
}

type Config struct {
	SweepInterval time.Duration
	AnswerTimeout time.Duration
	ExamPacing    time.Duration
}

// Scheduler owns the in-memory registry of active sessions and advances each
// session's state machine: periodic sweep in study mode, self-chaining
// dispatch in exam mode, answer evaluation and timeouts. All handle mutation
// goes through s.mu.
type Scheduler struct {
	store     SessionStore
	questions QuestionSource
	evaluator Evaluator
	clock     Clock
	cfg       Config

	mu       sync.Mutex
	sessions map[uuid.UUID]*activeSession

	stopChan chan struct{}

	// launch runs a per-session unit of work; tests replace it to run
	// dispatches synchronously.
	launch func(func())
}

func New(store SessionStore, questions QuestionSource, evaluator Evaluator, clock Clock, cfg Config) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = defaultAnswerTimeout
	}
	if cfg.ExamPacing <= 0 {
		cfg.ExamPacing = defaultExamPacing
	}

	return &Scheduler{
		store:     store,
		questions: questions,
		evaluator: evaluator,
		clock:     clock,
		cfg:       cfg,
		sessions:  make(map[uuid.UUID]*activeSession),
		stopChan:  make(chan struct{}),
		launch:    func(f func()) { go f() },
	}
}

// Run starts the periodic due-check sweep.
func (s *Scheduler) Run() {
	go s.loop()
	log.Printf("Question scheduler started (sweep every %s)", s.cfg.SweepInterval)
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep(s.clock.Now())
		}
	}
}

// sweep collects every study-mode session that is due and not already
// occupied, then dispatches each as an independent unit of work so a slow
// question fetch for one session cannot delay the others. Exam sessions are
// skipped: their pacing is self-driving.
func (s *Scheduler) sweep(now time.Time) {
	s.mu.Lock()
	var due []*activeSession
	for _, h := range s.sessions {
		if h.waitingForAnswer || h.inFlight {
			continue
		}
		if h.session.IsExamMode() {
			continue
		}
		if !sessionDue(h.session, now) {
			continue
		}
		h.inFlight = true
		due = append(due, h)
	}
	s.mu.Unlock()

	for _, h := range due {
		h := h
		s.launch(func() { s.dispatch(context.Background(), h) })
	}
}

// sessionDue reports whether the session has waited out its interval. A
// session that has never been asked anything is immediately due.
func sessionDue(sess *models.StudySession, now time.Time) bool {
	if sess.LastQuestionAt == nil {
		return true
	}
	return now.Sub(*sess.LastQuestionAt) >= time.Duration(sess.IntervalMinutes)*time.Minute
}

// dispatch delivers the next question and flips the session into the waiting
// state. The caller must have set the handle's inFlight flag; dispatch clears
// it on every exit path (Unregister removes the handle outright).
func (s *Scheduler) dispatch(ctx context.Context, h *activeSession) {
	sess := h.session

	s.mu.Lock()
	if s.sessions[sess.ID] != h {
		// Stopped or superseded while this dispatch was pending.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	q, err := s.questions.RandomQuestion(ctx, sess.DocumentID)
	if err != nil {
		log.Printf("scheduler: failed to fetch question for session %s: %v", sess.ID, err)
		s.clearInFlight(h)
		return
	}

	if q == nil {
		// Question pool exhausted: terminal for this session.
		log.Printf("scheduler: no questions for document %s, stopping session %s", sess.DocumentID, sess.ID)
		if err := h.transport.SendMessage(h.chatID, noQuestionsMessage); err != nil {
			log.Printf("scheduler: failed to notify session %s about empty question pool: %v", sess.ID, err)
		}
		s.deactivate(ctx, sess)
		return
	}

	text := fmt.Sprintf("❓ Question %d:\n\n%s", sess.QuestionsAsked+1, q.Question)
	if sess.IsExamMode() {
		text = fmt.Sprintf("❓ Question %d of %d:\n\n%s", sess.QuestionsAsked+1, sess.ExamQuestionCount, q.Question)
	}

	// Deliver before marking waiting so a failed send leaves the session
	// eligible for the next sweep instead of stranded.
	if err := h.transport.SendMessage(h.chatID, text); err != nil {
		log.Printf("scheduler: failed to deliver question to session %s: %v", sess.ID, err)
		s.clearInFlight(h)
		return
	}

	now := s.clock.Now()
	if err := s.store.MarkQuestionAsked(ctx, sess.ID, now); err != nil {
		log.Printf("scheduler: failed to persist question dispatch for session %s: %v", sess.ID, err)
	}

	s.mu.Lock()
	if s.sessions[sess.ID] != h {
		s.mu.Unlock()
		return
	}
	sess.LastQuestionAt = &now
	sess.QuestionsAsked++
	h.waitingForAnswer = true
	h.currentQuestion = q
	sessionID, questionID := sess.ID, q.ID
	h.answerTimer = s.clock.AfterFunc(s.cfg.AnswerTimeout, func() {
		s.expire(sessionID, questionID)
	})
	h.inFlight = false
	s.mu.Unlock()
}

// HandleAnswer resolves an outstanding question with the participant's
// answer. Text arriving for a session that is not waiting is discarded
// silently; participants may type at any time.
func (s *Scheduler) HandleAnswer(ctx context.Context, sessionID uuid.UUID, answer string) {
	s.mu.Lock()
	h := s.sessions[sessionID]
	if h == nil || !h.waitingForAnswer || h.currentQuestion == nil {
		s.mu.Unlock()
		return
	}

	// Claim the waiting episode atomically: a timeout firing after this
	// point is a no-op, and the sweep sees the handle as occupied.
	q := h.currentQuestion
	h.waitingForAnswer = false
	h.currentQuestion = nil
	if h.answerTimer != nil {
		h.answerTimer.Stop()
		h.answerTimer = nil
	}
	h.inFlight = true
	sess := h.session
	s.mu.Unlock()

	eval, err := s.evaluator.EvaluateAnswer(ctx, q.Question, q.ExpectedAnswer, answer)
	if err != nil {
		log.Printf("scheduler: answer evaluation failed for session %s: %v", sessionID, err)
		eval = models.AnswerEvaluation{
			Score:    0,
			Feedback: "Sorry, your answer could not be evaluated this time. It was recorded with a score of 0.",
		}
	}
	eval.Score = clampScore(eval.Score)

	feedback := eval.Feedback
	resp := &models.QuestionResponse{
		SessionID:  sessionID,
		QuestionID: q.ID,
		UserAnswer: answer,
		Score:      eval.Score,
		Feedback:   &feedback,
	}
	if err := s.store.CreateResponse(ctx, resp); err != nil {
		log.Printf("scheduler: failed to persist response for session %s: %v", sessionID, err)
	}

	message := fmt.Sprintf("%s Score: %d%%\n\n%s", scoreEmoji(eval.Score), eval.Score, eval.Feedback)

	examDone := false
	if sess.IsExamMode() {
		if sess.QuestionsAsked < sess.ExamQuestionCount {
			message += "\n\nNext question coming right up!"
		} else {
			message += fmt.Sprintf("\n\n🎉 Exam Complete! You answered %d questions.", sess.QuestionsAsked)
			examDone = true
		}
	} else {
		message += fmt.Sprintf("\n\nNext question coming in %d minutes!", sess.IntervalMinutes)
	}

	if err := h.transport.SendMessage(h.chatID, message); err != nil {
		log.Printf("scheduler: failed to deliver feedback for session %s: %v", sessionID, err)
	}

	if examDone {
		s.deactivate(ctx, sess)
		return
	}

	if sess.IsExamMode() {
		// Chain the next question after a short pause so the participant
		// can read the feedback. The handle stays in flight until the
		// chained dispatch settles it.
		s.clock.AfterFunc(s.cfg.ExamPacing, func() {
			s.dispatch(context.Background(), h)
		})
		return
	}

	// Study mode: back to idle; the sweep picks the session up again once
	// its interval elapses.
	s.clearInFlight(h)
}

// expire fires when the answer timeout elapses. If the question was already
// resolved the timer is stale and nothing happens. In study mode the session
// is silently released back to the sweep. In exam mode the exam auto-advances
// so a single unanswered question cannot stall it forever.
func (s *Scheduler) expire(sessionID, questionID uuid.UUID) {
	s.mu.Lock()
	h := s.sessions[sessionID]
	if h == nil || !h.waitingForAnswer || h.currentQuestion == nil || h.currentQuestion.ID != questionID {
		s.mu.Unlock()
		return
	}

	h.waitingForAnswer = false
	h.currentQuestion = nil
	h.answerTimer = nil
	sess := h.session
	exam := sess.IsExamMode()
	if exam {
		h.inFlight = true
	}
	s.mu.Unlock()

	if !exam {
		log.Printf("scheduler: answer timeout for session %s, releasing question", sessionID)
		return
	}

	ctx := context.Background()
	if sess.QuestionsAsked >= sess.ExamQuestionCount {
		message := fmt.Sprintf("⏰ Time is up for this question.\n\n🎉 Exam Complete! You answered %d questions.", sess.QuestionsAsked)
		if err := h.transport.SendMessage(h.chatID, message); err != nil {
			log.Printf("scheduler: failed to deliver exam completion for session %s: %v", sessionID, err)
		}
		s.deactivate(ctx, sess)
		return
	}

	if err := h.transport.SendMessage(h.chatID, "⏰ Time is up for this question. Here comes the next one."); err != nil {
		log.Printf("scheduler: failed to deliver timeout notice for session %s: %v", sessionID, err)
	}
	s.clock.AfterFunc(s.cfg.ExamPacing, func() {
		s.dispatch(context.Background(), h)
	})
}

// StartSession enforces at most one active session per participant, creates
// and registers the new session, and asks the first question in the same
// logical step instead of waiting for the next sweep.
func (s *Scheduler) StartSession(ctx context.Context, userID uuid.UUID, chatID int64, transport Transport, documentID uuid.UUID, mode string, intervalMinutes, examQuestionCount int) (*models.StudySession, error) {
	if _, err := s.StopSessions(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to stop existing sessions: %w", err)
	}

	sess := &models.StudySession{
		UserID:            userID,
		DocumentID:        documentID,
		Mode:              mode,
		IsActive:          true,
		IntervalMinutes:   intervalMinutes,
		ExamQuestionCount: examQuestionCount,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.Register(sess, transport, chatID)

	s.mu.Lock()
	h := s.sessions[sess.ID]
	h.inFlight = true
	s.mu.Unlock()
	s.dispatch(ctx, h)

	return sess, nil
}

// StopSessions deactivates and unregisters every active session owned by the
// participant, returning how many were stopped.
func (s *Scheduler) StopSessions(ctx context.Context, userID uuid.UUID) (int, error) {
	existing, err := s.store.ListActiveByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}

	for _, sess := range existing {
		if err := s.store.DeactivateSession(ctx, sess.ID); err != nil {
			log.Printf("scheduler: failed to deactivate session %s: %v", sess.ID, err)
		}
		s.Unregister(sess.ID)
	}
	return len(existing), nil
}

func (s *Scheduler) deactivate(ctx context.Context, sess *models.StudySession) {
	if err := s.store.DeactivateSession(ctx, sess.ID); err != nil {
		log.Printf("scheduler: failed to deactivate session %s: %v", sess.ID, err)
	}
	sess.IsActive = false
	s.Unregister(sess.ID)
}

func (s *Scheduler) clearInFlight(h *activeSession) {
	s.mu.Lock()
	h.inFlight = false
	s.mu.Unlock()
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func scoreEmoji(score int) string {
	switch {
	case score >= 80:
		return "🎉"
	case score >= 60:
		return "👍"
	default:
		return "💪"
	}
}
