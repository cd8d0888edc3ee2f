package scheduler

import (
	"github.com/google/uuid"

	"studybot-backend/internal/models"
)

// activeSession ties a registered session to the transport that reaches its
// participant. Invariant: waitingForAnswer is true exactly while
// currentQuestion is set and the answer timer is armed. inFlight guards a
// dispatch or resolution in progress so the sweep never double-dispatches.
type activeSession struct {
	session          *models.StudySession
	transport        Transport
	chatID           int64
	waitingForAnswer bool
	currentQuestion  *models.Question
	answerTimer      Timer
	inFlight         bool
}

// Register inserts a handle for the session. A handle already registered
// under the same id is retired first, cancelling its timer, so a superseded
// session cannot keep firing timeouts.
func (s *Scheduler) Register(sess *models.StudySession, transport Transport, chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.sessions[sess.ID]; ok && old.answerTimer != nil {
		old.answerTimer.Stop()
	}

	s.sessions[sess.ID] = &activeSession{
		session:   sess,
		transport: transport,
		chatID:    chatID,
	}
}

// Unregister removes the handle and cancels any armed timer. Unregistering
// an unknown id is a no-op.
func (s *Scheduler) Unregister(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[sessionID]
	if !ok {
		return
	}

	if h.answerTimer != nil {
		h.answerTimer.Stop()
	}
	delete(s.sessions, sessionID)
}

func (s *Scheduler) ActiveSessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
