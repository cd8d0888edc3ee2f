package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studybot-backend/internal/models"
	"studybot-backend/internal/repository"
)

type DashboardHandler struct {
	userRepo     *repository.UserRepo
	documentRepo *repository.DocumentRepo
	questionRepo *repository.QuestionRepo
	sessionRepo  *repository.SessionRepo
	queue        *redis.Client
}

func NewDashboardHandler(
	userRepo *repository.UserRepo,
	documentRepo *repository.DocumentRepo,
	questionRepo *repository.QuestionRepo,
	sessionRepo *repository.SessionRepo,
	queue *redis.Client,
) *DashboardHandler {
	return &DashboardHandler{
		userRepo:     userRepo,
		documentRepo: documentRepo,
		questionRepo: questionRepo,
		sessionRepo:  sessionRepo,
		queue:        queue,
	}
}

// Status reports bot liveness signals: pending processing work and live
// session count.
func (h *DashboardHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queueDepth, err := h.queue.LLen(ctx, models.QueueDocumentProcessing).Result()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load status", r))
		return
	}
	activeSessions, err := h.sessionRepo.CountActive(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load status", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "online",
		"queue_depth":     queueDepth,
		"active_sessions": activeSessions,
	})
}

// Stats reports platform-wide counters for the dashboard overview.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.userRepo.Count(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load stats", r))
		return
	}
	documents, err := h.documentRepo.Count(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load stats", r))
		return
	}
	questions, err := h.questionRepo.Count(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load stats", r))
		return
	}
	activeSessions, err := h.sessionRepo.CountActive(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load stats", r))
		return
	}
	totalAsked, averageScore, err := h.sessionRepo.GlobalStats(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load stats", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users":           users,
		"documents":       documents,
		"questions":       questions,
		"active_sessions": activeSessions,
		"total_answered":  totalAsked,
		"average_score":   averageScore,
	})
}

// RecentDocuments lists the latest uploads across all users.
func (h *DashboardHandler) RecentDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documentRepo.Recent(r.Context(), 10)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load documents", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// Activity lists the most recently scored answers.
func (h *DashboardHandler) Activity(w http.ResponseWriter, r *http.Request) {
	responses, err := h.sessionRepo.RecentResponses(r.Context(), 20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load activity", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": responses})
}

// DocumentQuestions returns the generated question bank for one document.
func (h *DashboardHandler) DocumentQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid document ID", r))
		return
	}

	doc, err := h.documentRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Document not found", r))
		return
	}

	questions, err := h.questionRepo.ListByDocument(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load questions", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document":  doc,
		"questions": questions,
	})
}

// Job handler

type JobHandler struct {
	jobRepo *repository.JobRepo
}

func NewJobHandler(jobRepo *repository.JobRepo) *JobHandler {
	return &JobHandler{jobRepo: jobRepo}
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
		return
	}

	writeJSON(w, http.StatusOK, job)
}
