package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"studybot-backend/internal/models"
	"studybot-backend/internal/repository"
	"studybot-backend/internal/services"
)

const maxJobRetries = 3

// Notifier delivers processing results back to the uploader's chat.
type Notifier interface {
	SendMessage(chatID int64, text string) error
}

// Pool consumes document-processing jobs from Redis, extracts text,
// generates study questions and notifies the uploader.
type Pool struct {
	redis        *redis.Client
	gemini       *services.GeminiService
	fileExtract  *services.FileExtractService
	documentRepo *repository.DocumentRepo
	questionRepo *repository.QuestionRepo
	jobRepo      *repository.JobRepo
	notifier     Notifier
	storagePath  string
	workerCount  int
	stopChan     chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	gemini *services.GeminiService,
	fileExtract *services.FileExtractService,
	documentRepo *repository.DocumentRepo,
	questionRepo *repository.QuestionRepo,
	jobRepo *repository.JobRepo,
	notifier Notifier,
	storagePath string,
	workerCount int,
) *Pool {
	return &Pool{
		redis:        redisClient,
		gemini:       gemini,
		fileExtract:  fileExtract,
		documentRepo: documentRepo,
		questionRepo: questionRepo,
		jobRepo:      jobRepo,
		notifier:     notifier,
		storagePath:  storagePath,
		workerCount:  workerCount,
		stopChan:     make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, models.QueueDocumentProcessing).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		log.Printf("Worker %d: processing job %s (document %s)", id, job.ID, job.DocumentID)

		p.jobRepo.UpdateStatus(ctx, job.ID, models.JobStatusProcessing)

		if processErr := p.processDocument(ctx, &job); processErr != nil {
			p.handleFailure(ctx, &job, processErr)
		} else {
			p.handleSuccess(ctx, &job)
		}

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) processDocument(ctx context.Context, job *models.Job) error {
	doc, err := p.documentRepo.GetByID(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	fullPath := filepath.Join(p.storagePath, doc.Filename)
	text, err := p.fileExtract.ExtractText(fullPath)
	if err != nil {
		return fmt.Errorf("failed to extract text from %s: %w", doc.OriginalName, err)
	}
	if text == "" {
		return fmt.Errorf("document %s contains no extractable text", doc.OriginalName)
	}

	if err := p.documentRepo.UpdateContent(ctx, doc.ID, text); err != nil {
		return fmt.Errorf("failed to save document content: %w", err)
	}

	generated, err := p.gemini.GenerateQuestions(ctx, text, doc.OriginalName)
	if err != nil {
		return fmt.Errorf("failed to generate questions: %w", err)
	}
	if len(generated) == 0 {
		return fmt.Errorf("no questions generated for document %s", doc.OriginalName)
	}

	for _, gq := range generated {
		question := &models.Question{
			DocumentID:     doc.ID,
			Question:       gq.Question,
			ExpectedAnswer: gq.ExpectedAnswer,
			Difficulty:     gq.Difficulty,
		}
		if gq.Category != "" {
			category := gq.Category
			question.Category = &category
		}
		if err := p.questionRepo.Create(ctx, question); err != nil {
			return fmt.Errorf("failed to save question: %w", err)
		}
	}

	if err := p.documentRepo.UpdateStatus(ctx, doc.ID, models.DocumentStatusCompleted); err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}

	log.Printf("Processed document %s: %d chars extracted, %d questions", doc.ID, len(text), len(generated))

	if p.notifier != nil && job.ChatID != 0 {
		msg := fmt.Sprintf(
			"✅ Document processed successfully!\n\n📄 %s\n❓ %d study questions generated\n\nUse /study to start a study session or /exam for exam mode.",
			doc.OriginalName, len(generated))
		if err := p.notifier.SendMessage(job.ChatID, msg); err != nil {
			log.Printf("failed to notify chat %d about document %s: %v", job.ChatID, doc.ID, err)
		}
	}

	p.publishEvent(ctx, models.DashboardEvent{
		Type: models.EventDocumentProcessed,
		Payload: models.DocumentProcessedEvent{
			DocumentID:    doc.ID,
			OriginalName:  doc.OriginalName,
			QuestionCount: len(generated),
		},
	})

	return nil
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobRepo.UpdateStatus(ctx, job.ID, models.JobStatusCompleted)
	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount < maxJobRetries {
		log.Printf("Job %s failed (attempt %d): %s — retrying", job.ID, job.RetryCount, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, models.JobStatusPending)
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		// Re-queue after backoff
		jobBytes, _ := json.Marshal(job)
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			p.redis.LPush(context.Background(), models.QueueDocumentProcessing, string(jobBytes))
		})
		return
	}

	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.jobRepo.UpdateStatus(ctx, job.ID, models.JobStatusFailed)
	p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	p.documentRepo.UpdateStatus(ctx, job.DocumentID, models.DocumentStatusFailed)

	if p.notifier != nil && job.ChatID != 0 {
		msg := "❌ Sorry, I could not process your document. Please make sure it is a readable PDF, DOCX or TXT file and try uploading it again."
		if sendErr := p.notifier.SendMessage(job.ChatID, msg); sendErr != nil {
			log.Printf("failed to notify chat %d about failed job %s: %v", job.ChatID, job.ID, sendErr)
		}
	}
}

func (p *Pool) publishEvent(ctx context.Context, event models.DashboardEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := p.redis.Publish(ctx, models.ChannelDashboardEvents, payload).Err(); err != nil {
		log.Printf("failed to publish dashboard event: %v", err)
	}
}
