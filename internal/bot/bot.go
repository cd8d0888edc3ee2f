package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studybot-backend/internal/models"
	"studybot-backend/internal/repository"
	"studybot-backend/internal/scheduler"
)

const (
	cmdStart    = "start"
	cmdHelp     = "help"
	cmdFiles    = "files"
	cmdStudy    = "study"
	cmdExam     = "exam"
	cmdSessions = "sessions"
	cmdStop     = "stop"
	cmdStats    = "stats"

	maxUploadSize = 20 * 1024 * 1024 // Telegram bot API download ceiling
	maxExamCount  = 10
)

// Bot is the Telegram front end: it registers participants, accepts document
// uploads, starts and stops sessions, and routes plain text into the
// scheduler as answers. It is also the scheduler's Transport.
type Bot struct {
	api       *tgbotapi.BotAPI
	sched     *scheduler.Scheduler
	users     *repository.UserRepo
	documents *repository.DocumentRepo
	questions *repository.QuestionRepo
	sessions  *repository.SessionRepo
	jobs      *repository.JobRepo
	queue     *redis.Client

	storagePath string

	mu         sync.Mutex
	selections map[int64]uuid.UUID // participant's currently selected document
}

func New(
	token string,
	sched *scheduler.Scheduler,
	users *repository.UserRepo,
	documents *repository.DocumentRepo,
	questions *repository.QuestionRepo,
	sessions *repository.SessionRepo,
	jobs *repository.JobRepo,
	queue *redis.Client,
	storagePath string,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = os.Getenv("DEBUG") == "true"

	return &Bot{
		api:         api,
		sched:       sched,
		users:       users,
		documents:   documents,
		questions:   questions,
		sessions:    sessions,
		jobs:        jobs,
		queue:       queue,
		storagePath: storagePath,
		selections:  make(map[int64]uuid.UUID),
	}, nil
}

// Start begins long polling in a background goroutine.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	go func() {
		for update := range updates {
			if update.CallbackQuery != nil {
				b.handleCallback(update.CallbackQuery)
			} else if update.Message != nil {
				b.handleMessage(update.Message)
			}
		}
	}()

	log.Printf("Telegram bot started as @%s", b.api.Self.UserName)
}

func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	log.Println("Telegram bot stopped")
}

// SendMessage implements scheduler.Transport.
func (b *Bot) SendMessage(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()

	if message.Document != nil {
		b.handleDocumentUpload(ctx, message)
		return
	}

	if message.IsCommand() {
		switch message.Command() {
		case cmdStart:
			b.handleStart(ctx, message)
		case cmdHelp:
			b.send(message.Chat.ID, helpMessage)
		case cmdFiles:
			b.handleFiles(ctx, message)
		case cmdStudy:
			b.handleStudy(ctx, message)
		case cmdExam:
			b.handleExam(ctx, message)
		case cmdSessions:
			b.handleSessions(ctx, message)
		case cmdStop:
			b.handleStop(ctx, message)
		case cmdStats:
			b.handleStats(ctx, message)
		default:
			b.send(message.Chat.ID, "Unknown command. Use /help to see what I can do.")
		}
		return
	}

	b.handleAnswerText(ctx, message)
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	user, err := b.users.GetByTelegramID(ctx, message.From.ID)
	if err != nil {
		log.Printf("bot: failed to look up user %d: %v", message.From.ID, err)
		b.send(message.Chat.ID, "Sorry, there was an error setting up your account. Please try again.")
		return
	}

	if user == nil {
		user = &models.User{
			TelegramID: message.From.ID,
			Username:   optional(message.From.UserName),
			FirstName:  optional(message.From.FirstName),
			LastName:   optional(message.From.LastName),
		}
		if err := b.users.Create(ctx, user); err != nil {
			log.Printf("bot: failed to create user %d: %v", message.From.ID, err)
			b.send(message.Chat.ID, "Sorry, there was an error setting up your account. Please try again.")
			return
		}
		log.Printf("bot: registered new user %d (%s)", user.TelegramID, message.From.UserName)
	}

	b.send(message.Chat.ID, welcomeMessage)
}

func (b *Bot) handleFiles(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, message)
	if !ok {
		return
	}

	docs, err := b.documents.ListByUser(ctx, user.ID)
	if err != nil {
		log.Printf("bot: failed to list documents for user %s: %v", user.ID, err)
		b.send(message.Chat.ID, "Sorry, I could not load your documents right now.")
		return
	}

	if len(docs) == 0 {
		b.send(message.Chat.ID, "You have no uploaded documents. Send me a PDF, DOCX or TXT file to get started!")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, doc := range docs {
		label := fmt.Sprintf("📄 %s (%dKB)", doc.OriginalName, doc.FileSize/1024)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackData(actionSelectDoc, doc.ID)),
		))
	}

	msg := tgbotapi.NewMessage(message.Chat.ID,
		"📚 Select a document for your next study session:\n\nClick on any document below to select it for studying.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("bot: failed to send document list: %v", err)
	}
}

func (b *Bot) handleStudy(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, message)
	if !ok {
		return
	}

	docs, err := b.documents.ListByUser(ctx, user.ID)
	if err != nil || len(docs) == 0 {
		b.send(message.Chat.ID, "You need to upload a document first! Send me a PDF, DOCX or TXT file to get started.")
		return
	}

	if _, selected := b.selectedDocument(message.From.ID); !selected {
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, doc := range docs {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📄 "+doc.OriginalName, callbackData(actionStudyDoc, doc.ID)),
			))
		}
		msg := tgbotapi.NewMessage(message.Chat.ID, "📚 First, select which document you want to study:")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
		b.api.Send(msg)
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, "⏱️ How often would you like to receive questions?")
	msg.ReplyMarkup = intervalKeyboard()
	b.api.Send(msg)
}

func (b *Bot) handleExam(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, message)
	if !ok {
		return
	}

	docs, err := b.documents.ListByUser(ctx, user.ID)
	if err != nil || len(docs) == 0 {
		b.send(message.Chat.ID, "You need to upload a document first. Send me a PDF, DOCX or TXT file!")
		return
	}

	if docID, selected := b.selectedDocument(message.From.ID); selected {
		b.startExamSession(ctx, message.Chat.ID, user, docID)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, doc := range docs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📄 "+doc.OriginalName, callbackData(actionExamDoc, doc.ID)),
		))
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, "📝 Select which document you want to take an exam on:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.api.Send(msg)
}

func (b *Bot) handleSessions(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, message)
	if !ok {
		return
	}

	sessions, err := b.sessions.ListActiveByUser(ctx, user.ID)
	if err != nil {
		log.Printf("bot: failed to list sessions for user %s: %v", user.ID, err)
		b.send(message.Chat.ID, "Sorry, I could not load your sessions right now.")
		return
	}

	if len(sessions) == 0 {
		b.send(message.Chat.ID, "You have no active study sessions. Use /study to start one!")
		return
	}

	var sb strings.Builder
	sb.WriteString("📚 Your active study sessions:\n\n")
	for _, sess := range sessions {
		name := "Unknown"
		if doc, err := b.documents.GetByID(ctx, sess.DocumentID); err == nil {
			name = doc.OriginalName
		}
		sb.WriteString(sessionSummary(sess, name))
		sb.WriteString("\n")
	}
	sb.WriteString("Use /stop to stop all sessions.")

	b.send(message.Chat.ID, sb.String())
}

func (b *Bot) handleStop(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, message)
	if !ok {
		return
	}

	stopped, err := b.sched.StopSessions(ctx, user.ID)
	if err != nil {
		log.Printf("bot: failed to stop sessions for user %s: %v", user.ID, err)
		b.send(message.Chat.ID, "Sorry, I could not stop your sessions right now.")
		return
	}

	if stopped == 0 {
		b.send(message.Chat.ID, "You have no active study sessions to stop.")
		return
	}

	b.mu.Lock()
	delete(b.selections, message.From.ID)
	b.mu.Unlock()

	b.publishEvent(ctx, models.DashboardEvent{Type: models.EventSessionStopped})

	b.send(message.Chat.ID, fmt.Sprintf(
		"🛑 All study sessions stopped!\n\nStopped %d session(s). You can start a new session anytime with /study.", stopped))
}

func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, message)
	if !ok {
		return
	}

	docs, err := b.documents.ListByUser(ctx, user.ID)
	if err != nil {
		log.Printf("bot: failed to list documents for stats: %v", err)
		b.send(message.Chat.ID, "Sorry, I could not load your statistics right now.")
		return
	}

	active, err := b.sessions.ListActiveByUser(ctx, user.ID)
	if err != nil {
		log.Printf("bot: failed to list sessions for stats: %v", err)
		b.send(message.Chat.ID, "Sorry, I could not load your statistics right now.")
		return
	}

	answered, avgScore, asked, err := b.sessions.UserStats(ctx, user.ID)
	if err != nil {
		log.Printf("bot: failed to load response stats for user %s: %v", user.ID, err)
		b.send(message.Chat.ID, "Sorry, I could not load your statistics right now.")
		return
	}

	b.send(message.Chat.ID, formatStatsMessage(len(docs), len(active), answered, avgScore, asked))
}

// handleAnswerText routes free text into the scheduler. If no session is
// waiting the scheduler discards it silently.
func (b *Bot) handleAnswerText(ctx context.Context, message *tgbotapi.Message) {
	user, err := b.users.GetByTelegramID(ctx, message.From.ID)
	if err != nil || user == nil {
		return
	}

	sessions, err := b.sessions.ListActiveByUser(ctx, user.ID)
	if err != nil {
		log.Printf("bot: failed to list sessions for answer routing: %v", err)
		return
	}

	for _, sess := range sessions {
		b.sched.HandleAnswer(ctx, sess.ID, message.Text)
	}
}

// ─── Callbacks ───

func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	ctx := context.Background()
	if query.Message == nil || query.Data == "" {
		return
	}
	chatID := query.Message.Chat.ID

	action, arg, err := parseCallbackData(query.Data)
	if err != nil {
		log.Printf("bot: bad callback data %q: %v", query.Data, err)
		b.answerCallback(query.ID, "Error processing request")
		return
	}

	switch action {
	case actionSelectDoc, actionStudyDoc, actionExamDoc:
		docID, err := uuid.Parse(arg)
		if err != nil {
			b.answerCallback(query.ID, "Error processing request")
			return
		}
		doc, err := b.documents.GetByID(ctx, docID)
		if err != nil {
			b.answerCallback(query.ID, "Document not found")
			return
		}
		b.setSelection(query.From.ID, doc.ID)

		switch action {
		case actionSelectDoc:
			b.editMessage(chatID, query.Message.MessageID, fmt.Sprintf(
				"✅ Selected: %s\n\nNow use /study to start a study session or /exam for exam mode.", doc.OriginalName))

		case actionStudyDoc:
			edit := tgbotapi.NewEditMessageText(chatID, query.Message.MessageID, fmt.Sprintf(
				"📄 Selected: %s\n\n⏱️ How often would you like to receive questions?", doc.OriginalName))
			keyboard := intervalKeyboard()
			edit.ReplyMarkup = &keyboard
			b.api.Send(edit)

		case actionExamDoc:
			user, err := b.users.GetByTelegramID(ctx, query.From.ID)
			if err != nil || user == nil {
				b.answerCallback(query.ID, "Please use /start first")
				return
			}
			b.editMessage(chatID, query.Message.MessageID, "📝 Starting exam with: "+doc.OriginalName)
			b.startExamSession(ctx, chatID, user, doc.ID)
		}

	case actionInterval:
		minutes, err := parseInterval(arg)
		if err != nil {
			b.answerCallback(query.ID, "Invalid interval")
			return
		}
		docID, selected := b.selectedDocument(query.From.ID)
		if !selected {
			b.answerCallback(query.ID, "Select a document first with /files")
			return
		}
		user, err := b.users.GetByTelegramID(ctx, query.From.ID)
		if err != nil || user == nil {
			b.answerCallback(query.ID, "Please use /start first")
			return
		}
		doc, err := b.documents.GetByID(ctx, docID)
		if err != nil {
			b.answerCallback(query.ID, "Document not found")
			return
		}
		b.editMessage(chatID, query.Message.MessageID, fmt.Sprintf(
			"🚀 Starting study session!\n\n📄 Document: %s\n⏰ Questions every: %d minutes", doc.OriginalName, minutes))
		b.startStudySession(ctx, chatID, user, docID, minutes)
	}

	b.answerCallback(query.ID, "")
}

func (b *Bot) startStudySession(ctx context.Context, chatID int64, user *models.User, documentID uuid.UUID, intervalMinutes int) {
	b.send(chatID, "I'll ask you your first question now! 🍀")

	sess, err := b.sched.StartSession(ctx, user.ID, chatID, b, documentID, models.SessionModeStudy, intervalMinutes, 0)
	if err != nil {
		log.Printf("bot: failed to start study session for user %s: %v", user.ID, err)
		b.send(chatID, "Sorry, there was an error starting your study session. Please try again.")
		return
	}

	b.publishEvent(ctx, models.DashboardEvent{
		Type:    models.EventSessionStarted,
		Payload: models.SessionEvent{SessionID: sess.ID, Mode: sess.Mode},
	})
}

func (b *Bot) startExamSession(ctx context.Context, chatID int64, user *models.User, documentID uuid.UUID) {
	count, err := b.questions.CountByDocument(ctx, documentID)
	if err != nil {
		log.Printf("bot: failed to count questions for document %s: %v", documentID, err)
		b.send(chatID, "Sorry, there was an error starting your exam. Please try again.")
		return
	}
	if count == 0 {
		b.send(chatID, "No questions available for this document. Please wait for processing to complete.")
		return
	}

	examCount := count
	if examCount > maxExamCount {
		examCount = maxExamCount
	}

	b.send(chatID, fmt.Sprintf(
		"📝 Exam Mode Started!\n\nQuestions: %d\n\nI'll ask you %d questions in a row. Answer each one and I'll provide feedback immediately. Ready? Let's begin! 🎯",
		examCount, examCount))

	sess, err := b.sched.StartSession(ctx, user.ID, chatID, b, documentID, models.SessionModeExam, 0, examCount)
	if err != nil {
		log.Printf("bot: failed to start exam session for user %s: %v", user.ID, err)
		b.send(chatID, "Sorry, there was an error starting your exam. Please try again.")
		return
	}

	b.publishEvent(ctx, models.DashboardEvent{
		Type:    models.EventSessionStarted,
		Payload: models.SessionEvent{SessionID: sess.ID, Mode: sess.Mode},
	})
}

// ─── Uploads ───

func (b *Bot) handleDocumentUpload(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, message)
	if !ok {
		return
	}

	doc := message.Document
	if !supportedUploadType(doc.MimeType) {
		b.send(message.Chat.ID, "Please send a PDF, DOCX or TXT file.")
		return
	}
	if int64(doc.FileSize) > maxUploadSize {
		b.send(message.Chat.ID, "File size must be less than 20MB.")
		return
	}

	b.send(message.Chat.ID, "Processing your document... This may take a moment. ⏳")

	localPath, err := b.downloadFile(doc.FileID, doc.FileName)
	if err != nil {
		log.Printf("bot: failed to download file %s: %v", doc.FileID, err)
		b.send(message.Chat.ID, "Sorry, I could not download your file. Please check your connection and try again.")
		return
	}

	record := &models.Document{
		UserID:       user.ID,
		Filename:     filepath.Base(localPath),
		OriginalName: doc.FileName,
		FileType:     doc.MimeType,
		FileSize:     int64(doc.FileSize),
		Status:       models.DocumentStatusProcessing,
	}
	if err := b.documents.Create(ctx, record); err != nil {
		log.Printf("bot: failed to persist document: %v", err)
		b.send(message.Chat.ID, "Sorry, there was an error saving your document. Please try again.")
		return
	}

	job := &models.Job{
		Type:       models.JobTypeDocumentProcessing,
		UserID:     user.ID,
		DocumentID: record.ID,
		ChatID:     message.Chat.ID,
	}
	if err := b.jobs.Create(ctx, job); err != nil {
		log.Printf("bot: failed to create processing job: %v", err)
		b.send(message.Chat.ID, "Sorry, there was an error queuing your document. Please try again.")
		return
	}

	if err := b.enqueueJob(ctx, job); err != nil {
		log.Printf("bot: failed to enqueue job %s: %v", job.ID, err)
		b.send(message.Chat.ID, "Sorry, there was an error queuing your document. Please try again.")
		return
	}

	// Auto-select the fresh upload for the participant's next session.
	b.setSelection(message.From.ID, record.ID)
}

func (b *Bot) enqueueJob(ctx context.Context, job *models.Job) error {
	payload, err := jobPayload(job)
	if err != nil {
		return err
	}
	return b.queue.LPush(ctx, models.QueueDocumentProcessing, payload).Err()
}

func (b *Bot) downloadFile(fileID, originalName string) (string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to resolve file: %w", err)
	}

	resp, err := http.Get(file.Link(b.api.Token))
	if err != nil {
		return "", fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching file", resp.StatusCode)
	}

	if err := os.MkdirAll(b.storagePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	localPath := filepath.Join(b.storagePath, fileID+filepath.Ext(originalName))
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write local file: %w", err)
	}
	return localPath, nil
}

// ─── Helpers ───

func (b *Bot) requireUser(ctx context.Context, message *tgbotapi.Message) (*models.User, bool) {
	user, err := b.users.GetByTelegramID(ctx, message.From.ID)
	if err != nil {
		log.Printf("bot: failed to look up user %d: %v", message.From.ID, err)
		b.send(message.Chat.ID, "Sorry, something went wrong. Please try again.")
		return nil, false
	}
	if user == nil {
		b.send(message.Chat.ID, "Please use /start first to register.")
		return nil, false
	}
	return user, true
}

func (b *Bot) send(chatID int64, text string) {
	if err := b.SendMessage(chatID, text); err != nil {
		log.Printf("bot: failed to send message to chat %d: %v", chatID, err)
	}
}

func (b *Bot) editMessage(chatID int64, messageID int, text string) {
	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		log.Printf("bot: failed to edit message: %v", err)
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		log.Printf("bot: failed to answer callback: %v", err)
	}
}

func (b *Bot) setSelection(telegramID int64, documentID uuid.UUID) {
	b.mu.Lock()
	b.selections[telegramID] = documentID
	b.mu.Unlock()
}

func (b *Bot) selectedDocument(telegramID int64) (uuid.UUID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.selections[telegramID]
	return id, ok
}

func (b *Bot) publishEvent(ctx context.Context, event models.DashboardEvent) {
	if b.queue == nil {
		return
	}
	payload, err := eventPayload(event)
	if err != nil {
		return
	}
	if err := b.queue.Publish(ctx, dashboardChannel, payload).Err(); err != nil {
		log.Printf("bot: failed to publish dashboard event: %v", err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
