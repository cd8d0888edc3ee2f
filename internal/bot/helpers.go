package bot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"studybot-backend/internal/models"
)

const dashboardChannel = models.ChannelDashboardEvents

// Callback data actions. Data is "<action>:<argument>".
const (
	actionSelectDoc = "select_doc"
	actionStudyDoc  = "study_doc"
	actionExamDoc   = "exam_doc"
	actionInterval  = "interval"
)

var studyIntervals = []int{5, 10, 15, 20, 30, 60}

const welcomeMessage = `🎓 Welcome to your personal study assistant!

Here's how it works:
1. 📄 Send me a document (PDF, DOCX or TXT)
2. 🤖 I'll generate study questions from it
3. 📚 Start a study session with /study or an exam with /exam
4. 💬 Answer my questions and get instant AI feedback

Use /help to see all commands.`

const helpMessage = `📖 Available commands:

/start - Register and see the welcome message
/files - List your documents and select one
/study - Start a study session (periodic questions)
/exam - Start an exam (rapid-fire questions)
/sessions - Show your active sessions
/stop - Stop all active sessions
/stats - Show your study statistics

You can also just send me a document file to upload it.`

func callbackData(action string, id uuid.UUID) string {
	return action + ":" + id.String()
}

func parseCallbackData(data string) (action, arg string, err error) {
	action, arg, found := strings.Cut(data, ":")
	if !found || action == "" || arg == "" {
		return "", "", fmt.Errorf("malformed callback data")
	}
	return action, arg, nil
}

func intervalKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(studyIntervals); i += 2 {
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(
				intervalLabel(studyIntervals[i]),
				fmt.Sprintf("%s:%d", actionInterval, studyIntervals[i])),
		}
		if i+1 < len(studyIntervals) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				intervalLabel(studyIntervals[i+1]),
				fmt.Sprintf("%s:%d", actionInterval, studyIntervals[i+1])))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func intervalLabel(minutes int) string {
	if minutes >= 60 {
		return fmt.Sprintf("Every %d hour", minutes/60)
	}
	return fmt.Sprintf("Every %d min", minutes)
}

func parseInterval(raw string) (int, error) {
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", raw, err)
	}
	for _, allowed := range studyIntervals {
		if minutes == allowed {
			return minutes, nil
		}
	}
	return 0, fmt.Errorf("interval %d minutes not offered", minutes)
}

func sessionSummary(sess *models.StudySession, documentName string) string {
	if sess.IsExamMode() {
		return fmt.Sprintf("📝 %s — exam mode, %d/%d questions asked\n",
			documentName, sess.QuestionsAsked, sess.ExamQuestionCount)
	}
	return fmt.Sprintf("📚 %s — every %d min, %d questions asked\n",
		documentName, sess.IntervalMinutes, sess.QuestionsAsked)
}

func formatStatsMessage(documents, activeSessions, answered, avgScore, asked int) string {
	var sb strings.Builder
	sb.WriteString("📊 Your study statistics:\n\n")
	sb.WriteString(fmt.Sprintf("📄 Documents uploaded: %d\n", documents))
	sb.WriteString(fmt.Sprintf("📚 Active sessions: %d\n", activeSessions))
	sb.WriteString(fmt.Sprintf("❓ Questions asked: %d\n", asked))
	sb.WriteString(fmt.Sprintf("✅ Questions answered: %d\n", answered))
	if answered > 0 {
		sb.WriteString(fmt.Sprintf("🎯 Average score: %d%%\n", avgScore))
	}
	return sb.String()
}

func supportedUploadType(mimeType string) bool {
	switch mimeType {
	case "application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain":
		return true
	}
	return false
}

func jobPayload(job *models.Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	return string(data), nil
}

func eventPayload(event models.DashboardEvent) (string, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return string(data), nil
}
