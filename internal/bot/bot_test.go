package bot

import (
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"

	"studybot-backend/internal/models"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantAction string
		wantArg    string
		wantErr    bool
	}{
		{
			name:       "document selection",
			data:       "select_doc:0f8fad5b-d9cb-469f-a165-70867728950e",
			wantAction: "select_doc",
			wantArg:    "0f8fad5b-d9cb-469f-a165-70867728950e",
		},
		{
			name:       "interval choice",
			data:       "interval:15",
			wantAction: "interval",
			wantArg:    "15",
		},
		{
			name:    "missing separator",
			data:    "select_doc",
			wantErr: true,
		},
		{
			name:    "empty argument",
			data:    "interval:",
			wantErr: true,
		},
		{
			name:    "empty data",
			data:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, arg, err := parseCallbackData(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseCallbackData(%q) expected error, got %q/%q", tt.data, action, arg)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCallbackData(%q) unexpected error: %v", tt.data, err)
			}
			if action != tt.wantAction || arg != tt.wantArg {
				t.Errorf("parseCallbackData(%q) = %q/%q, want %q/%q", tt.data, action, arg, tt.wantAction, tt.wantArg)
			}
		})
	}
}

func TestCallbackDataRoundTrip(t *testing.T) {
	id := uuid.New()
	action, arg, err := parseCallbackData(callbackData(actionStudyDoc, id))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != actionStudyDoc {
		t.Errorf("action = %q, want %q", action, actionStudyDoc)
	}
	parsed, err := uuid.Parse(arg)
	if err != nil {
		t.Fatalf("argument is not a UUID: %v", err)
	}
	if parsed != id {
		t.Errorf("argument = %s, want %s", parsed, id)
	}
}

func TestParseInterval(t *testing.T) {
	for _, minutes := range studyIntervals {
		got, err := parseInterval(strconv.Itoa(minutes))
		if err != nil {
			t.Errorf("parseInterval(%d) unexpected error: %v", minutes, err)
			continue
		}
		if got != minutes {
			t.Errorf("parseInterval(%d) = %d", minutes, got)
		}
	}

	for _, raw := range []string{"7", "0", "-5", "abc", ""} {
		if _, err := parseInterval(raw); err == nil {
			t.Errorf("parseInterval(%q) expected error", raw)
		}
	}
}

func TestSupportedUploadType(t *testing.T) {
	supported := []string{
		"application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain",
	}
	for _, mime := range supported {
		if !supportedUploadType(mime) {
			t.Errorf("supportedUploadType(%q) = false, want true", mime)
		}
	}

	unsupported := []string{"image/png", "application/zip", "video/mp4", ""}
	for _, mime := range unsupported {
		if supportedUploadType(mime) {
			t.Errorf("supportedUploadType(%q) = true, want false", mime)
		}
	}
}

func TestIntervalKeyboardCoversAllIntervals(t *testing.T) {
	keyboard := intervalKeyboard()

	var buttons int
	seen := make(map[int]bool)
	for _, row := range keyboard.InlineKeyboard {
		for _, button := range row {
			buttons++
			if button.CallbackData == nil {
				t.Fatal("interval button missing callback data")
			}
			action, arg, err := parseCallbackData(*button.CallbackData)
			if err != nil {
				t.Fatalf("bad callback data %q: %v", *button.CallbackData, err)
			}
			if action != actionInterval {
				t.Errorf("action = %q, want %q", action, actionInterval)
			}
			minutes, err := parseInterval(arg)
			if err != nil {
				t.Errorf("keyboard offers unparseable interval %q: %v", arg, err)
				continue
			}
			seen[minutes] = true
		}
	}

	if buttons != len(studyIntervals) {
		t.Errorf("keyboard has %d buttons, want %d", buttons, len(studyIntervals))
	}
	for _, minutes := range studyIntervals {
		if !seen[minutes] {
			t.Errorf("keyboard missing interval %d", minutes)
		}
	}
}

func TestSessionSummary(t *testing.T) {
	study := &models.StudySession{
		Mode:            models.SessionModeStudy,
		IntervalMinutes: 15,
		QuestionsAsked:  3,
	}
	got := sessionSummary(study, "notes.pdf")
	if !strings.Contains(got, "notes.pdf") || !strings.Contains(got, "every 15 min") {
		t.Errorf("study summary = %q", got)
	}

	exam := &models.StudySession{
		Mode:              models.SessionModeExam,
		ExamQuestionCount: 10,
		QuestionsAsked:    4,
	}
	got = sessionSummary(exam, "notes.pdf")
	if !strings.Contains(got, "exam mode") || !strings.Contains(got, "4/10") {
		t.Errorf("exam summary = %q", got)
	}
}

func TestFormatStatsMessage(t *testing.T) {
	got := formatStatsMessage(2, 1, 12, 76, 15)
	for _, want := range []string{
		"Documents uploaded: 2",
		"Active sessions: 1",
		"Questions asked: 15",
		"Questions answered: 12",
		"Average score: 76%",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("stats message missing %q:\n%s", want, got)
		}
	}

	// Average is hidden until at least one answer is recorded.
	got = formatStatsMessage(1, 0, 0, 0, 0)
	if strings.Contains(got, "Average score") {
		t.Errorf("stats message should omit average with no answers:\n%s", got)
	}
}
