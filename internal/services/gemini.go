package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"studybot-backend/internal/models"
)

// GeminiService generates study questions from document text and scores
// free-text answers against the expected answer.
type GeminiService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGeminiService(apiKey string, concurrentReqs int) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-3-flash-preview")
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:   client,
		model:    model,
		rateChan: rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// GenerateQuestions produces 8-12 study questions from extracted document
// text. Long documents are truncated; Gemini loses coherence past that.
func (s *GeminiService) GenerateQuestions(ctx context.Context, content, documentName string) ([]models.GeneratedQuestion, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseRate()

	prompt := fmt.Sprintf(`You are an expert educator who generates study questions from academic content.
Create diverse, thoughtful questions that test understanding, application, and analysis.
Return ONLY a valid JSON object with this structure:
{
  "questions": [
    {
      "question": "The actual question text",
      "expectedAnswer": "A comprehensive expected answer",
      "difficulty": "easy|medium|hard",
      "category": "Subject area or topic"
    }
  ]
}

Generate 8-12 study questions from this document: %q

Content:
%s`, documentName, truncate(content, 8000))

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	raw := stripJSONFences(extractText(resp))
	var parsed struct {
		Questions []models.GeneratedQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse generated questions: %w", err)
	}

	log.Printf("Gemini generated %d questions for %q", len(parsed.Questions), documentName)
	return parsed.Questions, nil
}

// EvaluateAnswer scores a submitted answer from 0 to 100 with feedback. The
// caller is expected to degrade gracefully on error; a slow or failing
// evaluation must never wedge a session.
func (s *GeminiService) EvaluateAnswer(ctx context.Context, question, expectedAnswer, userAnswer string) (models.AnswerEvaluation, error) {
	if err := s.acquireRate(ctx); err != nil {
		return models.AnswerEvaluation{}, err
	}
	defer s.releaseRate()

	prompt := fmt.Sprintf(`You are an expert educator who evaluates student answers.
Compare the student's answer to the expected answer and provide:
1. A score from 0-100 based on accuracy, completeness, and understanding
2. Constructive feedback explaining the score
3. Suggestions for improvement

Be encouraging but honest. Focus on what the student got right and how they can improve.

Return ONLY a valid JSON object:
{"score": number, "feedback": "Detailed explanation of the score", "suggestions": ["suggestion1", "suggestion2"]}

Question: %s

Expected Answer: %s

Student Answer: %s`, question, expectedAnswer, userAnswer)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return models.AnswerEvaluation{}, fmt.Errorf("Gemini API error: %w", err)
	}

	raw := stripJSONFences(extractText(resp))
	var eval models.AnswerEvaluation
	if err := json.Unmarshal([]byte(raw), &eval); err != nil {
		return models.AnswerEvaluation{}, fmt.Errorf("failed to parse evaluation: %w", err)
	}

	eval.Score = clampScore(eval.Score)
	if eval.Feedback == "" {
		eval.Feedback = "No feedback available"
	}
	return eval, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// stripJSONFences removes the ```json fences Gemini sometimes wraps around
// structured output.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
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

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
