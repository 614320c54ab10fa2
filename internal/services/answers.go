package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// AnswerProvider produces the reply for medical questions and general chat.
// The webhook flow only depends on this capability, not on who answers.
type AnswerProvider interface {
	AnswerMedical(ctx context.Context, question string) (string, error)
	AnswerGeneral(ctx context.Context, message string) (string, error)
}

const (
	medicalSystemPrompt = "You are a careful medical information assistant. Answer health questions " +
		"in plain language, keep answers short, and always advise seeing a clinician for diagnosis " +
		"or treatment decisions. Never prescribe medication."

	generalSystemPrompt = "You are a helpful medical assistant for a clinic's WhatsApp line. " +
		"Be friendly and brief. If the user seems to want an appointment, tell them to send a " +
		"message containing the word 'appointment'."
)

// GeminiAnswerService answers through Google's Gemini API.
type GeminiAnswerService struct {
	client  *genai.Client
	modelID string
}

// NewGeminiAnswerService creates the Gemini-backed answer provider.
func NewGeminiAnswerService(ctx context.Context, apiKey, modelID string) (*GeminiAnswerService, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiAnswerService{
		client:  client,
		modelID: modelID,
	}, nil
}

func (s *GeminiAnswerService) AnswerMedical(ctx context.Context, question string) (string, error) {
	return s.answer(ctx, medicalSystemPrompt, question)
}

func (s *GeminiAnswerService) AnswerGeneral(ctx context.Context, message string) (string, error) {
	return s.answer(ctx, generalSystemPrompt, message)
}

func (s *GeminiAnswerService) answer(ctx context.Context, system, message string) (string, error) {
	model := s.client.GenerativeModel(s.modelID)
	model.SystemInstruction = genai.NewUserContent(genai.Text(system))

	resp, err := model.GenerateContent(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	answer := strings.TrimSpace(text.String())
	if answer == "" {
		return "", errors.New("gemini returned empty content")
	}
	return answer, nil
}

// Close releases resources held by the Gemini client.
func (s *GeminiAnswerService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// StaticAnswerService is the fallback provider used when no LLM is
// configured. It keeps the service answering instead of failing the webhook.
type StaticAnswerService struct{}

func (StaticAnswerService) AnswerMedical(ctx context.Context, question string) (string, error) {
	return "I can't answer medical questions right now. For anything urgent please contact " +
		"your clinic directly, or send 'appointment' to book a consultation.", nil
}

func (StaticAnswerService) AnswerGeneral(ctx context.Context, message string) (string, error) {
	return "Hello! I can help you book a clinic appointment - just send a message containing " +
		"the word 'appointment'.", nil
}
