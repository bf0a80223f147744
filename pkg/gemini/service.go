package gemini

import (
	"context"
	"fmt"
	"strings"

	"daybrief-backend/pkg/ai"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const summaryModel = "gemini-2.5-flash"

const summarySystemPrompt = "You summarize emails into 1-2 concise sentences. " +
	"Focus on the main request, decision, or next step. " +
	"Do not include sensitive details or signatures."

type GeminiService struct {
	client *genai.Client
}

// NewGeminiService creates the summarizer client. An empty API key yields a
// nil service; callers treat that as summaries disabled.
func NewGeminiService(ctx context.Context, apiKey string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gemini client: %v", err)
	}
	return &GeminiService{client: client}, nil
}

func (g *GeminiService) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// SummarizeEmail produces a short summary of one email. A nil service or an
// email with no usable content returns "" without error; the caller leaves
// the stored summary empty either way.
func (g *GeminiService) SummarizeEmail(ctx context.Context, email ai.EmailInput) (string, error) {
	if g == nil || g.client == nil {
		return "", nil
	}

	content := strings.TrimSpace(email.Body)
	if content == "" {
		content = strings.TrimSpace(email.Snippet)
	}
	if content == "" {
		return "", nil
	}

	model := g.client.GenerativeModel(summaryModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(summarySystemPrompt)},
	}

	prompt := fmt.Sprintf("Subject: %s\nFrom: %s\nTo: %s\nDate: %s\n\nEmail content:\n%s",
		email.Subject, email.From, email.To, email.Date, content)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}

	return strings.TrimSpace(firstText(resp)), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok && text != "" {
				return string(text)
			}
		}
	}
	return ""
}
