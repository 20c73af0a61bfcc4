package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider sends parts to Gemini's content-generation endpoint.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini client authenticated with apiKey.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Close releases the underlying connection.
func (g *GeminiProvider) Close() error {
	return g.client.Close()
}

// Generate implements Provider.
func (g *GeminiProvider) Generate(ctx context.Context, model string, parts []Part) ([]Part, error) {
	genParts := make([]genai.Part, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case TextPart:
			genParts = append(genParts, genai.Text(p))
		case ImagePart:
			genParts = append(genParts, genai.Blob{MIMEType: p.MIMEType, Data: p.Data})
		}
	}

	resp, err := g.client.GenerativeModel(model).GenerateContent(ctx, genParts...)
	if err != nil {
		// A safety block is an answer without an image, not a failed call.
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return []Part{TextPart(blockedMessage(blocked))}, nil
		}
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	return fromGenai(resp), nil
}

// fromGenai converts the first usable candidate. Non-image blobs are dropped.
func fromGenai(resp *genai.GenerateContentResponse) []Part {
	if resp == nil {
		return nil
	}
	var content *genai.Content
	for _, cand := range resp.Candidates {
		if cand != nil && cand.Content != nil {
			content = cand.Content
			break
		}
	}
	if content == nil {
		return nil
	}

	out := make([]Part, 0, len(content.Parts))
	for _, part := range content.Parts {
		switch p := part.(type) {
		case genai.Text:
			out = append(out, TextPart(p))
		case genai.Blob:
			if strings.HasPrefix(p.MIMEType, "image/") {
				out = append(out, ImagePart{MIMEType: p.MIMEType, Data: p.Data})
			}
		}
	}
	return out
}

func blockedMessage(err *genai.BlockedError) string {
	if err.PromptFeedback != nil {
		return fmt.Sprintf("The request was blocked by the model's safety filters (%s). Try different photos.", err.PromptFeedback.BlockReason)
	}
	if err.Candidate != nil {
		return fmt.Sprintf("The model stopped before producing an image (%s). Try different photos.", err.Candidate.FinishReason)
	}
	return "The request was blocked by the model's safety filters. Try different photos."
}
