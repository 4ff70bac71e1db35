package extractor

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"budgetflow/internal/core"
)

// Gemini implements Inferencer over the Google GenAI SDK. The document is
// sent inline as PDF bytes alongside the prompt.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ Inferencer = (*Gemini)(nil)

// NewGemini creates the client. The API key is read from the environment
// by the SDK (GEMINI_API_KEY / GOOGLE_API_KEY).
func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Infer(ctx context.Context, document []byte, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: document}},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", core.MarkTransient(fmt.Errorf("generate content: %w", err))
	}
	return resp.Text(), nil
}
