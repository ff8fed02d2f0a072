package providers

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini talks to the Gemini API through the official SDK.
type Gemini struct {
	client *genai.Client
	apiKey string
	model  string
}

func NewGemini(apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, apiKey: apiKey, model: model}, nil
}

func (p *Gemini) ID() string    { return "gemini" }
func (p *Gemini) Model() string { return p.model }

func (p *Gemini) Generate(ctx context.Context, prompt Prompt) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt.User, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompt.System}},
		},
		Temperature:      genai.Ptr(float32(prompt.Temperature)),
		ResponseMIMEType: "application/json",
	}
	if prompt.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(prompt.MaxTokens)
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", p.classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fatalErr(p.ID(), p.model, "empty completion")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fatalErr(p.ID(), p.model, "empty completion")
	}
	return text, nil
}

// classify maps SDK failures onto the shared call error. The SDK does not
// expose a stable error type for quota and availability problems, so those
// are sniffed from the message.
func (p *Gemini) classify(err error) *CallError {
	ce := wrapErr(p.ID(), p.model, err, p.apiKey)
	if ce.cause != nil {
		return ce
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "quota", "resource exhausted", "unavailable", "overloaded", "500", "503"} {
		if strings.Contains(msg, marker) {
			ce.Transient = true
			return ce
		}
	}
	ce.Transient = false
	return ce
}
