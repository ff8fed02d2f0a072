package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/wxbrief/internal/httpx"
)

// OpenRouter talks to the OpenRouter chat completions API. The router puts
// one instance per configured model on the chain.
type OpenRouter struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	model   string
}

func NewOpenRouter(client *httpx.Client, baseURL, apiKey, model string) *OpenRouter {
	return &OpenRouter{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

func (p *OpenRouter) ID() string    { return "openrouter" }
func (p *OpenRouter) Model() string { return p.model }

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenRouter) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if p.apiKey == "" {
		return "", fatalErr(p.ID(), p.model, "no api key configured")
	}
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature:    prompt.Temperature,
		MaxTokens:      prompt.MaxTokens,
		ResponseFormat: &formatSpec{Type: "json_object"},
	}
	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
		"HTTP-Referer":  "https://github.com/mohammad-safakhou/wxbrief",
		"X-Title":       "wxbrief",
	}
	var out chatResponse
	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	if err := p.http.DoJSON(ctx, "POST", url, headers, body, &out); err != nil {
		return "", wrapErr(p.ID(), p.model, err, p.apiKey)
	}
	if len(out.Choices) == 0 {
		return "", fatalErr(p.ID(), p.model, "empty completion")
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", fatalErr(p.ID(), p.model, "empty completion")
	}
	return content, nil
}
