package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultOpenRouterBase  = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "google/gemini-2.5-pro:online"
	appTitle               = "Manifold AutoBet"
	appReferer             = "http://localhost"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// OpenRouter es un cliente de la API chat-completions de OpenRouter.
type OpenRouter struct {
	t       *transport
	baseURL string
	apiKey  string
	model   string
}

// NewOpenRouter crea un cliente de OpenRouter.
func NewOpenRouter(cfg Config) *OpenRouter {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenRouterBase
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenRouterModel
	}
	return &OpenRouter{
		t:       newTransport(cfg),
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
	}
}

// Model devuelve el identificador del modelo.
func (o *OpenRouter) Model() string { return o.model }

// Query envía el prompt como único mensaje de usuario y devuelve la respuesta completa.
func (o *OpenRouter) Query(ctx context.Context, prompt string) (string, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"HTTP-Referer":  appReferer,
		"X-Title":       appTitle,
	}
	body := chatRequest{
		Model:    o.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}

	var out chatResponse
	if err := o.t.postJSON(ctx, o.baseURL+"/chat/completions", headers, body, &out); err != nil {
		return "", fmt.Errorf("llm.OpenRouter.Query: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("llm.OpenRouter.Query: empty response")
	}
	return out.Choices[0].Message.Content, nil
}
