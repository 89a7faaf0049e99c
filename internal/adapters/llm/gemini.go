package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultGeminiBase  = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.5-pro"
)

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Tools    []geminiTool    `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Gemini es un cliente de generateContent con la herramienta de búsqueda de Google.
type Gemini struct {
	t       *transport
	baseURL string
	apiKey  string
	model   string
}

// NewGemini crea un cliente de Gemini.
func NewGemini(cfg Config) *Gemini {
	base := cfg.BaseURL
	if base == "" {
		base = defaultGeminiBase
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{
		t:       newTransport(cfg),
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
	}
}

// Model devuelve el identificador del modelo.
func (g *Gemini) Model() string { return g.model }

// Query envía el prompt y concatena el texto de todas las partes del primer candidato.
func (g *Gemini) Query(ctx context.Context, prompt string) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	headers := map[string]string{"x-goog-api-key": g.apiKey}
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		Tools:    []geminiTool{{GoogleSearch: &struct{}{}}},
	}

	var out geminiResponse
	if err := g.t.postJSON(ctx, endpoint, headers, body, &out); err != nil {
		return "", fmt.Errorf("llm.Gemini.Query: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("llm.Gemini.Query: no candidates")
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("llm.Gemini.Query: empty response (finish reason %s)", out.Candidates[0].FinishReason)
	}
	return b.String(), nil
}
