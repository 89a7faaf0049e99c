// Package llm contiene los clientes de modelos de lenguaje (OpenRouter, Gemini).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/autobet/internal/ports"
)

const (
	// Un request por segundo basta: cada estimación tarda decenas de segundos.
	requestsPerSec = 1
	requestsBurst  = 2

	maxRetries    = 2
	baseRetryWait = 2 * time.Second

	// Los modelos con búsqueda online pueden tardar varios minutos.
	defaultTimeout = 5 * time.Minute
)

// Provider identifica el backend del modelo.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
)

// Config es la configuración común de los clientes.
type Config struct {
	Provider Provider
	Model    string
	APIKey   string
	BaseURL  string // vacío = producción
	Timeout  time.Duration

	RetryWait time.Duration // espera base entre reintentos; 0 = default
}

// New crea el LLMProvider correspondiente a cfg.Provider.
func New(cfg Config) (ports.LLMProvider, error) {
	switch Provider(strings.ToLower(string(cfg.Provider))) {
	case ProviderOpenRouter, "":
		return NewOpenRouter(cfg), nil
	case ProviderGemini:
		return NewGemini(cfg), nil
	}
	return nil, fmt.Errorf("llm.New: unknown provider %q", cfg.Provider)
}

// transport es el HTTP client compartido con rate limiting y retries.
type transport struct {
	http      *http.Client
	limiter   *rate.Limiter
	retryWait time.Duration
}

func newTransport(cfg Config) *transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = baseRetryWait
	}
	return &transport{
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(requestsPerSec, requestsBurst),
		retryWait: wait,
	}
}

// postJSON hace un POST JSON con retries en 429 y 5xx.
// Consultar el modelo no tiene efectos laterales, así que repetir es seguro.
func (t *transport) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t.sleep(ctx, attempt-1)
		}
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("request: %w", err)
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, errorMessage(resp.Body))
			resp.Body.Close()
			slog.Warn("model request failed, retrying", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}

		if resp.StatusCode >= 400 {
			msg := errorMessage(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("http %d: %s", resp.StatusCode, msg)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

func (t *transport) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * t.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// errorMessage extrae el mensaje de los envelopes de error habituales:
// {"error":{"message":..,"code":..}} o {"message":..}.
func errorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	var env struct {
		Error *struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &env) == nil {
		if env.Error != nil && env.Error.Message != "" {
			if env.Error.Code != nil {
				return fmt.Sprintf("%s (code: %v)", env.Error.Message, env.Error.Code)
			}
			return env.Error.Message
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return strings.TrimSpace(string(body))
}
