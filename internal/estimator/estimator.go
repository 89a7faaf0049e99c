// Package estimator obtiene del modelo una probabilidad calibrada para cada mercado.
package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/alejandrodnm/autobet/internal/ports"
)

const defaultTimeout = 5 * time.Minute

// Estimator es el ProbabilityEstimator: prompt, llamada al modelo y validación.
type Estimator struct {
	llm     ports.LLMProvider
	timeout time.Duration
}

// New crea un Estimator. Si timeout es 0 se usa el default (los modelos con
// búsqueda online pueden tardar minutos).
func New(llm ports.LLMProvider, timeout time.Duration) *Estimator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Estimator{llm: llm, timeout: timeout}
}

// Model devuelve el identificador del modelo subyacente.
func (e *Estimator) Model() string {
	return e.llm.Model()
}

// Estimate consulta al modelo sobre un mercado. Todo error devuelto envuelve
// domain.ErrProvider: el llamador lo trata como skip, nunca como fatal.
func (e *Estimator) Estimate(ctx context.Context, m domain.Market) (domain.Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	text, err := e.llm.Query(ctx, BuildPrompt(m))
	if err != nil {
		return domain.Estimate{}, fmt.Errorf("estimator.Estimate: query %s: %w: %v", m.ID, domain.ErrProvider, err)
	}
	slog.Debug("model replied", "market_id", m.ID, "model", e.llm.Model(), "chars", len(text), "took", time.Since(start))

	reply, err := ParseReply(text)
	if err != nil {
		return domain.Estimate{}, fmt.Errorf("estimator.Estimate: market %s: %w", m.ID, err)
	}

	return domain.Estimate{
		MarketID:    m.ID,
		Probability: reply.Probability,
		Confidence:  reply.Confidence,
		Rationale:   reply.Rationale,
		Model:       e.llm.Model(),
	}, nil
}
