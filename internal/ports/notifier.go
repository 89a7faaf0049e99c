package ports

import (
	"context"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// Notifier presenta el progreso de la ejecución al operador.
type Notifier interface {
	// MarketDecided muestra el análisis y la decisión de un mercado.
	MarketDecided(ctx context.Context, market domain.Market, est *domain.Estimate, entry domain.AuditEntry) error

	// RunFinished muestra el resumen final de la ejecución.
	RunFinished(ctx context.Context, summary domain.RunSummary) error
}
