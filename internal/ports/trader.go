package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// Trader ejecuta apuestas en la plataforma.
type Trader interface {
	// PlaceBet envía una apuesta y devuelve el ID del trade.
	// Los fallos se devuelven como *domain.PlatformError.
	PlaceBet(ctx context.Context, req domain.BetRequest) (string, error)

	// FindBet busca una apuesta propia en el mercado creada después de since.
	// Se usa para reconciliar intentos cuyo resultado es desconocido.
	FindBet(ctx context.Context, marketID string, since time.Time) (tradeID string, found bool, err error)

	// Balance devuelve el saldo disponible de la cuenta.
	Balance(ctx context.Context) (float64, error)
}
