package ports

import (
	"context"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// MarketSource obtiene mercados de la plataforma de predicción.
type MarketSource interface {
	// SearchMarkets devuelve hasta limit mercados que coinciden con term.
	SearchMarkets(ctx context.Context, term string, limit int) ([]domain.Market, error)

	// FetchMarket devuelve el detalle completo de un mercado (por slug o ID).
	FetchMarket(ctx context.Context, slugOrID string) (domain.Market, error)
}
