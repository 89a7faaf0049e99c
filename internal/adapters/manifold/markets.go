package manifold

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// SearchMarkets busca mercados por término. Devuelve mercados de cualquier
// tipo y estado; el filtrado de elegibilidad lo hace el controller.
func (c *Client) SearchMarkets(ctx context.Context, term string, limit int) ([]domain.Market, error) {
	q := url.Values{}
	q.Set("term", term)
	q.Set("limit", strconv.Itoa(limit))

	var raw []liteMarket
	if err := c.get(ctx, "/search-markets?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("manifold.SearchMarkets: %w", err)
	}

	slog.Debug("markets found", "term", term, "count", len(raw))
	return mapLiteMarkets(raw, time.Now()), nil
}

// FetchMarket devuelve el mercado completo, buscando primero por slug y,
// si no existe, por ID.
func (c *Client) FetchMarket(ctx context.Context, slugOrID string) (domain.Market, error) {
	var raw fullMarket
	err := c.get(ctx, "/slug/"+url.PathEscape(slugOrID), &raw)
	if isNotFound(err) {
		err = c.get(ctx, "/market/"+url.PathEscape(slugOrID), &raw)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("manifold.FetchMarket: %s: %w", slugOrID, err)
	}
	return mapFullMarket(raw, time.Now()), nil
}
