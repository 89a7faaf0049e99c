package manifold

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const siteURL = "https://manifold.markets"

// mapLiteMarkets convierte los resultados de búsqueda a domain.Market.
func mapLiteMarkets(raw []liteMarket, now time.Time) []domain.Market {
	markets := make([]domain.Market, 0, len(raw))
	for _, r := range raw {
		markets = append(markets, mapLiteMarket(r, now))
	}
	return markets
}

// mapLiteMarket convierte un liteMarket DTO a domain.Market (sin descripción).
func mapLiteMarket(r liteMarket, now time.Time) domain.Market {
	m := domain.Market{
		ID:              r.ID,
		Slug:            r.Slug,
		Question:        r.Question,
		URL:             r.URL,
		CreatorUsername: r.CreatorUsername,
		OutcomeType:     r.OutcomeType,
		Probability:     r.Probability,
		Volume:          r.Volume,
		Liquidity:       r.TotalLiquidity,
		UniqueBettors:   r.UniqueBettorCount,
		Status:          domain.StatusOpen,
	}
	if r.CloseTime > 0 {
		m.CloseTime = time.UnixMilli(r.CloseTime).UTC()
	}
	if m.URL == "" && r.Slug != "" {
		m.URL = siteURL + "/market/" + r.Slug
	}

	switch {
	case r.IsResolved:
		m.Status = domain.StatusResolved
	case !m.CloseTime.IsZero() && !m.CloseTime.After(now):
		m.Status = domain.StatusClosed
	}
	return m
}

// mapFullMarket añade la descripción en texto plano.
func mapFullMarket(r fullMarket, now time.Time) domain.Market {
	m := mapLiteMarket(r.liteMarket, now)
	m.Description = descriptionText(r.Description)
	if m.Description == "" {
		m.Description = strings.TrimSpace(r.TextDescription)
	}
	return m
}

// descriptionText aplana la descripción (string o rich-text) a texto plano.
// Los párrafos se unen con un espacio.
func descriptionText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var doc richText
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var parts []string
	collectText(doc, &parts)
	return strings.Join(parts, " ")
}

func collectText(n richText, parts *[]string) {
	if n.Type == "text" {
		if t := strings.TrimSpace(n.Text); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for _, c := range n.Content {
		collectText(c, parts)
	}
}
