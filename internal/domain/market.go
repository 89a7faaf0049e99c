package domain

import (
	"strings"
	"time"
)

// MarketStatus es el estado de un mercado en la plataforma.
type MarketStatus string

const (
	StatusOpen     MarketStatus = "open"
	StatusClosed   MarketStatus = "closed"
	StatusResolved MarketStatus = "resolved"
)

// OutcomeTypeBinary es el único tipo de mercado sobre el que se apuesta.
const OutcomeTypeBinary = "BINARY"

// Market representa un mercado de predicción tal como lo devuelve la plataforma.
// Es inmutable durante una pasada del engine.
type Market struct {
	ID              string
	Slug            string
	Question        string
	Description     string // criterio de resolución en texto plano
	URL             string
	CreatorUsername string
	OutcomeType     string  // "BINARY" | "MULTIPLE_CHOICE" | ...
	Probability     float64 // probabilidad implícita actual (0–1)
	Volume          float64
	Liquidity       float64
	UniqueBettors   int
	CloseTime       time.Time
	Status          MarketStatus
}

// IsOpen devuelve true si el mercado acepta apuestas.
func (m Market) IsOpen() bool {
	return m.Status == StatusOpen
}

// IsBinary devuelve true si el mercado es YES/NO.
func (m Market) IsBinary() bool {
	return strings.EqualFold(m.OutcomeType, OutcomeTypeBinary)
}

// Eligible devuelve true si el mercado puede entrar al pipeline de decisión.
func (m Market) Eligible() bool {
	return m.IsOpen() && m.IsBinary()
}

// ResolutionHorizon devuelve el tiempo que falta para que el mercado cierre.
// Devuelve 0 si CloseTime no está definido o ya pasó; quien filtre por
// horizonte debe tratar CloseTime cero como ilimitado.
func (m Market) ResolutionHorizon(now time.Time) time.Duration {
	if m.CloseTime.IsZero() {
		return 0
	}
	d := m.CloseTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// TruncateQuestion devuelve la pregunta truncada a maxLen caracteres.
// Si la pregunta está vacía usa el ID del mercado como fallback.
func TruncateQuestion(question, marketID string, maxLen int) string {
	q := question
	if q == "" {
		q = marketID
	}
	if maxLen > 3 && len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
