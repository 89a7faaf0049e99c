// Package policy decide si apostar en un mercado y cuánto, aplicando
// Kelly fraccional sobre la estimación del modelo.
package policy

import (
	"math"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const (
	defaultKellyFraction       = 0.25
	defaultMinEdge             = 0.01
	defaultResolutionMonths    = 1
	defaultMaxStakePerBet      = 50
	defaultMaxBankrollFraction = 0.10
	defaultMinStake            = 1
	defaultSlippage            = 0.01

	daysPerMonth = 30

	minLimitProb = 0.01
	maxLimitProb = 0.99
)

// Config son los umbrales de la política de staking.
type Config struct {
	KellyFraction         float64 // 0 < x ≤ 1
	MinEdge               float64 // en unidades de probabilidad
	MinConfidence         domain.Confidence
	ResolutionMonthsLimit int
	MaxStakePerBet        float64
	MaxBankrollFraction   float64
	MinStake              float64
	Slippage              float64
}

// DefaultConfig devuelve los valores por defecto del bot original.
func DefaultConfig() Config {
	return Config{
		KellyFraction:         defaultKellyFraction,
		MinEdge:               defaultMinEdge,
		MinConfidence:         domain.ConfidenceMedium,
		ResolutionMonthsLimit: defaultResolutionMonths,
		MaxStakePerBet:        defaultMaxStakePerBet,
		MaxBankrollFraction:   defaultMaxBankrollFraction,
		MinStake:              defaultMinStake,
		Slippage:              defaultSlippage,
	}
}

// HorizonLimit devuelve el horizonte máximo de resolución permitido.
func (c Config) HorizonLimit() time.Duration {
	return time.Duration(c.ResolutionMonthsLimit) * daysPerMonth * 24 * time.Hour
}

// CheckHorizon devuelve false si el mercado se resuelve más allá del límite.
// Un mercado sin fecha de cierre tiene horizonte ilimitado.
// El controller lo usa antes de gastar una llamada al modelo.
func CheckHorizon(m domain.Market, now time.Time, cfg Config) bool {
	if m.CloseTime.IsZero() {
		return false
	}
	return m.ResolutionHorizon(now) <= cfg.HorizonLimit()
}

// Decide es la política de staking: función pura de sus entradas.
//
// Orden de los filtros: edge, confianza, horizonte. Solo si pasan los tres
// se calcula el stake Kelly y se aplican los límites.
func Decide(m domain.Market, est domain.Estimate, bankroll float64, now time.Time, cfg Config) domain.Decision {
	p := m.Probability
	q := est.Probability

	metrics := func(d domain.Decision) domain.Decision {
		d.MarketProb = p
		d.ModelProb = q
		d.Edge = math.Abs(q - p)
		return d
	}

	// p en los extremos: no hay precio contra el que apostar (y Kelly dividiría por cero).
	if p <= 0 || p >= 1 || math.IsNaN(p) {
		return metrics(domain.Skip(m.ID, domain.SkipEdgeBelowThreshold))
	}

	edge := math.Abs(q - p)
	if edge < cfg.MinEdge || edge == 0 {
		return metrics(domain.Skip(m.ID, domain.SkipEdgeBelowThreshold))
	}

	if est.Confidence < cfg.MinConfidence {
		return metrics(domain.Skip(m.ID, domain.SkipConfidenceBelowThreshold))
	}

	if !CheckHorizon(m, now, cfg) {
		return metrics(domain.Skip(m.ID, domain.SkipHorizonExceeded))
	}

	dir := domain.DirectionYes
	if q < p {
		dir = domain.DirectionNo
	}
	full := KellyFraction(q, p, dir)

	stake := bankroll * full * cfg.KellyFraction
	stake = math.Min(stake, cfg.MaxStakePerBet)
	stake = math.Min(stake, bankroll*cfg.MaxBankrollFraction)
	stake = math.Max(stake, 0)

	if stake <= 0 || stake < cfg.MinStake {
		d := metrics(domain.Skip(m.ID, domain.SkipStakeBelowMinimum))
		d.KellyFull = full
		return d
	}

	d := metrics(domain.Place(m.ID, dir, stake, LimitProb(q, dir, cfg.Slippage)))
	d.KellyFull = full
	return d
}

// KellyFraction devuelve la fracción Kelly completa para apostar en dir
// con probabilidad estimada q contra precio p. p debe estar en (0,1).
func KellyFraction(q, p float64, dir domain.Direction) float64 {
	if dir == domain.DirectionYes {
		return (q - p) / (1 - p)
	}
	return (p - q) / p
}

// LimitProb es el precio límite de la orden: la estimación del modelo
// desplazada por el slippage en contra de quien apuesta.
func LimitProb(q float64, dir domain.Direction, slippage float64) float64 {
	limit := q - slippage
	if dir == domain.DirectionNo {
		limit = q + slippage
	}
	return math.Min(math.Max(limit, minLimitProb), maxLimitProb)
}
