package domain

import "fmt"

// Direction es el lado de la apuesta.
type Direction string

const (
	DirectionYes Direction = "YES"
	DirectionNo  Direction = "NO"
)

// DecisionKind distingue las dos variantes de Decision.
type DecisionKind string

const (
	DecisionPlace DecisionKind = "place"
	DecisionSkip  DecisionKind = "skip"
)

// SkipReason explica por qué no se apuesta en un mercado.
type SkipReason string

const (
	SkipEdgeBelowThreshold       SkipReason = "edge-below-threshold"
	SkipConfidenceBelowThreshold SkipReason = "confidence-below-threshold"
	SkipHorizonExceeded          SkipReason = "horizon-exceeded"
	SkipAlreadyDecided           SkipReason = "already-decided"
	SkipStakeBelowMinimum        SkipReason = "stake-below-minimum"
	SkipProviderError            SkipReason = "provider-error"
)

// Decision es el resultado de la política de staking para un mercado.
// Variante etiquetada: Place(Direction, Stake, LimitProb) | Skip(Reason).
// Los campos de métricas se rellenan en la medida en que se calcularon,
// para que el audit log pueda reconstruir la decisión.
type Decision struct {
	Kind     DecisionKind
	MarketID string

	// Place
	Direction Direction
	Stake     float64
	LimitProb float64

	// Skip
	Reason SkipReason

	// Métricas de la decisión
	MarketProb float64
	ModelProb  float64
	Edge       float64
	KellyFull  float64
}

// Place construye una decisión de apostar.
func Place(marketID string, dir Direction, stake, limitProb float64) Decision {
	return Decision{
		Kind:      DecisionPlace,
		MarketID:  marketID,
		Direction: dir,
		Stake:     stake,
		LimitProb: limitProb,
	}
}

// Skip construye una decisión de no apostar.
func Skip(marketID string, reason SkipReason) Decision {
	return Decision{Kind: DecisionSkip, MarketID: marketID, Reason: reason}
}

// IsPlace devuelve true si la decisión implica una apuesta.
func (d Decision) IsPlace() bool {
	return d.Kind == DecisionPlace
}

// String devuelve una representación corta para logs y consola.
func (d Decision) String() string {
	if d.IsPlace() {
		return fmt.Sprintf("place %s M$%.2f @%.2f", d.Direction, d.Stake, d.LimitProb)
	}
	return fmt.Sprintf("skip (%s)", d.Reason)
}
