package domain

import "time"

// OutcomeKind es el resultado de ejecutar (o no) una decisión.
type OutcomeKind string

const (
	OutcomeExecuted OutcomeKind = "executed"
	OutcomeDryRun   OutcomeKind = "dry-run"
	OutcomeFailed   OutcomeKind = "failed"
	OutcomeSkipped  OutcomeKind = "skipped"
)

// Outcome es el resultado de BetExecutor para una decisión.
// Variante etiquetada: Executed(TradeID) | DryRun | Failed(FailureKind) | Skipped.
type Outcome struct {
	Kind        OutcomeKind
	TradeID     string
	FailureKind FailureKind
	Detail      string
	Attempts    int
	At          time.Time
}

// BetRequest es lo que se envía al colaborador de trading.
type BetRequest struct {
	MarketID  string
	Direction Direction
	Amount    float64
	LimitProb float64
}

// AuditEntry es un registro append-only del audit log.
// Cada decisión (place, skip o fallo) produce exactamente una entrada.
type AuditEntry struct {
	ID         string
	RunID      string
	MarketID   string
	Question   string
	RecordedAt time.Time

	DecisionKind DecisionKind
	SkipReason   SkipReason
	Direction    Direction
	Stake        float64
	LimitProb    float64

	MarketProb float64
	ModelProb  float64
	Confidence Confidence
	Edge       float64
	KellyFull  float64
	Rationale  string
	Model      string

	OutcomeKind OutcomeKind
	TradeID     string
	FailureKind FailureKind
	ErrorDetail string
	Attempts    int
	DryRun      bool
}

// NewAuditEntry arma la entrada a partir de las piezas del pipeline.
// est puede ser nil cuando la decisión se tomó sin estimación (provider-error, horizon).
func NewAuditEntry(runID string, m Market, est *Estimate, d Decision, o Outcome, dryRun bool) AuditEntry {
	e := AuditEntry{
		RunID:        runID,
		MarketID:     m.ID,
		Question:     m.Question,
		RecordedAt:   o.At,
		DecisionKind: d.Kind,
		SkipReason:   d.Reason,
		Direction:    d.Direction,
		Stake:        d.Stake,
		LimitProb:    d.LimitProb,
		MarketProb:   m.Probability,
		Edge:         d.Edge,
		KellyFull:    d.KellyFull,
		OutcomeKind:  o.Kind,
		TradeID:      o.TradeID,
		FailureKind:  o.FailureKind,
		ErrorDetail:  o.Detail,
		Attempts:     o.Attempts,
		DryRun:       dryRun,
	}
	if est != nil {
		e.ModelProb = est.Probability
		e.Confidence = est.Confidence
		e.Rationale = est.Rationale
		e.Model = est.Model
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	return e
}
