package domain

import "time"

// RunState es el estado del RunController.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateScanning   RunState = "scanning"
	StateEstimating RunState = "estimating"
	StateDeciding   RunState = "deciding"
	StateExecuting  RunState = "executing"
	StateLogging    RunState = "logging"
	StateStopped    RunState = "stopped"
)

// RunSummary resume una ejecución completa del engine.
type RunSummary struct {
	RunID      string
	Query      string
	StartedAt  time.Time
	FinishedAt time.Time

	MarketsFound int
	Processed    int
	Placed       int
	DryRuns      int
	Skipped      int
	Failed       int
	Staked       float64

	StartBankroll float64
	EndBankroll   float64
	Cancelled     bool
	Entries       []AuditEntry
}

// Add acumula una entrada del audit log en los contadores.
func (s *RunSummary) Add(e AuditEntry) {
	s.Processed++
	s.Entries = append(s.Entries, e)
	switch e.OutcomeKind {
	case OutcomeExecuted:
		s.Placed++
		s.Staked += e.Stake
	case OutcomeDryRun:
		s.DryRuns++
		s.Staked += e.Stake
	case OutcomeFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}
