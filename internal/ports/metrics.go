package ports

import (
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// Metrics registra contadores y latencias del pipeline.
type Metrics interface {
	ObserveEstimate(d time.Duration, err error)
	ObserveEntry(entry domain.AuditEntry)
	SetBankroll(v float64)
}

// NopMetrics descarta todas las métricas.
type NopMetrics struct{}

func (NopMetrics) ObserveEstimate(time.Duration, error) {}
func (NopMetrics) ObserveEntry(domain.AuditEntry)       {}
func (NopMetrics) SetBankroll(float64)                  {}
