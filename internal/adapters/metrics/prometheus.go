// Package metrics expone métricas Prometheus del pipeline de apuestas.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const namespace = "autobet"

// Recorder implementa ports.Metrics sobre un registry de Prometheus.
type Recorder struct {
	registry *prometheus.Registry

	decisions        *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	staked           prometheus.Counter
	estimateLatency  prometheus.Histogram
	estimateFailures prometheus.Counter
	bankroll         prometheus.Gauge
}

// NewRecorder crea un Recorder con un registry propio.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "decisions_total",
			Help:      "Decisions taken by the staking policy, by kind and skip reason",
		}, []string{"kind", "reason"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "outcomes_total",
			Help:      "Bet outcomes, by kind and failure kind",
		}, []string{"kind", "failure"}),
		staked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "staked_mana_total",
			Help:      "Mana staked in executed and dry-run bets",
		}),
		estimateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "estimator",
			Name:      "query_duration_seconds",
			Help:      "Latency of model queries",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		estimateFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estimator",
			Name:      "failures_total",
			Help:      "Model queries that failed or returned an unusable reply",
		}),
		bankroll: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bankroll_mana",
			Help:      "Bankroll available for the current run",
		}),
	}
}

// ObserveEstimate registra la latencia de una consulta al modelo.
func (r *Recorder) ObserveEstimate(d time.Duration, err error) {
	r.estimateLatency.Observe(d.Seconds())
	if err != nil {
		r.estimateFailures.Inc()
	}
}

// ObserveEntry registra la decisión y el resultado de una entrada del audit log.
func (r *Recorder) ObserveEntry(e domain.AuditEntry) {
	r.decisions.WithLabelValues(string(e.DecisionKind), string(e.SkipReason)).Inc()
	r.outcomes.WithLabelValues(string(e.OutcomeKind), string(e.FailureKind)).Inc()
	if e.OutcomeKind == domain.OutcomeExecuted || e.OutcomeKind == domain.OutcomeDryRun {
		r.staked.Add(e.Stake)
	}
}

// SetBankroll actualiza el bankroll disponible.
func (r *Recorder) SetBankroll(v float64) {
	r.bankroll.Set(v)
}

// Registry devuelve el registry subyacente (tests).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Listen reserva addr para Serve; permite fallar antes de arrancar el run.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics.Listen: %w", err)
	}
	return ln, nil
}

// Serve expone /metrics sobre ln hasta que ctx se cancele.
func (r *Recorder) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics.Serve: %w", err)
	}
	return nil
}
