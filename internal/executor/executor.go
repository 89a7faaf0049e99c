// Package executor convierte decisiones Place en apuestas reales (o simuladas).
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/alejandrodnm/autobet/internal/ports"
)

const (
	defaultRetryLimit  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 10 * time.Second

	// margen por diferencia de reloj con la plataforma al reconciliar
	clockSkew = 30 * time.Second
)

// Config controla el modo simulación y la política de reintentos.
type Config struct {
	DryRun      bool
	RetryLimit  int // reintentos tras el primer intento
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig devuelve la configuración de producción.
func DefaultConfig() Config {
	return Config{
		RetryLimit:  defaultRetryLimit,
		BaseBackoff: defaultBaseBackoff,
		MaxBackoff:  defaultMaxBackoff,
	}
}

// SleepFunc espera d o hasta que ctx termine.
type SleepFunc func(ctx context.Context, d time.Duration)

// Option configura un Executor.
type Option func(*Executor)

// WithSleep reemplaza la espera entre reintentos (tests).
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) { e.sleep = fn }
}

// WithClock reemplaza el reloj usado para Outcome.At y la reconciliación.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// Executor es el BetExecutor.
type Executor struct {
	trader ports.Trader
	cfg    Config
	sleep  SleepFunc
	now    func() time.Time
}

// New crea un Executor sobre el Trader dado.
func New(trader ports.Trader, cfg Config, opts ...Option) *Executor {
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	e := &Executor{
		trader: trader,
		cfg:    cfg,
		sleep:  sleepCtx,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DryRun indica si el executor está en modo simulación.
func (e *Executor) DryRun() bool {
	return e.cfg.DryRun
}

// Execute ejecuta una decisión y devuelve siempre un Outcome; nunca error.
//
// Skip → skipped y DryRun → dry-run sin tocar la plataforma. En otro caso se
// envía una apuesta por intento. Los fallos transitorios que seguro no se
// aplicaron se reintentan; los ambiguos se reconcilian con FindBet antes de
// reintentar, para no duplicar la apuesta.
func (e *Executor) Execute(ctx context.Context, m domain.Market, d domain.Decision) domain.Outcome {
	if !d.IsPlace() {
		return domain.Outcome{Kind: domain.OutcomeSkipped, At: e.now()}
	}
	if e.cfg.DryRun {
		slog.Info("dry run: bet not sent",
			"market_id", m.ID,
			"direction", d.Direction,
			"stake", d.Stake,
			"limit", d.LimitProb,
		)
		return domain.Outcome{Kind: domain.OutcomeDryRun, At: e.now()}
	}

	req := domain.BetRequest{
		MarketID:  m.ID,
		Direction: d.Direction,
		Amount:    d.Stake,
		LimitProb: d.LimitProb,
	}
	since := e.now().Add(-clockSkew)

	var lastErr error
	for attempt := 0; attempt <= e.cfg.RetryLimit; attempt++ {
		if attempt > 0 {
			e.sleep(ctx, e.backoff(attempt-1))
			if ctx.Err() != nil {
				return e.failed(m.ID, domain.FailureTransient, attempt, fmt.Errorf("aborted before retry: %w", ctx.Err()))
			}
		}

		tradeID, err := e.trader.PlaceBet(ctx, req)
		if err == nil {
			slog.Info("bet placed",
				"market_id", m.ID,
				"trade_id", tradeID,
				"direction", d.Direction,
				"stake", d.Stake,
				"attempts", attempt+1,
			)
			return domain.Outcome{Kind: domain.OutcomeExecuted, TradeID: tradeID, Attempts: attempt + 1, At: e.now()}
		}
		lastErr = err

		var pe *domain.PlatformError
		if !errors.As(err, &pe) {
			return e.failed(m.ID, domain.FailureInternal, attempt+1, err)
		}
		if !pe.Transient {
			return e.failed(m.ID, pe.Kind, attempt+1, err)
		}

		if pe.Applied == domain.AppliedUnknown {
			id, found, ferr := e.trader.FindBet(ctx, m.ID, since)
			if ferr != nil {
				return e.failed(m.ID, domain.FailureAmbiguous, attempt+1,
					fmt.Errorf("%v; reconciliation failed: %w", err, ferr))
			}
			if found {
				slog.Info("bet reconciled after ambiguous attempt",
					"market_id", m.ID, "trade_id", id, "attempts", attempt+1)
				return domain.Outcome{Kind: domain.OutcomeExecuted, TradeID: id, Attempts: attempt + 1, At: e.now()}
			}
		}

		slog.Warn("transient bet failure",
			"market_id", m.ID,
			"attempt", attempt+1,
			"err", err,
		)
	}

	return e.failed(m.ID, domain.FailureRetriesExhausted, e.cfg.RetryLimit+1, lastErr)
}

func (e *Executor) failed(marketID string, kind domain.FailureKind, attempts int, err error) domain.Outcome {
	slog.Error("bet failed", "market_id", marketID, "kind", kind, "attempts", attempts, "err", err)
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return domain.Outcome{
		Kind:        domain.OutcomeFailed,
		FailureKind: kind,
		Detail:      detail,
		Attempts:    attempts,
		At:          e.now(),
	}
}

// backoff devuelve base·2^attempt acotado por MaxBackoff.
func (e *Executor) backoff(attempt int) time.Duration {
	wait := time.Duration(math.Pow(2, float64(attempt))) * e.cfg.BaseBackoff
	if wait > e.cfg.MaxBackoff || wait <= 0 {
		return e.cfg.MaxBackoff
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
