// Package runner orquesta una ejecución completa: búsqueda de mercados,
// estimación, decisión, ejecución y registro en el audit log.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/alejandrodnm/autobet/internal/policy"
	"github.com/alejandrodnm/autobet/internal/ports"
)

const (
	defaultMarketLimit = 50
	finalizeTimeout    = 10 * time.Second
)

// Estimator produce la estimación del modelo para un mercado.
type Estimator interface {
	Estimate(ctx context.Context, m domain.Market) (domain.Estimate, error)
}

// Executor ejecuta una decisión y devuelve siempre un Outcome.
type Executor interface {
	Execute(ctx context.Context, m domain.Market, d domain.Decision) domain.Outcome
}

// Config contiene la configuración de una ejecución.
type Config struct {
	Query       string
	MarketLimit int
	DryRun      bool
	Bankroll    float64       // > 0 sobreescribe el saldo de la cuenta
	Pause       time.Duration // espera entre mercados
	Policy      policy.Config
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		MarketLimit: defaultMarketLimit,
		Pause:       time.Second,
		Policy:      policy.DefaultConfig(),
	}
}

// Controller es el RunController: un único worker que procesa los mercados
// en secuencia.
type Controller struct {
	cfg       Config
	markets   ports.MarketSource
	trader    ports.Trader
	estimator Estimator
	executor  Executor
	audit     ports.AuditLog
	notifier  ports.Notifier
	metrics   ports.Metrics
	now       func() time.Time

	state    domain.RunState
	runID    string
	bankroll float64
}

// New crea un Controller con todas las dependencias inyectadas.
// metrics puede ser nil.
func New(
	cfg Config,
	markets ports.MarketSource,
	trader ports.Trader,
	estimator Estimator,
	executor Executor,
	audit ports.AuditLog,
	notifier ports.Notifier,
	metrics ports.Metrics,
) *Controller {
	if cfg.MarketLimit <= 0 {
		cfg.MarketLimit = defaultMarketLimit
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Controller{
		cfg:       cfg,
		markets:   markets,
		trader:    trader,
		estimator: estimator,
		executor:  executor,
		audit:     audit,
		notifier:  notifier,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
		state:     domain.StateIdle,
	}
}

// SetClock reemplaza el reloj (tests).
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// State devuelve el estado actual del controller.
func (c *Controller) State() domain.RunState {
	return c.state
}

// Run ejecuta una pasada completa sobre los mercados de la búsqueda.
//
// stop se consulta al inicio de cada mercado y antes de ejecutar la apuesta;
// un mercado que ya pasó la ejecución se termina de registrar. ctx es el
// contexto "duro": solo se cancela para forzar la salida.
//
// Devuelve error solo ante fallos fatales (audit log no escribible, mercados
// o saldo no disponibles). Los fallos por mercado se registran y se sigue.
func (c *Controller) Run(ctx context.Context, stop *StopFlag) (domain.RunSummary, error) {
	c.runID = uuid.NewString()
	summary := domain.RunSummary{RunID: c.runID, Query: c.cfg.Query, StartedAt: c.now()}
	defer c.setState(domain.StateStopped)

	slog.Info("run starting",
		"run_id", c.runID,
		"query", c.cfg.Query,
		"limit", c.cfg.MarketLimit,
		"dry_run", c.cfg.DryRun,
	)

	c.setState(domain.StateScanning)
	bankroll, err := c.initialBankroll(ctx)
	if err != nil {
		return summary, err
	}
	c.bankroll = bankroll
	summary.StartBankroll = bankroll
	c.metrics.SetBankroll(bankroll)

	markets, err := c.markets.SearchMarkets(ctx, c.cfg.Query, c.cfg.MarketLimit)
	if err != nil {
		return summary, fmt.Errorf("runner.Run: search markets: %w", err)
	}
	summary.MarketsFound = len(markets)
	slog.Info("markets found", "count", len(markets), "bankroll", bankroll)

	for i, m := range markets {
		if stop.Stopped() || ctx.Err() != nil {
			summary.Cancelled = true
			slog.Info("run cancelled", "processed", summary.Processed, "remaining", len(markets)-i)
			break
		}

		c.setState(domain.StateScanning)
		entry, err := c.processMarket(ctx, stop, m)
		if err != nil {
			c.finalize(ctx, &summary)
			return summary, err
		}
		if entry != nil {
			summary.Add(*entry)
		}

		if i < len(markets)-1 && c.cfg.Pause > 0 {
			select {
			case <-time.After(c.cfg.Pause):
			case <-stop.Done():
			case <-ctx.Done():
			}
		}
	}

	if err := c.finalize(ctx, &summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// processMarket recorre el ciclo de un mercado. Devuelve nil, nil si el
// mercado no entra al pipeline o si el ciclo se abandonó por cancelación.
func (c *Controller) processMarket(ctx context.Context, stop *StopFlag, lite domain.Market) (*domain.AuditEntry, error) {
	log := slog.With("market_id", lite.ID)

	if !lite.Eligible() {
		log.Debug("market not eligible", "type", lite.OutcomeType, "status", lite.Status)
		return nil, nil
	}

	decided, err := c.audit.HasDecided(ctx, c.runID, lite.ID)
	if err != nil {
		return nil, fmt.Errorf("runner.processMarket: %w", err)
	}
	if decided {
		log.Info("market already decided, skipping", "reason", domain.SkipAlreadyDecided)
		return nil, nil
	}

	m := c.fetchDetail(ctx, lite)
	if !m.Eligible() {
		log.Debug("market no longer eligible", "status", m.Status)
		return nil, nil
	}

	var est *domain.Estimate
	var d domain.Decision
	var detail string

	if !policy.CheckHorizon(m, c.now(), c.cfg.Policy) {
		d = domain.Skip(m.ID, domain.SkipHorizonExceeded)
	} else {
		c.setState(domain.StateEstimating)
		start := time.Now()
		e, err := c.estimator.Estimate(ctx, m)
		c.metrics.ObserveEstimate(time.Since(start), err)

		if err != nil {
			log.Warn("estimate failed", "err", err)
			d = domain.Skip(m.ID, domain.SkipProviderError)
			detail = err.Error()
		} else {
			est = &e
			c.setState(domain.StateDeciding)
			d = policy.Decide(m, e, c.bankroll, c.now(), c.cfg.Policy)
		}
	}

	if stop.Stopped() {
		log.Info("stop requested before execution, market abandoned")
		return nil, nil
	}

	c.setState(domain.StateExecuting)
	outcome := c.executor.Execute(ctx, m, d)
	if outcome.Detail == "" {
		outcome.Detail = detail
	}

	c.setState(domain.StateLogging)
	entry := domain.NewAuditEntry(c.runID, m, est, d, outcome, c.cfg.DryRun)
	entry.ID = uuid.NewString()

	// el registro debe completarse aunque se haya forzado la salida
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := c.audit.Record(recCtx, entry); err != nil {
		return nil, fmt.Errorf("runner.processMarket: record %s: %w", m.ID, err)
	}

	c.metrics.ObserveEntry(entry)
	if outcome.Kind == domain.OutcomeExecuted || outcome.Kind == domain.OutcomeDryRun {
		c.bankroll -= d.Stake
		c.metrics.SetBankroll(c.bankroll)
	}

	log.Info("market decided",
		"decision", d.String(),
		"outcome", outcome.Kind,
		"edge", d.Edge,
		"bankroll", c.bankroll,
	)
	if err := c.notifier.MarketDecided(ctx, m, est, entry); err != nil {
		log.Warn("notifier error", "err", err)
	}
	return &entry, nil
}

// fetchDetail trae el mercado completo (con criterio de resolución).
// Si falla se sigue con los datos de la búsqueda.
func (c *Controller) fetchDetail(ctx context.Context, lite domain.Market) domain.Market {
	key := lite.Slug
	if key == "" {
		key = lite.ID
	}
	full, err := c.markets.FetchMarket(ctx, key)
	if err != nil {
		slog.Warn("market detail unavailable, using search data", "market_id", lite.ID, "err", err)
		return lite
	}
	if full.ID == "" {
		full.ID = lite.ID
	}
	return full
}

func (c *Controller) initialBankroll(ctx context.Context) (float64, error) {
	if c.cfg.Bankroll > 0 {
		return c.cfg.Bankroll, nil
	}
	bal, err := c.trader.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("runner.Run: fetch balance: %w", err)
	}
	return bal, nil
}

// finalize persiste y notifica el resumen de la ejecución.
func (c *Controller) finalize(ctx context.Context, summary *domain.RunSummary) error {
	summary.FinishedAt = c.now()
	summary.EndBankroll = c.bankroll

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var errs []error
	if err := c.audit.SaveRun(fctx, *summary); err != nil {
		errs = append(errs, fmt.Errorf("runner.finalize: %w", err))
	}
	if err := c.notifier.RunFinished(fctx, *summary); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	slog.Info("run finished",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"placed", summary.Placed,
		"dry_runs", summary.DryRuns,
		"failed", summary.Failed,
		"staked", summary.Staked,
		"cancelled", summary.Cancelled,
	)
	return errors.Join(errs...)
}

func (c *Controller) setState(s domain.RunState) {
	if c.state == s {
		return
	}
	slog.Debug("state", "from", c.state, "to", s)
	c.state = s
}
