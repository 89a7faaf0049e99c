package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/autobet/config"
	"github.com/alejandrodnm/autobet/internal/adapters/llm"
	"github.com/alejandrodnm/autobet/internal/adapters/manifold"
	"github.com/alejandrodnm/autobet/internal/adapters/metrics"
	"github.com/alejandrodnm/autobet/internal/adapters/notify"
	"github.com/alejandrodnm/autobet/internal/adapters/storage"
	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/alejandrodnm/autobet/internal/estimator"
	"github.com/alejandrodnm/autobet/internal/executor"
	"github.com/alejandrodnm/autobet/internal/policy"
	"github.com/alejandrodnm/autobet/internal/runner"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file (.yaml or .toml)")
	query := flag.String("query", "", "market search term (overrides config)")
	dryRun := flag.Bool("dry-run", false, "decide and audit but never place bets")
	bankroll := flag.Float64("bankroll", 0, "bankroll in mana (overrides account balance)")
	limit := flag.Int("limit", 0, "max markets to fetch (overrides config)")
	verbose := flag.Bool("verbose", false, "debug logs + full per-market panel")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print audit history and recent runs, then exit")
	since := flag.Duration("since", 7*24*time.Hour, "history window for -report")
	exportCSV := flag.String("export-csv", "", "export the audit log as CSV to this path, then exit")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); err != nil && !isFlagSet("config") {
		// Sin config.yaml por defecto: solo entorno y defaults.
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", path)
		os.Exit(1)
	}

	if *query != "" {
		cfg.Betting.SearchTerm = *query
	}
	if *dryRun {
		cfg.Betting.DryRun = true
	}
	if *bankroll > 0 {
		cfg.Betting.Bankroll = *bankroll
	}
	if *limit > 0 {
		cfg.Betting.MarketLimit = *limit
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewAuditStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open audit log", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole(*verbose)

	if *report || *exportCSV != "" {
		if err := runReport(context.Background(), store, console, *report, *since, *exportCSV); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, store, console, os.Stdin); err != nil {
		slog.Error("run aborted", "err", err)
		os.Exit(1)
	}
}

// run arma el grafo de dependencias y ejecuta una pasada del controller.
// in es la entrada del operador ("q" detiene el run).
func run(cfg *config.Config, store *storage.AuditStore, console *notify.Console, in io.Reader) error {
	platform := manifold.NewClient(cfg.Manifold.BaseURL, cfg.Manifold.APIKey)

	provider, err := llm.New(llm.Config{
		Provider: llm.Provider(cfg.LLM.Provider),
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		return err
	}

	est := estimator.New(provider, cfg.LLM.Timeout)
	exec := executor.New(platform, executor.Config{
		DryRun:      cfg.Betting.DryRun,
		RetryLimit:  cfg.Executor.RetryLimit,
		BaseBackoff: cfg.Executor.BaseBackoff,
		MaxBackoff:  cfg.Executor.MaxBackoff,
	})
	recorder := metrics.NewRecorder()

	// el puerto se reserva antes del run: un fallo aquí no deja apuestas a medias
	var metricsLn net.Listener
	if cfg.Metrics.Addr != "" {
		metricsLn, err = metrics.Listen(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
	}

	ctrl := runner.New(runnerConfig(cfg), platform, platform, est, exec, store, console, recorder)

	slog.Info("autobet starting",
		"query", cfg.Betting.SearchTerm,
		"model", est.Model(),
		"dry_run", cfg.Betting.DryRun,
		"kelly_fraction", cfg.Betting.KellyFraction,
		"min_edge", cfg.Betting.MinEdge,
		"dsn", cfg.Storage.DSN,
	)
	slog.Info("type q + Enter to stop after the current market")

	// runCtx solo se cancela con la segunda señal: corta las llamadas en curso.
	runCtx, hardCancel := context.WithCancel(context.Background())
	defer hardCancel()

	stop := runner.NewStopFlag()
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go runner.WatchSignals(runCtx, sigs, stop, hardCancel)
	go runner.ListenInput(runCtx, in, stop)

	// el servidor de métricas nunca cancela el run
	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()

	var g errgroup.Group
	if metricsLn != nil {
		g.Go(func() error {
			if err := recorder.Serve(serveCtx, metricsLn); err != nil {
				slog.Error("metrics server stopped", "err", err)
			}
			return nil
		})
	}

	var summary domain.RunSummary
	g.Go(func() error {
		defer stopServe()
		var runErr error
		summary, runErr = ctrl.Run(runCtx, stop)
		return runErr
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("autobet finished",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"placed", summary.Placed,
		"staked", summary.Staked,
		"cancelled", summary.Cancelled,
	)
	return nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func runnerConfig(cfg *config.Config) runner.Config {
	b := cfg.Betting
	return runner.Config{
		Query:       b.SearchTerm,
		MarketLimit: b.MarketLimit,
		DryRun:      b.DryRun,
		Bankroll:    b.Bankroll,
		Pause:       b.PauseBetweenMarkets,
		Policy: policy.Config{
			KellyFraction:         b.KellyFraction,
			MinEdge:               b.MinEdge,
			MinConfidence:         b.MinConfidenceLevel(),
			ResolutionMonthsLimit: b.ResolutionMonthsLimit,
			MaxStakePerBet:        b.MaxStakePerBet,
			MaxBankrollFraction:   b.MaxBankrollFraction,
			MinStake:              b.MinStake,
			Slippage:              b.Slippage,
		},
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// stdout queda para las tablas del notifier.
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
