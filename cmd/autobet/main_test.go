package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/autobet/config"
	"github.com/alejandrodnm/autobet/internal/adapters/notify"
	"github.com/alejandrodnm/autobet/internal/adapters/storage"
	"github.com/alejandrodnm/autobet/internal/domain"
)

func TestRunnerConfig_MapsBettingSection(t *testing.T) {
	cfg := &config.Config{Betting: config.BettingConfig{
		SearchTerm:            "AI",
		MarketLimit:           20,
		KellyFraction:         0.5,
		MinEdge:               0.05,
		MinConfidence:         "high",
		ResolutionMonthsLimit: 3,
		MaxStakePerBet:        10,
		MaxBankrollFraction:   0.2,
		MinStake:              2,
		Slippage:              0.02,
		DryRun:                true,
		Bankroll:              500,
		PauseBetweenMarkets:   2 * time.Second,
	}}

	rc := runnerConfig(cfg)

	assert.Equal(t, "AI", rc.Query)
	assert.Equal(t, 20, rc.MarketLimit)
	assert.True(t, rc.DryRun)
	assert.InDelta(t, 500, rc.Bankroll, 1e-9)
	assert.Equal(t, 2*time.Second, rc.Pause)
	assert.InDelta(t, 0.5, rc.Policy.KellyFraction, 1e-9)
	assert.Equal(t, domain.ConfidenceHigh, rc.Policy.MinConfidence)
	assert.Equal(t, 3, rc.Policy.ResolutionMonthsLimit)
	assert.InDelta(t, 10, rc.Policy.MaxStakePerBet, 1e-9)
	assert.InDelta(t, 0.02, rc.Policy.Slippage, 1e-9)
}

func TestRunReport_ExportsCSV(t *testing.T) {
	store, err := storage.NewAuditStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	var out bytes.Buffer
	console := notify.NewConsoleWriter(&out, false)
	path := filepath.Join(t.TempDir(), "bet_log.csv")

	require.NoError(t, runReport(context.Background(), store, console, true, time.Hour, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "id,run_id,market_id,question"))
	assert.Contains(t, out.String(), "No runs recorded")
	assert.Contains(t, out.String(), "No audit entries in range")
}

func TestRunReport_BadExportPath(t *testing.T) {
	store, err := storage.NewAuditStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	console := notify.NewConsoleWriter(&bytes.Buffer{}, false)
	path := filepath.Join(t.TempDir(), "missing", "bet_log.csv")

	assert.Error(t, runReport(context.Background(), store, console, false, time.Hour, path))
}

// dryRunSetup levanta una API de Manifold falsa sin mercados y devuelve una
// config en dry-run apuntando a ella.
func dryRunSetup(t *testing.T) (*config.Config, *storage.AuditStore, *atomic.Int32) {
	t.Helper()
	var searches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search-markets" {
			searches.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)

	store, err := storage.NewAuditStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Betting: config.BettingConfig{
			SearchTerm:  "AI",
			MarketLimit: 10,
			DryRun:      true,
			Bankroll:    100,
		},
		Executor: config.ExecutorConfig{RetryLimit: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		Manifold: config.ManifoldConfig{BaseURL: srv.URL},
		LLM:      config.LLMConfig{Provider: "openrouter", APIKey: "k", BaseURL: srv.URL, Timeout: time.Second},
	}
	return cfg, store, &searches
}

func TestRun_MetricsPortTakenFailsBeforeSearch(t *testing.T) {
	cfg, store, searches := dryRunSetup(t)

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	cfg.Metrics.Addr = taken.Addr().String()

	err = run(cfg, store, notify.NewConsoleWriter(&bytes.Buffer{}, false), strings.NewReader(""))
	require.Error(t, err)
	assert.Zero(t, searches.Load())
}

func TestRun_WithMetricsServerCompletes(t *testing.T) {
	cfg, store, searches := dryRunSetup(t)
	cfg.Metrics.Addr = "127.0.0.1:0"

	err := run(cfg, store, notify.NewConsoleWriter(&bytes.Buffer{}, false), strings.NewReader(""))
	require.NoError(t, err)
	assert.EqualValues(t, 1, searches.Load())

	runs, err := store.Runs(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Cancelled)
}
