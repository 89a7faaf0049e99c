package runner_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/autobet/internal/adapters/storage"
	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/alejandrodnm/autobet/internal/executor"
	"github.com/alejandrodnm/autobet/internal/runner"
)

// --- mocks ---

type mockMarkets struct {
	markets   []domain.Market
	err       error
	fetchErr  error
	fetchHits []string
}

func (m *mockMarkets) SearchMarkets(_ context.Context, _ string, limit int) ([]domain.Market, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.markets) {
		return m.markets[:limit], nil
	}
	return m.markets, nil
}

func (m *mockMarkets) FetchMarket(_ context.Context, slugOrID string) (domain.Market, error) {
	m.fetchHits = append(m.fetchHits, slugOrID)
	if m.fetchErr != nil {
		return domain.Market{}, m.fetchErr
	}
	for _, mk := range m.markets {
		if mk.Slug == slugOrID || mk.ID == slugOrID {
			mk.Description = "criteria for " + mk.ID
			return mk, nil
		}
	}
	return domain.Market{}, fmt.Errorf("not found")
}

type mockTrader struct {
	balance    float64
	balanceErr error
	placeErr   error
	findErr    error
	bets       []domain.BetRequest
}

func (m *mockTrader) PlaceBet(_ context.Context, req domain.BetRequest) (string, error) {
	m.bets = append(m.bets, req)
	if m.placeErr != nil {
		return "", m.placeErr
	}
	return fmt.Sprintf("bet-%d", len(m.bets)), nil
}

func (m *mockTrader) FindBet(context.Context, string, time.Time) (string, bool, error) {
	return "", false, m.findErr
}

func (m *mockTrader) Balance(context.Context) (float64, error) {
	return m.balance, m.balanceErr
}

type mockEstimator struct {
	probs map[string]float64 // marketID → q
	errs  map[string]error
	calls []string
}

func (m *mockEstimator) Estimate(_ context.Context, mk domain.Market) (domain.Estimate, error) {
	m.calls = append(m.calls, mk.ID)
	if err := m.errs[mk.ID]; err != nil {
		return domain.Estimate{}, err
	}
	q, ok := m.probs[mk.ID]
	if !ok {
		q = mk.Probability
	}
	return domain.Estimate{MarketID: mk.ID, Probability: q, Confidence: domain.ConfidenceHigh, Rationale: "r", Model: "test/model"}, nil
}

// mockAudit replica la regla de idempotencia del audit log en memoria.
type mockAudit struct {
	entries   []domain.AuditEntry
	runs      []domain.RunSummary
	recordErr error
}

func (m *mockAudit) Record(_ context.Context, e domain.AuditEntry) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAudit) HasDecided(_ context.Context, runID, marketID string) (bool, error) {
	for _, e := range m.entries {
		if e.MarketID == marketID &&
			(e.RunID == runID || e.OutcomeKind == domain.OutcomeExecuted || e.FailureKind == domain.FailureAmbiguous) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAudit) History(context.Context, time.Time, time.Time) ([]domain.AuditEntry, error) {
	return m.entries, nil
}

func (m *mockAudit) ExportCSV(context.Context, io.Writer) error { return nil }

func (m *mockAudit) SaveRun(_ context.Context, s domain.RunSummary) error {
	m.runs = append(m.runs, s)
	return nil
}

func (m *mockAudit) Close() error { return nil }

type mockNotifier struct {
	decided  []domain.AuditEntry
	finished []domain.RunSummary
	onDecide func(n int)
}

func (m *mockNotifier) MarketDecided(_ context.Context, _ domain.Market, _ *domain.Estimate, e domain.AuditEntry) error {
	m.decided = append(m.decided, e)
	if m.onDecide != nil {
		m.onDecide(len(m.decided))
	}
	return nil
}

func (m *mockNotifier) RunFinished(_ context.Context, s domain.RunSummary) error {
	m.finished = append(m.finished, s)
	return nil
}

// --- helpers ---

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeMarket(id string, p float64) domain.Market {
	return domain.Market{
		ID:          id,
		Slug:        "slug-" + id,
		Question:    "Question " + id + "?",
		OutcomeType: domain.OutcomeTypeBinary,
		Probability: p,
		CloseTime:   now.Add(10 * 24 * time.Hour),
		Status:      domain.StatusOpen,
	}
}

type fixture struct {
	markets   *mockMarkets
	trader    *mockTrader
	estimator *mockEstimator
	audit     *mockAudit
	notifier  *mockNotifier
	cfg       runner.Config
}

func newFixture(markets ...domain.Market) *fixture {
	cfg := runner.DefaultConfig()
	cfg.Query = "test"
	cfg.Pause = 0
	cfg.Policy.MaxStakePerBet = 20
	cfg.Policy.MaxBankrollFraction = 0.5
	return &fixture{
		markets:   &mockMarkets{markets: markets},
		trader:    &mockTrader{balance: 1000},
		estimator: &mockEstimator{probs: map[string]float64{}, errs: map[string]error{}},
		audit:     &mockAudit{},
		notifier:  &mockNotifier{},
		cfg:       cfg,
	}
}

func (f *fixture) controller() *runner.Controller {
	execCfg := executor.DefaultConfig()
	execCfg.DryRun = f.cfg.DryRun
	exec := executor.New(f.trader, execCfg, executor.WithSleep(func(context.Context, time.Duration) {}))
	c := runner.New(f.cfg, f.markets, f.trader, f.estimator, exec, f.audit, f.notifier, nil)
	c.SetClock(func() time.Time { return now })
	return c
}

// --- tests ---

func TestRun_PlacesBetsAndAudits(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5), makeMarket("b", 0.5))
	f.estimator.probs["a"] = 0.7  // edge 0.2 → place
	f.estimator.probs["b"] = 0.505 // edge < MinEdge → skip

	summary, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, domain.OutcomeExecuted, f.audit.entries[0].OutcomeKind)
	assert.Equal(t, "bet-1", f.audit.entries[0].TradeID)
	assert.Equal(t, "Question a?", f.audit.entries[0].Question)
	assert.Equal(t, domain.SkipEdgeBelowThreshold, f.audit.entries[1].SkipReason)
	assert.Equal(t, domain.OutcomeSkipped, f.audit.entries[1].OutcomeKind)

	require.Len(t, f.trader.bets, 1)
	assert.Equal(t, domain.DirectionYes, f.trader.bets[0].Direction)
	assert.LessOrEqual(t, f.trader.bets[0].Amount, 20.0)

	assert.Equal(t, 1, summary.Placed)
	assert.Equal(t, 1, summary.Skipped)
	assert.InDelta(t, 1000-f.trader.bets[0].Amount, summary.EndBankroll, 1e-9)
	assert.Len(t, f.audit.runs, 1)
	assert.Len(t, f.notifier.finished, 1)
	assert.Equal(t, []string{"slug-a", "slug-b"}, f.markets.fetchHits)
}

func TestRun_CancelAfterSecondMarket(t *testing.T) {
	var ms []domain.Market
	for i := 1; i <= 5; i++ {
		ms = append(ms, makeMarket(fmt.Sprintf("m%d", i), 0.5))
	}
	f := newFixture(ms...)
	stop := runner.NewStopFlag()
	f.notifier.onDecide = func(n int) {
		if n == 2 {
			stop.Stop()
		}
	}

	summary, err := f.controller().Run(context.Background(), stop)
	require.NoError(t, err)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, "m1", f.audit.entries[0].MarketID)
	assert.Equal(t, "m2", f.audit.entries[1].MarketID)
	assert.Equal(t, []string{"m1", "m2"}, f.estimator.calls)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 2, summary.Processed)
}

func TestRun_StopDuringEstimateAbandonsMarket(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5))
	f.estimator.probs["a"] = 0.8
	stop := runner.NewStopFlag()
	est := &stoppingEstimator{inner: f.estimator, stop: stop}

	exec := executor.New(f.trader, executor.DefaultConfig())
	c := runner.New(f.cfg, f.markets, f.trader, est, exec, f.audit, f.notifier, nil)
	c.SetClock(func() time.Time { return now })

	_, err := c.Run(context.Background(), stop)
	require.NoError(t, err)
	assert.Empty(t, f.trader.bets)
	assert.Empty(t, f.audit.entries)
}

type stoppingEstimator struct {
	inner *mockEstimator
	stop  *runner.StopFlag
}

func (s *stoppingEstimator) Estimate(ctx context.Context, m domain.Market) (domain.Estimate, error) {
	s.stop.Stop()
	return s.inner.Estimate(ctx, m)
}

func TestRun_IdempotentAcrossRuns(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5))
	f.estimator.probs["a"] = 0.8

	_, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)
	require.Len(t, f.trader.bets, 1)

	// segunda pasada sobre el mismo mercado: ya hay una apuesta ejecutada
	_, err = f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)
	assert.Len(t, f.trader.bets, 1)
	assert.Len(t, f.audit.entries, 1)
	assert.Equal(t, []string{"a"}, f.estimator.calls)
}

func TestRun_DuplicateMarketInSearchDecidedOnce(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5), makeMarket("a", 0.5))
	f.estimator.probs["a"] = 0.505

	_, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)
	assert.Len(t, f.audit.entries, 1)
}

func TestRun_ProviderErrorIsRecordedAndRunContinues(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5), makeMarket("b", 0.5))
	f.estimator.errs["a"] = fmt.Errorf("boom: %w", domain.ErrProvider)
	f.estimator.probs["b"] = 0.8

	summary, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, domain.SkipProviderError, f.audit.entries[0].SkipReason)
	assert.Contains(t, f.audit.entries[0].ErrorDetail, "boom")
	assert.Empty(t, f.audit.entries[0].Model)
	assert.Equal(t, domain.OutcomeExecuted, f.audit.entries[1].OutcomeKind)
	assert.Equal(t, 1, summary.Placed)
}

func TestRun_DryRunNeverTrades(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5))
	f.cfg.DryRun = true
	f.estimator.probs["a"] = 0.8

	summary, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)

	assert.Empty(t, f.trader.bets)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, domain.OutcomeDryRun, f.audit.entries[0].OutcomeKind)
	assert.True(t, f.audit.entries[0].DryRun)
	assert.Equal(t, 1, summary.DryRuns)
	assert.Less(t, summary.EndBankroll, summary.StartBankroll)
}

func TestRun_HorizonPrescreenSkipsModel(t *testing.T) {
	far := makeMarket("far", 0.5)
	far.CloseTime = now.Add(400 * 24 * time.Hour)
	f := newFixture(far)

	_, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)

	assert.Empty(t, f.estimator.calls)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, domain.SkipHorizonExceeded, f.audit.entries[0].SkipReason)
}

func TestRun_MarketWithoutCloseTimeSkipsModel(t *testing.T) {
	open := makeMarket("open-ended", 0.5)
	open.CloseTime = time.Time{}
	f := newFixture(open)
	f.estimator.probs["open-ended"] = 0.9

	_, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)

	assert.Empty(t, f.estimator.calls)
	assert.Empty(t, f.trader.bets)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, domain.SkipHorizonExceeded, f.audit.entries[0].SkipReason)
}

func TestRun_AmbiguousFailureBlocksLaterRuns(t *testing.T) {
	store, err := storage.NewAuditStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	f := newFixture(makeMarket("a", 0.5))
	f.estimator.probs["a"] = 0.8
	f.trader.placeErr = &domain.PlatformError{
		Kind:      domain.FailureTransient,
		Transient: true,
		Applied:   domain.AppliedUnknown,
		Status:    502,
		Err:       errors.New("bad gateway"),
	}
	f.trader.findErr = errors.New("bets endpoint down")

	run := func() {
		exec := executor.New(f.trader, executor.DefaultConfig(),
			executor.WithSleep(func(context.Context, time.Duration) {}),
			executor.WithClock(func() time.Time { return now }),
		)
		c := runner.New(f.cfg, f.markets, f.trader, f.estimator, exec, store, f.notifier, nil)
		c.SetClock(func() time.Time { return now })
		_, err := c.Run(context.Background(), runner.NewStopFlag())
		require.NoError(t, err)
	}

	run()
	require.Len(t, f.trader.bets, 1)
	entries, err := store.History(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.FailureAmbiguous, entries[0].FailureKind)

	// la apuesta pudo haberse aplicado: la siguiente ejecución no la repite
	f.trader.placeErr, f.trader.findErr = nil, nil
	run()
	assert.Len(t, f.trader.bets, 1)
	assert.Equal(t, []string{"a"}, f.estimator.calls)
}

func TestRun_IneligibleMarketsIgnored(t *testing.T) {
	multi := makeMarket("multi", 0.5)
	multi.OutcomeType = "MULTIPLE_CHOICE"
	resolved := makeMarket("res", 0.5)
	resolved.Status = domain.StatusResolved
	f := newFixture(multi, resolved)

	summary, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)
	assert.Empty(t, f.audit.entries)
	assert.Empty(t, f.estimator.calls)
	assert.Equal(t, 2, summary.MarketsFound)
}

func TestRun_FetchDetailFailureFallsBack(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5))
	f.markets.fetchErr = errors.New("timeout")
	f.estimator.probs["a"] = 0.8

	_, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)
	assert.Len(t, f.audit.entries, 1)
}

func TestRun_PersistenceErrorIsFatal(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5), makeMarket("b", 0.5))
	f.audit.recordErr = fmt.Errorf("disk full: %w", domain.ErrPersistence)

	_, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.Equal(t, []string{"a"}, f.estimator.calls)
}

func TestRun_SearchErrorIsFatal(t *testing.T) {
	f := newFixture()
	f.markets.err = errors.New("api down")

	_, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	assert.Error(t, err)
}

func TestRun_BalanceOverride(t *testing.T) {
	f := newFixture()
	f.cfg.Bankroll = 50
	f.trader.balanceErr = errors.New("no credentials")

	summary, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)
	assert.InDelta(t, 50, summary.StartBankroll, 1e-9)
}

func TestRun_BalanceErrorIsFatal(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5))
	f.trader.balanceErr = errors.New("unauthorized")

	_, err := f.controller().Run(context.Background(), runner.NewStopFlag())
	assert.Error(t, err)
	assert.Empty(t, f.estimator.calls)
}

func TestRun_StateEndsStopped(t *testing.T) {
	f := newFixture(makeMarket("a", 0.5))
	c := f.controller()
	assert.Equal(t, domain.StateIdle, c.State())

	_, err := c.Run(context.Background(), runner.NewStopFlag())
	require.NoError(t, err)
	assert.Equal(t, domain.StateStopped, c.State())
}
