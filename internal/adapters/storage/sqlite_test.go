package storage_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/autobet/internal/adapters/storage"
	"github.com/alejandrodnm/autobet/internal/domain"
)

func newStore(t *testing.T) *storage.AuditStore {
	t.Helper()
	s, err := storage.NewAuditStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeEntry(runID, marketID string, outcome domain.OutcomeKind) domain.AuditEntry {
	e := domain.AuditEntry{
		RunID:        runID,
		MarketID:     marketID,
		Question:     "Will X happen?",
		RecordedAt:   time.Now().UTC(),
		DecisionKind: domain.DecisionSkip,
		SkipReason:   domain.SkipEdgeBelowThreshold,
		MarketProb:   0.5,
		ModelProb:    0.52,
		Confidence:   domain.ConfidenceMedium,
		Edge:         0.02,
		Rationale:    "thin edge, \"quoted\", with commas",
		Model:        "test/model",
		OutcomeKind:  outcome,
	}
	if outcome != domain.OutcomeSkipped {
		e.DecisionKind = domain.DecisionPlace
		e.SkipReason = ""
		e.Direction = domain.DirectionYes
		e.Stake = 12.5
		e.LimitProb = 0.51
	}
	if outcome == domain.OutcomeExecuted {
		e.TradeID = "bet-" + marketID
		e.Attempts = 1
	}
	return e
}

func TestAuditStore_RecordAndHistory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, makeEntry("run-1", "m1", domain.OutcomeSkipped)))
	require.NoError(t, s.Record(ctx, makeEntry("run-1", "m2", domain.OutcomeExecuted)))

	from := time.Now().UTC().Add(-time.Minute)
	to := time.Now().UTC().Add(time.Minute)
	history, err := s.History(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// más recientes primero
	assert.Equal(t, "m2", history[0].MarketID)
	assert.Equal(t, domain.OutcomeExecuted, history[0].OutcomeKind)
	assert.Equal(t, "bet-m2", history[0].TradeID)
	assert.Equal(t, domain.DirectionYes, history[0].Direction)
	assert.InDelta(t, 12.5, history[0].Stake, 0.001)
	assert.Equal(t, domain.ConfidenceMedium, history[0].Confidence)
	assert.NotEmpty(t, history[0].ID)

	assert.Equal(t, domain.SkipEdgeBelowThreshold, history[1].SkipReason)
}

func TestAuditStore_HistoryOutOfRange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, makeEntry("run-1", "m1", domain.OutcomeSkipped)))

	past := time.Now().UTC().Add(-48 * time.Hour)
	history, err := s.History(ctx, past, past.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAuditStore_HasDecided(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, makeEntry("run-1", "skipped-market", domain.OutcomeSkipped)))
	require.NoError(t, s.Record(ctx, makeEntry("run-1", "failed-market", domain.OutcomeFailed)))
	require.NoError(t, s.Record(ctx, makeEntry("run-1", "bet-market", domain.OutcomeExecuted)))
	ambiguous := makeEntry("run-1", "ambiguous-market", domain.OutcomeFailed)
	ambiguous.FailureKind = domain.FailureAmbiguous
	require.NoError(t, s.Record(ctx, ambiguous))

	cases := []struct {
		run, market string
		want        bool
	}{
		{"run-1", "skipped-market", true},
		{"run-1", "bet-market", true},
		{"run-2", "skipped-market", false}, // un skip previo no bloquea nuevas ejecuciones
		{"run-2", "failed-market", false},
		{"run-2", "bet-market", true},       // una apuesta ejecutada bloquea para siempre
		{"run-2", "ambiguous-market", true}, // pudo haberse aplicado en la plataforma
		{"run-1", "unknown", false},
	}
	for _, c := range cases {
		got, err := s.HasDecided(ctx, c.run, c.market)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "run=%s market=%s", c.run, c.market)
	}
}

func TestAuditStore_AppendOnly(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	e := makeEntry("run-1", "m1", domain.OutcomeSkipped)
	e.ID = "fixed-id"
	require.NoError(t, s.Record(ctx, e))

	// el mismo ID no puede reescribir la entrada
	err := s.Record(ctx, e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}

func TestAuditStore_ExportCSV(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	dry := makeEntry("run-1", "m1", domain.OutcomeDryRun)
	dry.DryRun = true
	require.NoError(t, s.Record(ctx, dry))
	require.NoError(t, s.Record(ctx, makeEntry("run-1", "m2", domain.OutcomeSkipped)))

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(ctx, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	header := records[0]
	assert.Equal(t, "id", header[0])
	assert.Contains(t, header, "rationale")
	assert.Contains(t, header, "dry_run")

	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("column %q missing", name)
		return -1
	}
	assert.Equal(t, "m1", records[1][col("market_id")])
	assert.Equal(t, "dry-run", records[1][col("outcome_kind")])
	assert.Equal(t, "true", records[1][col("dry_run")])
	assert.Equal(t, "12.5", records[1][col("stake")])
	assert.Equal(t, "thin edge, \"quoted\", with commas", records[2][col("rationale")])
}

func TestAuditStore_SaveRunAndRuns(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.SaveRun(ctx, domain.RunSummary{
		RunID: "run-1", Query: "AI", StartedAt: start, FinishedAt: start.Add(30 * time.Second),
		MarketsFound: 5, Processed: 2, Placed: 1, Skipped: 1, Staked: 10,
		StartBankroll: 100, EndBankroll: 90, Cancelled: true,
	}))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, 2, runs[0].Processed)
	assert.True(t, runs[0].Cancelled)
	assert.InDelta(t, 90, runs[0].EndBankroll, 0.001)
	assert.WithinDuration(t, start, runs[0].StartedAt, time.Millisecond)
}
