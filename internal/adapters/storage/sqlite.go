package storage

// sqlite.go: audit log append-only de decisiones.
//
// Estrategia:
//   - `audit_log`: UNA fila por decisión (place, skip o fallo). Nunca se
//     actualiza ni se borra; dos triggers lo garantizan a nivel de DB.
//   - `runs`: resumen ligero por ejecución, una fila al terminar.
//   - La idempotencia se resuelve con el propio audit log: un mercado ya
//     decidido en esta ejecución, o con una apuesta ejecutada (o ambigua,
//     que pudo haberse aplicado) en cualquier ejecución, no se vuelve a apostar.

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT    NOT NULL UNIQUE,
    run_id        TEXT    NOT NULL,
    market_id     TEXT    NOT NULL,
    question      TEXT    NOT NULL DEFAULT '',
    recorded_at   TEXT    NOT NULL,
    decision_kind TEXT    NOT NULL,
    skip_reason   TEXT    NOT NULL DEFAULT '',
    direction     TEXT    NOT NULL DEFAULT '',
    stake         REAL    NOT NULL DEFAULT 0,
    limit_prob    REAL    NOT NULL DEFAULT 0,
    market_prob   REAL    NOT NULL DEFAULT 0,
    model_prob    REAL    NOT NULL DEFAULT 0,
    confidence    TEXT    NOT NULL DEFAULT '',
    edge          REAL    NOT NULL DEFAULT 0,
    kelly_full    REAL    NOT NULL DEFAULT 0,
    rationale     TEXT    NOT NULL DEFAULT '',
    model         TEXT    NOT NULL DEFAULT '',
    outcome_kind  TEXT    NOT NULL,
    trade_id      TEXT    NOT NULL DEFAULT '',
    failure_kind  TEXT    NOT NULL DEFAULT '',
    error_detail  TEXT    NOT NULL DEFAULT '',
    attempts      INTEGER NOT NULL DEFAULT 0,
    dry_run       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_audit_market   ON audit_log(market_id, run_id);
CREATE INDEX IF NOT EXISTS idx_audit_recorded ON audit_log(recorded_at DESC);

CREATE TRIGGER IF NOT EXISTS audit_log_no_update BEFORE UPDATE ON audit_log
BEGIN
    SELECT RAISE(ABORT, 'audit_log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_log_no_delete BEFORE DELETE ON audit_log
BEGIN
    SELECT RAISE(ABORT, 'audit_log is append-only');
END;

-- Resumen por ejecución
CREATE TABLE IF NOT EXISTS runs (
    run_id         TEXT PRIMARY KEY,
    query          TEXT    NOT NULL DEFAULT '',
    started_at     TEXT    NOT NULL,
    finished_at    TEXT    NOT NULL,
    markets_found  INTEGER NOT NULL DEFAULT 0,
    processed      INTEGER NOT NULL DEFAULT 0,
    placed         INTEGER NOT NULL DEFAULT 0,
    dry_runs       INTEGER NOT NULL DEFAULT 0,
    skipped        INTEGER NOT NULL DEFAULT 0,
    failed         INTEGER NOT NULL DEFAULT 0,
    staked         REAL    NOT NULL DEFAULT 0,
    start_bankroll REAL    NOT NULL DEFAULT 0,
    end_bankroll   REAL    NOT NULL DEFAULT 0,
    cancelled      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// timeLayout tiene ancho fijo para que el orden lexicográfico sea el cronológico.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const auditColumns = `id, run_id, market_id, question, recorded_at, decision_kind, skip_reason,
	direction, stake, limit_prob, market_prob, model_prob, confidence, edge, kelly_full,
	rationale, model, outcome_kind, trade_id, failure_kind, error_detail, attempts, dry_run`

// csvHeader sigue el orden de auditColumns.
var csvHeader = []string{
	"id", "run_id", "market_id", "question", "recorded_at", "decision_kind", "skip_reason",
	"direction", "stake", "limit_prob", "market_prob", "model_prob", "confidence", "edge", "kelly_full",
	"rationale", "model", "outcome_kind", "trade_id", "failure_kind", "error_detail", "attempts", "dry_run",
}

// AuditStore implementa ports.AuditLog usando SQLite (pure Go, sin CGo).
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewAuditStore(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewAuditStore: open %q: %w: %v", path, domain.ErrPersistence, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewAuditStore: apply schema: %w: %v", domain.ErrPersistence, err)
	}
	return &AuditStore{db: db}, nil
}

// Record inserta una entrada. Un único INSERT: la fila queda completa o no existe.
func (s *AuditStore) Record(ctx context.Context, e domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (`+auditColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.RunID,
		e.MarketID,
		e.Question,
		formatTime(e.RecordedAt),
		string(e.DecisionKind),
		string(e.SkipReason),
		string(e.Direction),
		e.Stake,
		e.LimitProb,
		e.MarketProb,
		e.ModelProb,
		confidenceLabel(e.Confidence),
		e.Edge,
		e.KellyFull,
		e.Rationale,
		e.Model,
		string(e.OutcomeKind),
		e.TradeID,
		string(e.FailureKind),
		e.ErrorDetail,
		e.Attempts,
		boolToInt(e.DryRun),
	); err != nil {
		return fmt.Errorf("storage.Record: insert %s: %w: %v", e.MarketID, domain.ErrPersistence, err)
	}
	return nil
}

// HasDecided devuelve true si el mercado tiene una entrada en runID, o una
// apuesta ejecutada o con resultado ambiguo en cualquier ejecución.
func (s *AuditStore) HasDecided(ctx context.Context, runID, marketID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM audit_log
			WHERE market_id = ? AND (run_id = ? OR outcome_kind = ? OR failure_kind = ?)
		)`, marketID, runID, string(domain.OutcomeExecuted), string(domain.FailureAmbiguous),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage.HasDecided: query %s: %w: %v", marketID, domain.ErrPersistence, err)
	}
	return exists == 1, nil
}

// History devuelve las entradas cuyo recorded_at está en [from, to], más recientes primero.
func (s *AuditStore) History(ctx context.Context, from, to time.Time) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_log
		WHERE recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at DESC, seq DESC
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("storage.History: query: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.History: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ExportCSV vuelca todo el audit log en orden de inserción.
func (s *AuditStore) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_log ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("storage.ExportCSV: query: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("storage.ExportCSV: write header: %w", err)
	}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("storage.ExportCSV: %w", err)
		}
		if err := cw.Write(entryRecord(e)); err != nil {
			return fmt.Errorf("storage.ExportCSV: write row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("storage.ExportCSV: rows: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// SaveRun persiste el resumen de una ejecución terminada.
func (s *AuditStore) SaveRun(ctx context.Context, r domain.RunSummary) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, query, started_at, finished_at, markets_found, processed,
		                  placed, dry_runs, skipped, failed, staked, start_bankroll, end_bankroll, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Query, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.MarketsFound, r.Processed, r.Placed, r.DryRuns, r.Skipped, r.Failed,
		r.Staked, r.StartBankroll, r.EndBankroll, boolToInt(r.Cancelled),
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert %s: %w: %v", r.RunID, domain.ErrPersistence, err)
	}
	return nil
}

// Runs devuelve los últimos limit resúmenes de ejecución, más recientes primero.
func (s *AuditStore) Runs(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, query, started_at, finished_at, markets_found, processed,
		       placed, dry_runs, skipped, failed, staked, start_bankroll, end_bankroll, cancelled
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Runs: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var r domain.RunSummary
		var started, finished string
		var cancelled int
		if err := rows.Scan(
			&r.RunID, &r.Query, &started, &finished, &r.MarketsFound, &r.Processed,
			&r.Placed, &r.DryRuns, &r.Skipped, &r.Failed, &r.Staked,
			&r.StartBankroll, &r.EndBankroll, &cancelled,
		); err != nil {
			return nil, fmt.Errorf("storage.Runs: scan row: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.Cancelled = cancelled == 1
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func scanEntry(rows *sql.Rows) (domain.AuditEntry, error) {
	var e domain.AuditEntry
	var recorded, decision, skip, dir, conf, outcome, failure string
	var dryRun int
	if err := rows.Scan(
		&e.ID, &e.RunID, &e.MarketID, &e.Question, &recorded,
		&decision, &skip, &dir, &e.Stake, &e.LimitProb,
		&e.MarketProb, &e.ModelProb, &conf, &e.Edge, &e.KellyFull,
		&e.Rationale, &e.Model, &outcome, &e.TradeID, &failure,
		&e.ErrorDetail, &e.Attempts, &dryRun,
	); err != nil {
		return e, fmt.Errorf("scan row: %w", err)
	}
	e.RecordedAt = parseTime(recorded)
	e.DecisionKind = domain.DecisionKind(decision)
	e.SkipReason = domain.SkipReason(skip)
	e.Direction = domain.Direction(dir)
	e.Confidence, _ = domain.ParseConfidence(conf) // "" → unknown
	e.OutcomeKind = domain.OutcomeKind(outcome)
	e.FailureKind = domain.FailureKind(failure)
	e.DryRun = dryRun == 1
	return e, nil
}

func entryRecord(e domain.AuditEntry) []string {
	return []string{
		e.ID,
		e.RunID,
		e.MarketID,
		e.Question,
		formatTime(e.RecordedAt),
		string(e.DecisionKind),
		string(e.SkipReason),
		string(e.Direction),
		formatFloat(e.Stake),
		formatFloat(e.LimitProb),
		formatFloat(e.MarketProb),
		formatFloat(e.ModelProb),
		confidenceLabel(e.Confidence),
		formatFloat(e.Edge),
		formatFloat(e.KellyFull),
		e.Rationale,
		e.Model,
		string(e.OutcomeKind),
		e.TradeID,
		string(e.FailureKind),
		e.ErrorDetail,
		strconv.Itoa(e.Attempts),
		strconv.FormatBool(e.DryRun),
	}
}

func confidenceLabel(c domain.Confidence) string {
	if c == domain.ConfidenceUnknown {
		return ""
	}
	return c.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
