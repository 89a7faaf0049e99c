package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const (
	rationaleMaxLen   = 600
	questionMaxLen    = 45
	descriptionMaxLen = 300
)

// Console implementa ports.Notifier.
type Console struct {
	out     io.Writer
	verbose bool // imprime el panel completo de cada mercado
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// MarketDecided imprime el análisis de un mercado: panel completo en modo
// verbose, una línea en otro caso.
func (c *Console) MarketDecided(_ context.Context, m domain.Market, est *domain.Estimate, e domain.AuditEntry) error {
	if !c.verbose {
		fmt.Fprintf(c.out, "[%s] %-45s p=%.2f q=%s → %s\n",
			time.Now().Format("15:04:05"),
			truncate(domain.TruncateQuestion(m.Question, m.ID, questionMaxLen), questionMaxLen),
			m.Probability,
			modelProbLabel(est),
			outcomeLabel(e),
		)
		return nil
	}

	title := m.Slug
	if title == "" {
		title = m.ID
	}
	fmt.Fprintf(c.out, "\n── Market Details: %s ──\n", title)

	table := tablewriter.NewWriter(c.out)
	table.Append("Question:", m.Question)
	table.Append("URL:", m.URL)
	table.Append("Market Creator:", "@"+m.CreatorUsername)
	table.Append("Resolution Date:", closeTimeLabel(m.CloseTime))
	table.Append("Total Volume:", fmt.Sprintf("M$%.0f", m.Volume))
	table.Append("Unique Bettors:", fmt.Sprintf("%d", m.UniqueBettors))
	table.Append("Market Type:", m.OutcomeType)
	table.Append("Market Probability:", fmt.Sprintf("%.2f%%", m.Probability*100))
	table.Append("Resolution Criteria:", truncate(m.Description, descriptionMaxLen))
	table.Append("Model Prob:", modelProbLabel(est))
	if est != nil {
		table.Append("Model Reasoning:", truncate(est.Rationale, rationaleMaxLen))
	}
	table.Append("Decision:", decisionLabel(e))
	table.Append("Outcome:", outcomeLabel(e))
	table.Render()

	return nil
}

// RunFinished imprime el resumen de la ejecución con una tabla de decisiones.
func (c *Console) RunFinished(_ context.Context, s domain.RunSummary) error {
	status := "completed"
	if s.Cancelled {
		status = "cancelled by operator"
	}
	fmt.Fprintf(c.out, "\n=== RUN %s — %s (%s) ===\n", shortID(s.RunID), status, s.FinishedAt.Sub(s.StartedAt).Truncate(time.Second))
	fmt.Fprintf(c.out, "  Query:     %q (%d markets found, %d processed)\n", s.Query, s.MarketsFound, s.Processed)
	fmt.Fprintf(c.out, "  Placed:    %d | Dry-run: %d | Skipped: %d | Failed: %d\n", s.Placed, s.DryRuns, s.Skipped, s.Failed)
	fmt.Fprintf(c.out, "  Staked:    M$%.2f\n", s.Staked)
	fmt.Fprintf(c.out, "  Bankroll:  M$%.2f → M$%.2f\n", s.StartBankroll, s.EndBankroll)

	if len(s.Entries) == 0 {
		fmt.Fprintln(c.out, "  No markets were processed")
		return nil
	}
	c.printEntries(s.Entries)
	return nil
}

// PrintHistory imprime entradas del audit log (modo report).
func (c *Console) PrintHistory(entries []domain.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No audit entries in range")
		return
	}
	c.printEntries(entries)
}

// PrintRuns imprime los resúmenes de las últimas ejecuciones (modo report).
func (c *Console) PrintRuns(runs []domain.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "No runs recorded")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Run", "Started", "Query", "Proc", "Placed", "Dry", "Skip", "Fail", "Staked", "Status")
	for _, r := range runs {
		status := "ok"
		if r.Cancelled {
			status = "cancelled"
		}
		table.Append(
			shortID(r.RunID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			truncate(r.Query, 20),
			fmt.Sprintf("%d", r.Processed),
			fmt.Sprintf("%d", r.Placed),
			fmt.Sprintf("%d", r.DryRuns),
			fmt.Sprintf("%d", r.Skipped),
			fmt.Sprintf("%d", r.Failed),
			fmt.Sprintf("M$%.2f", r.Staked),
			status,
		)
	}
	table.Render()
}

func (c *Console) printEntries(entries []domain.AuditEntry) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Time", "Market", "Mkt p", "Model q", "Conf", "Edge", "Decision", "Outcome")
	for i, e := range entries {
		q := "-"
		conf := "-"
		if e.Model != "" {
			q = fmt.Sprintf("%.2f", e.ModelProb)
			conf = e.Confidence.String()
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			e.RecordedAt.Local().Format("01-02 15:04:05"),
			domain.TruncateQuestion(e.Question, e.MarketID, questionMaxLen),
			fmt.Sprintf("%.2f", e.MarketProb),
			q,
			conf,
			fmt.Sprintf("%.3f", e.Edge),
			decisionLabel(e),
			outcomeLabel(e),
		)
	}
	table.Render()
}

// --- helpers internos ---

func decisionLabel(e domain.AuditEntry) string {
	if e.DecisionKind == domain.DecisionPlace {
		return fmt.Sprintf("%s M$%.2f @%.2f", e.Direction, e.Stake, e.LimitProb)
	}
	return "skip: " + string(e.SkipReason)
}

func outcomeLabel(e domain.AuditEntry) string {
	switch e.OutcomeKind {
	case domain.OutcomeExecuted:
		return "BET " + e.TradeID
	case domain.OutcomeDryRun:
		return fmt.Sprintf("DRY RUN %s M$%.2f", e.Direction, e.Stake)
	case domain.OutcomeFailed:
		return "FAILED (" + string(e.FailureKind) + ")"
	}
	if e.SkipReason != "" {
		return "skip: " + string(e.SkipReason)
	}
	return string(e.OutcomeKind)
}

func modelProbLabel(est *domain.Estimate) string {
	if est == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%% (confidence: %s)", est.Probability*100, est.Confidence)
}

func closeTimeLabel(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
