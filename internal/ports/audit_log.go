package ports

import (
	"context"
	"io"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// AuditLog es el registro append-only de todas las decisiones.
// También es la fuente de verdad para la idempotencia.
type AuditLog interface {
	// Record añade una entrada. Nunca sobreescribe: la entrada queda completa o no existe.
	Record(ctx context.Context, entry domain.AuditEntry) error

	// HasDecided devuelve true si el mercado ya tiene una entrada en esta ejecución
	// o una apuesta ejecutada en cualquier ejecución anterior.
	HasDecided(ctx context.Context, runID, marketID string) (bool, error)

	// History devuelve las entradas registradas en el rango dado, más recientes primero.
	History(ctx context.Context, from, to time.Time) ([]domain.AuditEntry, error)

	// ExportCSV vuelca el audit log completo en formato CSV.
	ExportCSV(ctx context.Context, w io.Writer) error

	// SaveRun persiste el resumen de una ejecución terminada.
	SaveRun(ctx context.Context, summary domain.RunSummary) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
