package domain

import (
	"errors"
	"fmt"
)

// Taxonomía de errores del engine. Los adaptadores envuelven estos sentinels
// con %w; el controller decide con errors.Is si un error es recuperable.
var (
	// ErrProvider: fallo del modelo (red, timeout o respuesta no parseable). Recuperable.
	ErrProvider = errors.New("provider error")
	// ErrPlatformTransient: fallo temporal de la plataforma. Se reintenta.
	ErrPlatformTransient = errors.New("platform transient error")
	// ErrPlatformPermanent: la plataforma rechazó la operación. No se reintenta.
	ErrPlatformPermanent = errors.New("platform permanent error")
	// ErrConfiguration: configuración inválida o credenciales ausentes. Fatal al arrancar.
	ErrConfiguration = errors.New("configuration error")
	// ErrPersistence: el audit log no es escribible. Fatal durante la ejecución.
	ErrPersistence = errors.New("persistence error")
)

// FailureKind clasifica un fallo de ejecución para el audit log.
type FailureKind string

const (
	FailureInsufficientBalance FailureKind = "insufficient-balance"
	FailureMarketClosed        FailureKind = "market-closed"
	FailureRejected            FailureKind = "rejected"
	FailureUnauthorized        FailureKind = "unauthorized"
	FailureTransient           FailureKind = "transient"
	FailureRetriesExhausted    FailureKind = "retries-exhausted"
	FailureAmbiguous           FailureKind = "ambiguous"
	FailureInternal            FailureKind = "internal"
)

// Applied indica si un intento fallido pudo haber sido aplicado por la plataforma.
type Applied int

const (
	// NotApplied: la plataforma seguro que no registró la apuesta (p.ej. 429, conexión rechazada).
	NotApplied Applied = iota
	// AppliedUnknown: la petición pudo llegar (timeout, 500/502/504). Hay que reconciliar.
	AppliedUnknown
)

// PlatformError es el error tipado que devuelven los adaptadores de trading.
type PlatformError struct {
	Kind      FailureKind
	Transient bool
	Applied   Applied
	Status    int // HTTP status, 0 si no hubo respuesta
	Msg       string
	Err       error
}

func (e *PlatformError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("platform %s (%s, http %d): %s", class, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("platform %s (%s): %s", class, e.Kind, msg)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// Is permite errors.Is(err, ErrPlatformTransient) / ErrPlatformPermanent.
func (e *PlatformError) Is(target error) bool {
	switch target {
	case ErrPlatformTransient:
		return e.Transient
	case ErrPlatformPermanent:
		return !e.Transient
	}
	return false
}
