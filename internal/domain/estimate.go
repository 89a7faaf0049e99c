package domain

import (
	"fmt"
	"math"
	"strings"
)

// Confidence es el nivel de confianza que el modelo declara sobre su estimación.
type Confidence int

const (
	ConfidenceUnknown Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

// String devuelve la etiqueta usada en prompts, config y audit log.
func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseConfidence convierte una etiqueta (case-insensitive) en Confidence.
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ConfidenceLow, nil
	case "medium":
		return ConfidenceMedium, nil
	case "high":
		return ConfidenceHigh, nil
	}
	return ConfidenceUnknown, fmt.Errorf("unknown confidence level %q", s)
}

// ConfidenceFromScore mapea una confianza numérica [0,1] a un nivel por tercios.
func ConfidenceFromScore(v float64) (Confidence, error) {
	switch {
	case math.IsNaN(v) || v < 0 || v > 1:
		return ConfidenceUnknown, fmt.Errorf("confidence score %v out of [0,1]", v)
	case v < 1.0/3:
		return ConfidenceLow, nil
	case v < 2.0/3:
		return ConfidenceMedium, nil
	default:
		return ConfidenceHigh, nil
	}
}

// Estimate es la estimación del modelo para un mercado.
// Se produce una vez por mercado y ejecución; nunca se modifica.
type Estimate struct {
	MarketID    string
	Probability float64 // estrictamente dentro de (0,1)
	Confidence  Confidence
	Rationale   string
	Model       string
}
