package estimator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/alejandrodnm/autobet/internal/domain"
)

// Reply es la respuesta del modelo ya validada.
type Reply struct {
	Rationale   string
	Probability float64
	Confidence  domain.Confidence
}

type rawReply struct {
	Probability json.RawMessage `json:"probability"`
	Confidence  json.RawMessage `json:"confidence"`
}

// ParseReply extrae razonamiento, probabilidad y confianza del texto del modelo.
// Cualquier respuesta que no cumpla el formato devuelve un error que envuelve
// domain.ErrProvider; nunca se devuelve una probabilidad fuera de (0,1).
func ParseReply(text string) (Reply, error) {
	var rationale, jsonPart string

	if before, after, ok := strings.Cut(text, EndOfReasoning); ok {
		rationale = strings.TrimSpace(before)
		jsonPart = stripFences(after)
		// el modelo a veces añade texto después del JSON
		if start, end, found := lastObject(jsonPart); found {
			jsonPart = jsonPart[start:end]
		}
	} else {
		start, end, found := lastObject(text)
		if !found {
			return Reply{}, fmt.Errorf("estimator.ParseReply: %w: no JSON object in reply", domain.ErrProvider)
		}
		rationale = strings.TrimSpace(stripFences(text[:start]))
		jsonPart = text[start:end]
	}

	var raw rawReply
	dec := json.NewDecoder(strings.NewReader(jsonPart))
	if err := dec.Decode(&raw); err != nil {
		return Reply{}, fmt.Errorf("estimator.ParseReply: %w: decode JSON: %v", domain.ErrProvider, err)
	}

	prob, err := parseProbability(raw.Probability)
	if err != nil {
		return Reply{}, fmt.Errorf("estimator.ParseReply: %w: %v", domain.ErrProvider, err)
	}
	conf, err := parseConfidence(raw.Confidence)
	if err != nil {
		return Reply{}, fmt.Errorf("estimator.ParseReply: %w: %v", domain.ErrProvider, err)
	}

	return Reply{Rationale: rationale, Probability: prob, Confidence: conf}, nil
}

func parseProbability(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing probability")
	}
	// sin coerción: "0.7" como string es una respuesta malformada
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("probability %s is not a JSON number", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v >= 1 {
		return 0, fmt.Errorf("probability %v outside (0,1)", v)
	}
	return v, nil
}

func parseConfidence(raw json.RawMessage) (domain.Confidence, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return domain.ConfidenceUnknown, fmt.Errorf("missing confidence")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.ParseConfidence(s)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.ConfidenceUnknown, fmt.Errorf("confidence %s is neither a label nor a number", raw)
	}
	return domain.ConfidenceFromScore(v)
}

// lastObject localiza el último objeto JSON bien formado que contiene "probability".
// Devuelve los índices [start, end) dentro de text.
func lastObject(text string) (start, end int, ok bool) {
	for i := strings.LastIndexByte(text, '{'); i >= 0; i = strings.LastIndexByte(text[:i], '{') {
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var obj map[string]json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			continue
		}
		if _, has := obj["probability"]; !has {
			continue
		}
		return i, i + int(dec.InputOffset()), true
	}
	return 0, 0, false
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
