package ports

import "context"

// LLMProvider envía un prompt a un modelo y devuelve el texto completo de la respuesta.
type LLMProvider interface {
	Query(ctx context.Context, prompt string) (string, error)

	// Model devuelve el identificador del modelo en uso.
	Model() string
}
