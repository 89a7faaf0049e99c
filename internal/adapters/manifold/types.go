package manifold

import "encoding/json"

// DTOs raw de la API de Manifold. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// liteMarket es un item de GET /search-markets, y la base de FullMarket.
type liteMarket struct {
	ID                string  `json:"id"`
	Slug              string  `json:"slug"`
	URL               string  `json:"url"`
	Question          string  `json:"question"`
	CreatorUsername   string  `json:"creatorUsername"`
	OutcomeType       string  `json:"outcomeType"`
	Mechanism         string  `json:"mechanism"`
	Probability       float64 `json:"probability"`
	Volume            float64 `json:"volume"`
	TotalLiquidity    float64 `json:"totalLiquidity"`
	UniqueBettorCount int     `json:"uniqueBettorCount"`
	CloseTime         int64   `json:"closeTime"` // ms desde epoch
	IsResolved        bool    `json:"isResolved"`
}

// fullMarket es la respuesta de GET /slug/{slug} y GET /market/{id}.
// description puede venir como string o como documento rich-text (TipTap).
type fullMarket struct {
	liteMarket
	Description     json.RawMessage `json:"description"`
	TextDescription string          `json:"textDescription"`
}

// richText es un nodo del documento rich-text de la descripción.
type richText struct {
	Type    string     `json:"type"`
	Text    string     `json:"text"`
	Content []richText `json:"content"`
}

// me es la respuesta de GET /me.
type me struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Balance  float64 `json:"balance"`
}

// betRequest es el body de POST /bet.
type betRequest struct {
	Amount     int64   `json:"amount"`
	ContractID string  `json:"contractId"`
	Outcome    string  `json:"outcome"`
	LimitProb  float64 `json:"limitProb,omitempty"`
}

// betResponse es la respuesta de POST /bet.
type betResponse struct {
	BetID       string  `json:"betId"`
	Amount      float64 `json:"amount"`
	OrderAmount float64 `json:"orderAmount"`
	IsFilled    bool    `json:"isFilled"`
	IsCancelled bool    `json:"isCancelled"`
}

// bet es un item de GET /bets.
type bet struct {
	ID          string  `json:"id"`
	ContractID  string  `json:"contractId"`
	UserID      string  `json:"userId"`
	Outcome     string  `json:"outcome"`
	Amount      float64 `json:"amount"`
	CreatedTime int64   `json:"createdTime"` // ms desde epoch
}

// errorResponse es el cuerpo de error de la API.
type errorResponse struct {
	Message string `json:"message"`
}
