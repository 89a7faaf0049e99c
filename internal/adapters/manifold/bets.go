package manifold

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const (
	minBetAmount  = 1
	findBetsLimit = 50
)

// Balance devuelve el saldo en mana de la cuenta autenticada.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	user, err := c.me(ctx)
	if err != nil {
		return 0, fmt.Errorf("manifold.Balance: %w", err)
	}
	return user.Balance, nil
}

func (c *Client) me(ctx context.Context) (me, error) {
	var user me
	if err := c.get(ctx, "/me", &user); err != nil {
		return me{}, err
	}
	c.mu.Lock()
	c.userID = user.ID
	c.mu.Unlock()
	return user, nil
}

func (c *Client) currentUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.userID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}
	user, err := c.me(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// PlaceBet envía una orden límite. Un único POST por llamada.
//
// El monto se redondea hacia abajo a mana entero para no superar nunca el
// stake decidido; el precio límite se redondea a 0.01.
func (c *Client) PlaceBet(ctx context.Context, req domain.BetRequest) (string, error) {
	amount := decimal.NewFromFloat(req.Amount).Floor()
	if amount.LessThan(decimal.NewFromInt(minBetAmount)) {
		return "", &domain.PlatformError{
			Kind: domain.FailureRejected,
			Msg:  fmt.Sprintf("amount %.2f below minimum bet of M$%d", req.Amount, minBetAmount),
		}
	}
	limit, _ := decimal.NewFromFloat(req.LimitProb).Round(2).Float64()

	body := betRequest{
		Amount:     amount.IntPart(),
		ContractID: req.MarketID,
		Outcome:    string(req.Direction),
		LimitProb:  limit,
	}

	var out betResponse
	resp, err := c.postOnce(ctx, "/bet", body, &out)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return "", classify(status, err)
	}
	if out.BetID == "" {
		// 200 sin ID: la apuesta pudo quedar registrada
		return "", &domain.PlatformError{
			Kind:      domain.FailureTransient,
			Transient: true,
			Applied:   domain.AppliedUnknown,
			Status:    resp.StatusCode,
			Msg:       "bet response without betId",
		}
	}
	return out.BetID, nil
}

// FindBet busca una apuesta propia en el mercado creada en o después de since.
func (c *Client) FindBet(ctx context.Context, marketID string, since time.Time) (string, bool, error) {
	userID, err := c.currentUserID(ctx)
	if err != nil {
		return "", false, fmt.Errorf("manifold.FindBet: user: %w", err)
	}

	q := url.Values{}
	q.Set("userId", userID)
	q.Set("contractId", marketID)
	q.Set("limit", fmt.Sprint(findBetsLimit))

	var bets []bet
	if err := c.get(ctx, "/bets?"+q.Encode(), &bets); err != nil {
		return "", false, fmt.Errorf("manifold.FindBet: %w", err)
	}

	cutoff := since.UnixMilli()
	for _, b := range bets {
		if b.ContractID == marketID && b.CreatedTime >= cutoff {
			return b.ID, true, nil
		}
	}
	return "", false, nil
}

// classify traduce un fallo de POST /bet a la taxonomía del dominio.
func classify(status int, err error) *domain.PlatformError {
	var se *statusError
	if !errors.As(err, &se) {
		// sin respuesta HTTP
		applied := domain.AppliedUnknown
		if isConnRefused(err) {
			applied = domain.NotApplied
		}
		return &domain.PlatformError{
			Kind:      domain.FailureTransient,
			Transient: true,
			Applied:   applied,
			Status:    status,
			Err:       err,
		}
	}

	pe := &domain.PlatformError{Status: se.Status, Msg: se.Message, Err: err}
	msg := strings.ToLower(se.Message)
	switch {
	case se.Status == http.StatusTooManyRequests || se.Status == http.StatusServiceUnavailable:
		pe.Kind, pe.Transient, pe.Applied = domain.FailureTransient, true, domain.NotApplied
	case se.Status >= 500:
		pe.Kind, pe.Transient, pe.Applied = domain.FailureTransient, true, domain.AppliedUnknown
	case se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden:
		pe.Kind = domain.FailureUnauthorized
	case strings.Contains(msg, "balance"):
		pe.Kind = domain.FailureInsufficientBalance
	case strings.Contains(msg, "closed") || strings.Contains(msg, "resolved"):
		pe.Kind = domain.FailureMarketClosed
	default:
		pe.Kind = domain.FailureRejected
	}
	return pe
}

func isConnRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
