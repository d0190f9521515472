package dto

import (
	"encoding/json"
	"time"

	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
)

// ActionSubmitRequest is the optional body for action submission. The
// Idempotency-Key header takes precedence over the body field.
type ActionSubmitRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// WithdrawRequest is the request body for withdrawal submission. Amount is
// in decimal currency units; json.Number keeps the exact client literal so
// the cent conversion never rides on a float.
type WithdrawRequest struct {
	Amount json.Number `json:"amount" binding:"required"`
}

// BalanceResponse is the wallet balance view. Monetary fields are decimal
// currency units.
type BalanceResponse struct {
	UserID                    string     `json:"user_id"`
	Current                   float64    `json:"current"`
	TotalEarning              float64    `json:"total_earning"`
	LockedCapital             float64    `json:"locked_capital"`
	PendingWithdraw           float64    `json:"pending_withdraw"`
	Staked                    float64    `json:"staked"`
	DepositTotal              float64    `json:"deposit_total"`
	TotalBalance              float64    `json:"total_balance"`
	AvailableToWithdraw       float64    `json:"available_to_withdraw"`
	MiningNextEligibleAt      *time.Time `json:"mining_next_eligible_at,omitempty"`
	DailyProfitNextEligibleAt *time.Time `json:"daily_profit_next_eligible_at,omitempty"`
}

// ToBalanceResponse converts a domain balance to its API view.
func ToBalanceResponse(b *domain.AccountBalance) BalanceResponse {
	return BalanceResponse{
		UserID:                    b.UserID.String(),
		Current:                   b.Current.Float(),
		TotalEarning:              b.TotalEarning.Float(),
		LockedCapital:             b.LockedCapital.Float(),
		PendingWithdraw:           b.PendingWithdraw.Float(),
		Staked:                    b.Staked.Float(),
		DepositTotal:              b.DepositTotal.Float(),
		TotalBalance:              b.TotalBalance().Float(),
		AvailableToWithdraw:       b.Withdrawable().Float(),
		MiningNextEligibleAt:      b.MiningNextEligibleAt,
		DailyProfitNextEligibleAt: b.DailyProfitNextEligibleAt,
	}
}

// ActionResultResponse is the terminal outcome of an action.
type ActionResultResponse struct {
	TransactionID  string     `json:"transaction_id"`
	Action         string     `json:"action"`
	RewardAmount   float64    `json:"reward_amount"`
	NewBalance     float64    `json:"new_balance"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
	Replayed       bool       `json:"replayed"`
}

// ToActionResultResponse converts a domain result to its API view.
func ToActionResultResponse(r *domain.ActionResult) ActionResultResponse {
	return ActionResultResponse{
		TransactionID:  r.TransactionID.String(),
		Action:         string(r.Action),
		RewardAmount:   r.Amount.Float(),
		NewBalance:     r.BalanceAfter.Float(),
		NextEligibleAt: r.NextEligibleAt,
		Replayed:       r.Replayed,
	}
}

// ActionQueuedResponse is the 202 body pointing the client at the poll
// endpoint.
type ActionQueuedResponse struct {
	Status     string `json:"status"`
	StatusURL  string `json:"status_url"`
	QueueDepth int    `json:"queue_depth"`
}

// ActionErrorResponse is the recorded terminal failure of a queued action.
type ActionErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// StatusResponse is the poll endpoint body.
type StatusResponse struct {
	Key         string                `json:"key"`
	Action      string                `json:"action"`
	Status      string                `json:"status"`
	RequestedAt time.Time             `json:"requested_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	QueueDepth  int                   `json:"queue_depth,omitempty"`
	Result      *ActionResultResponse `json:"result,omitempty"`
	Error       *ActionErrorResponse  `json:"error,omitempty"`
}

// ToStatusResponse converts a status record to its API view.
func ToStatusResponse(rec *domain.StatusRecord) StatusResponse {
	resp := StatusResponse{
		Key:         rec.Key,
		Action:      string(rec.Action),
		Status:      string(rec.Status),
		RequestedAt: rec.RequestedAt,
		UpdatedAt:   rec.UpdatedAt,
		QueueDepth:  rec.QueueDepth,
	}
	if rec.Result != nil {
		r := ToActionResultResponse(rec.Result)
		resp.Result = &r
	}
	if rec.Error != nil {
		resp.Error = &ActionErrorResponse{
			Code:      rec.Error.Code,
			Message:   rec.Error.Message,
			Retryable: rec.Error.Retryable,
		}
	}
	return resp
}

// WithdrawResponse acknowledges a submitted withdrawal.
type WithdrawResponse struct {
	TransactionID       string  `json:"transaction_id"`
	Amount              float64 `json:"amount"`
	Status              string  `json:"status"`
	PendingWithdraw     float64 `json:"pending_withdraw"`
	AvailableToWithdraw float64 `json:"available_to_withdraw"`
}

// ToWithdrawResponse converts a withdrawal receipt to its API view.
func ToWithdrawResponse(r *ports.WithdrawReceipt) WithdrawResponse {
	return WithdrawResponse{
		TransactionID:       r.TransactionID.String(),
		Amount:              r.Amount.Float(),
		Status:              string(domain.TransactionStatusPending),
		PendingWithdraw:     r.PendingWithdraw.Float(),
		AvailableToWithdraw: r.Withdrawable.Float(),
	}
}
