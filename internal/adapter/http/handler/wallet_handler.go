package handler

import (
	"reward-engine/internal/adapter/http/dto"
	"reward-engine/internal/adapter/http/middleware"
	"reward-engine/internal/core/ports"
	"reward-engine/pkg/apperror"
	"reward-engine/pkg/money"
	"reward-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles the synchronous balance side channel.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	balance, err := h.walletSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToBalanceResponse(balance))
}

// SubmitWithdrawal handles POST /api/v1/wallet/withdrawals.
func (h *WalletHandler) SubmitWithdrawal(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	amount, err := money.ToCents(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation("amount must be a decimal number"))
		return
	}

	receipt, err := h.walletSvc.SubmitWithdrawal(c.Request.Context(), ports.WithdrawRequest{
		UserID: userID,
		Amount: amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToWithdrawResponse(receipt))
}
