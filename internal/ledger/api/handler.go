// Package api exposes the ledger engine over HTTP. Routing, auth, and
// status mapping live here; all business rules stay in the service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"campus-loyalty/internal/auth"
	"campus-loyalty/internal/ledger"
	"campus-loyalty/internal/ledger/qr"
	"campus-loyalty/internal/logger"
	"campus-loyalty/internal/models"
	"campus-loyalty/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *ledger.TransactionService
	QR      *qr.Generator
	Log     *logger.Logger
}

// Routes registers the ledger endpoints. The caller mounts these behind the
// auth middleware; role gates are layered per route.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.With(auth.RequireRole(models.RoleCashier)).Post("/", h.CreateTransaction)
		r.With(auth.RequireRole(models.RoleManager)).Get("/{transactionId}", h.GetTransaction)
		r.With(auth.RequireRole(models.RoleManager)).Patch("/{transactionId}/suspicious", h.SetSuspicious)
		r.With(auth.RequireRole(models.RoleCashier)).Patch("/{transactionId}/processed", h.MarkProcessed)
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/me/transactions", h.CreateRedemption)
		r.Get("/me/transactions", h.ListOwnTransactions)
		r.Get("/me/transactions/{transactionId}/qr", h.RedemptionQR)
		r.Post("/{utorid}/transactions", h.CreateTransfer)
	})

	r.Post("/events/{eventId}/transactions", h.AwardEventPoints)
}

type createTransactionRequest struct {
	Type         string  `json:"type"`
	Utorid       string  `json:"utorid"`
	Spent        float64 `json:"spent"`
	Amount       int     `json:"amount"`
	RelatedID    int64   `json:"relatedId"`
	PromotionIDs []int64 `json:"promotionIds"`
	Remark       string  `json:"remark"`
}

// CreateTransaction handles purchase and adjustment creation; the payload's
// type field selects the branch.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	actor := auth.Actor(r.Context())

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid payload", err.Error()))
		return
	}

	var view *ledger.TransactionView
	var err error

	switch models.TransactionType(req.Type) {
	case models.TransactionPurchase:
		view, err = h.Service.CreatePurchase(r.Context(), actor.ID, ledger.PurchaseRequest{
			Utorid:       req.Utorid,
			Spent:        req.Spent,
			PromotionIDs: req.PromotionIDs,
			Remark:       req.Remark,
		})
	case models.TransactionAdjustment:
		view, err = h.Service.CreateAdjustment(r.Context(), actor.ID, ledger.AdjustmentRequest{
			Utorid:       req.Utorid,
			Amount:       req.Amount,
			RelatedID:    req.RelatedID,
			PromotionIDs: req.PromotionIDs,
			Remark:       req.Remark,
		})
	default:
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid payload", fmt.Sprintf("unsupported transaction type %q", req.Type)))
		return
	}

	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("transaction created", view))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	view, err := h.Service.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("transaction", view))
}

type suspiciousRequest struct {
	Suspicious bool `json:"suspicious"`
}

func (h *Handler) SetSuspicious(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	var req suspiciousRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid payload", err.Error()))
		return
	}

	view, err := h.Service.SetSuspicious(r.Context(), id, req.Suspicious)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("suspicious flag updated", view))
}

func (h *Handler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	actor := auth.Actor(r.Context())
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	view, err := h.Service.MarkRedemptionProcessed(r.Context(), actor.ID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("redemption processed", view))
}

func (h *Handler) CreateRedemption(w http.ResponseWriter, r *http.Request) {
	actor := auth.Actor(r.Context())

	var req ledger.RedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid payload", err.Error()))
		return
	}

	view, err := h.Service.CreateRedemption(r.Context(), actor.ID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("redemption requested", view))
}

func (h *Handler) ListOwnTransactions(w http.ResponseWriter, r *http.Request) {
	actor := auth.Actor(r.Context())

	views, err := h.Service.ListUserTransactions(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("transactions", views))
}

// RedemptionQR renders one of the caller's own pending redemptions as a QR
// PNG for the register.
func (h *Handler) RedemptionQR(w http.ResponseWriter, r *http.Request) {
	actor := auth.Actor(r.Context())
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}

	trx, err := h.Service.Transaction(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if trx.UserID != actor.ID {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("forbidden", "not your transaction"))
		return
	}

	png, err := h.QR.RedemptionQR(*trx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	actor := auth.Actor(r.Context())
	receiver := chi.URLParam(r, "utorid")

	var req ledger.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid payload", err.Error()))
		return
	}
	req.Receiver = receiver

	view, err := h.Service.CreateTransfer(r.Context(), actor.ID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("transfer completed", view))
}

func (h *Handler) AwardEventPoints(w http.ResponseWriter, r *http.Request) {
	actor := auth.Actor(r.Context())

	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid payload", "eventId must be an integer"))
		return
	}

	var req ledger.EventAwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid payload", err.Error()))
		return
	}
	req.EventID = eventID

	views, err := h.Service.AwardEventPoints(r.Context(), actor.ID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("points awarded", views))
}

func (h *Handler) transactionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "transactionId"), 10, 64)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid payload", "transactionId must be an integer"))
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status, message = http.StatusBadRequest, "invalid input"
	case errors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrForbidden):
		status, message = http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrInvalidState):
		status, message = http.StatusConflict, "conflict"
	default:
		if h.Log != nil {
			h.Log.Error("API", err.Error())
		}
		utils.WriteJSON(w, status, utils.ErrorResponse(message, "unexpected error"))
		return
	}

	utils.WriteJSON(w, status, utils.ErrorResponse(message, err.Error()))
}
