package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/avvvet/balance-services/internal/balancesvc/service"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type balanceView struct {
	UserId  string `json:"user_id"`
	Balance string `json:"balance"`
}

// Pointers so a missing or null amount is rejected instead of read as zero.
type setBalanceBody struct {
	Balance *decimal.Decimal `json:"balance"`
}

type addBalanceBody struct {
	Amount *decimal.Decimal `json:"amount"`
}

func toView(b models.StoredBalance) balanceView {
	return balanceView{UserId: b.User.String(), Balance: b.Balance.StringFixed(2)}
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userParam(w, r)
	if !ok {
		return
	}

	balance, err := h.balanceService.GetUser(r.Context(), id)
	if err != nil {
		h.serviceError(w, "GetUser", err)
		return
	}

	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: toView(balance)})
}

func (h *Handler) SetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userParam(w, r)
	if !ok {
		return
	}

	var body setBalanceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.CreateResponse(w, Response{Message: "invalid body", Code: http.StatusBadRequest, Error: err.Error()})
		return
	}
	if body.Balance == nil {
		h.CreateResponse(w, Response{Message: "invalid body", Code: http.StatusBadRequest, Error: "balance is required"})
		return
	}

	balance := models.NewStoredBalance(id, *body.Balance)
	if err := h.balanceService.UpdateUser(r.Context(), balance); err != nil {
		h.serviceError(w, "UpdateUser", err)
		return
	}

	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: toView(balance)})
}

func (h *Handler) AddBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userParam(w, r)
	if !ok {
		return
	}

	var body addBalanceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.CreateResponse(w, Response{Message: "invalid body", Code: http.StatusBadRequest, Error: err.Error()})
		return
	}
	if body.Amount == nil {
		h.CreateResponse(w, Response{Message: "invalid body", Code: http.StatusBadRequest, Error: "amount is required"})
		return
	}
	amount := *body.Amount

	var result models.StoredBalance
	err := h.balanceService.ModifyUser(r.Context(), id, func(current models.StoredBalance) models.StoredBalance {
		result = current.Add(amount)
		return result
	})
	if err != nil {
		h.serviceError(w, "ModifyUser", err)
		return
	}

	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: toView(result)})
}

func (h *Handler) BalanceTopHandler(w http.ResponseWriter, r *http.Request) {
	top, err := h.balanceService.GetBalanceTop(r.Context())
	if err != nil {
		h.serviceError(w, "GetBalanceTop", err)
		return
	}

	views := make([]balanceView, 0, len(top))
	for _, b := range top {
		views = append(views, toView(b))
	}

	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: views})
}

func (h *Handler) userParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.CreateResponse(w, Response{Message: "invalid user id", Code: http.StatusBadRequest, Error: err.Error()})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) serviceError(w http.ResponseWriter, op string, err error) {
	log.Errorf("Error [BalanceService.%s] %s", op, err)

	code := http.StatusInternalServerError
	if errors.Is(err, service.ErrNotInitialized) {
		code = http.StatusServiceUnavailable
	}
	h.CreateResponse(w, Response{Message: "balance operation failed", Code: code, Error: err.Error()})
}
