package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/avvvet/balance-services/internal/balancesvc/service"
	"github.com/go-chi/jwtauth"
)

type Handler struct {
	tokenAuth      *jwtauth.JWTAuth
	balanceService *service.BalanceService
}

func NewHandler(balanceService *service.BalanceService) *Handler {
	return &Handler{balanceService: balanceService}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "balance service is running",
		Code:    http.StatusOK,
		Data: map[string]int{
			"cached_players": h.balanceService.Len(),
		},
	})
}
