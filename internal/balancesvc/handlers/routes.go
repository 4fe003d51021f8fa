package handlers

import (
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/health", h.HealthHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/balances/top", h.BalanceTopHandler)
			r.Get("/balances/{userID}", h.GetBalanceHandler)
			r.Put("/balances/{userID}", h.SetBalanceHandler)
			r.Post("/balances/{userID}/add", h.AddBalanceHandler)
		})
	})
}

func (h *Handler) InitAuth(secret string) {
	if secret == "" {
		log.Warn("JWT_SECRET_KEY is empty, balance routes accept tokens signed with an empty key")
	}
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)
}
