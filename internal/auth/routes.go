package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CampusConnect/CC-Backend/internal/middleware"
)

// RegisterRoutes attaches the auth endpoints to r. The limiter guards the
// endpoints a single host could abuse (credential guessing, PIN mail spam).
func (s *Service) RegisterRoutes(r chi.Router, limiter func(http.Handler) http.Handler) {
	verifier := TokenInfo{Secret: s.Secret}

	r.Post("/register", s.RegisterHandler)
	r.With(limiter).Post("/login", s.LoginHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(verifier))
		r.Get("/whoami", s.WhoamiHandler)
		r.Post("/verif-email", s.VerifyEmailHandler)
		r.Post("/verif-email/{id}", s.VerifyEmailHandler)
		r.With(limiter).Get("/send-verif", s.ResendPinHandler)
		r.With(middleware.AdminMiddleware).Post("/create-admin", s.CreateAdminHandler)
	})
}
