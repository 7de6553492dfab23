package users

import (
	"github.com/go-chi/chi/v5"

	"github.com/CampusConnect/CC-Backend/internal/middleware"
)

func (s *Service) RegisterRoutes(r chi.Router, verifier middleware.TokenVerifier) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(verifier))

		r.Put("/user/{id}", s.UpdateUserHandler) // self-or-admin checked in the handler
		r.Post("/device-token", s.RegisterDeviceHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware)
			r.Get("/users", s.GetUsersHandler)
			r.Get("/user/{id}", s.GetUserHandler)
			r.Delete("/user/{id}", s.DeleteUserHandler)
			r.Post("/user", s.CreateUserHandler)
		})
	})
}
