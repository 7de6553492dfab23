package posts

import (
	"github.com/go-chi/chi/v5"

	"github.com/CampusConnect/CC-Backend/internal/middleware"
)

func (s *Service) RegisterRoutes(r chi.Router, verifier middleware.TokenVerifier) {
	r.Get("/posts", s.GetPostsHandler)
	r.Get("/post/{id}", s.GetPostHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(verifier))

		r.Post("/event/register", s.RegisterEventHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware)
			r.Post("/post", s.CreatePostHandler)
			r.Put("/post/{id}", s.UpdatePostHandler)
			r.Delete("/post/{id}", s.DeletePostHandler)
		})
	})
}
