package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/CampusConnect/CC-Backend/internal/auth"
	"github.com/CampusConnect/CC-Backend/internal/cache"
	"github.com/CampusConnect/CC-Backend/internal/config"
	"github.com/CampusConnect/CC-Backend/internal/db"
	"github.com/CampusConnect/CC-Backend/internal/imagestore"
	"github.com/CampusConnect/CC-Backend/internal/mailer"
	"github.com/CampusConnect/CC-Backend/internal/middleware"
	"github.com/CampusConnect/CC-Backend/internal/posts"
	"github.com/CampusConnect/CC-Backend/internal/push"
	"github.com/CampusConnect/CC-Backend/internal/users"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	gormDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := auth.Init(gormDB); err != nil {
		log.Fatal(err)
	}
	if err := posts.Init(gormDB); err != nil {
		log.Fatal(err)
	}

	rdb, err := cache.Connect(cfg.RedisAddr)
	if err != nil {
		log.Fatal(err)
	}

	mail := &mailer.SMTPMailer{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.MailFrom,
	}

	authService := auth.NewService(gormDB, auth.NewPinStore(rdb), mail, []byte(cfg.JWTSecret))
	userService := users.NewService(gormDB, imagestore.NewClient(cfg.ImageKitPrivateKey, cfg.ImageKitEndpoint))
	postService := posts.NewService(gormDB, push.NewClient(cfg.PushEndpoint))

	verifier := auth.TokenInfo{Secret: []byte(cfg.JWTSecret)}
	limiter := middleware.RateLimit(cfg.LoginRatePerMin)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Get("/", RootHandler)

	r.Route("/api/v1", func(r chi.Router) {
		authService.RegisterRoutes(r, limiter)
		userService.RegisterRoutes(r, verifier)
		postService.RegisterRoutes(r, verifier)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"status":false,"message":"are you lost? %s %s is not registered!"}`, req.Method, req.URL.Path)
	})

	log.Printf("Server listening on port :%s...", cfg.Port)
	if err := http.ListenAndServe("0.0.0.0:"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
