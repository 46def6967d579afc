package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/servicepoint/garage-bookings/internal/http/handlers"
	"github.com/servicepoint/garage-bookings/internal/http/middleware"
	"github.com/servicepoint/garage-bookings/internal/http/response"
	"github.com/servicepoint/garage-bookings/internal/platform/auth"
	"github.com/servicepoint/garage-bookings/internal/platform/mailer"
	"github.com/servicepoint/garage-bookings/internal/platform/ratelimit"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
	"github.com/servicepoint/garage-bookings/internal/service"
	"github.com/servicepoint/garage-bookings/pkg/config"
	"github.com/servicepoint/garage-bookings/pkg/database"
	"github.com/servicepoint/garage-bookings/pkg/events"
	"github.com/servicepoint/garage-bookings/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	response.Production = cfg.IsProduction()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Repositories
	adminsRepo := postgres.NewAdminsRepo(pool)
	garagesRepo := postgres.NewGaragesRepo(pool)
	servicesRepo := postgres.NewServicesRepo(pool)
	usersRepo := postgres.NewUsersRepo(pool)
	bookingsRepo := postgres.NewBookingsRepo(pool)

	// Platform
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	emailSvc := buildMailer(cfg)
	limiter := buildLimiter(cfg)
	if ms, ok := limiter.(*ratelimit.MemoryStore); ok {
		ms.StartPruning(cfg.RateLimit.PruneInterval)
		defer ms.Stop()
	}

	// Services
	garageSvc := service.NewGarageService(garagesRepo, emailSvc, eventBus)
	bookingSvc := service.NewBookingService(bookingsRepo, garagesRepo, usersRepo, eventBus)

	authn := middleware.NewAuthenticator(tokens, adminsRepo, garagesRepo, cfg.Auth.SessionMaxAge)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimit(limiter))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Mount("/auth", handlers.NewAuthHandler(tokens, adminsRepo, garagesRepo, garageSvc, authn).Routes())
		r.Mount("/bookings", handlers.NewBookingHandler(bookingSvc, bookingsRepo, authn).Routes())
		r.Mount("/garages", handlers.NewGarageHandler(garagesRepo, servicesRepo, bookingsRepo, authn).Routes())
		r.Mount("/admin", handlers.NewAdminHandler(adminsRepo, garagesRepo, usersRepo, bookingsRepo, garageSvc, bookingSvc, authn).Routes())
		r.Mount("/users", handlers.NewUserHandler(usersRepo, bookingSvc).Routes())
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down api server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("api server shutdown error", "error", err)
		}
	}()

	logger.Info("starting api server", "port", cfg.Server.Port, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("api server error", "error", err)
		os.Exit(1)
	}
}

// buildMailer picks the sending backend: dev logger, MailerSend when an
// API key is present, else SMTP.
func buildMailer(cfg *config.Config) mailer.Service {
	if cfg.Email.DevMode {
		return mailer.NewDevMailer()
	}
	if cfg.Email.MailerSendKey != "" {
		return mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.SMTPFromName, cfg.Email.SMTPFrom)
	}
	return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
}

// buildLimiter uses Redis when configured so several API processes
// share one window, otherwise the in-process store.
func buildLimiter(cfg *config.Config) ratelimit.Store {
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid REDIS_URL, falling back to in-memory rate limiting", "error", err)
		} else {
			if cfg.Redis.Password != "" {
				opts.Password = cfg.Redis.Password
			}
			opts.DB = cfg.Redis.DB
			return ratelimit.NewRedisStore(redis.NewClient(opts), cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)
		}
	}
	return ratelimit.NewMemoryStore(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)
}
