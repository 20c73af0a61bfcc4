package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fitcheckr/fitcheckr/models"
	"github.com/fitcheckr/fitcheckr/subscription"
	"github.com/fitcheckr/fitcheckr/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// TryOner produces a try-on result from two base64 image payloads.
type TryOner interface {
	TryOn(ctx context.Context, userImage, articleImage string) (models.TryOnResult, error)
}

// Options carries the HTTP-level settings of the API.
type Options struct {
	AdminSecret     string
	RelayTimeout    time.Duration
	AllowedOrigin   string
	RateLimitPerMin int
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP. Only set it
	// behind a proxy that overwrites those headers.
	TrustProxy bool
}

// Server holds the dependencies shared by all handlers.
type Server struct {
	relay         TryOner
	subscriptions *subscription.Service
	logger        zerolog.Logger
	opts          Options
}

func NewServer(relay TryOner, subscriptions *subscription.Service, logger zerolog.Logger, opts Options) *Server {
	if opts.RelayTimeout <= 0 {
		opts.RelayTimeout = 30 * time.Second
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &Server{relay: relay, subscriptions: subscriptions, logger: logger, opts: opts}
}

// Routes builds the HTTP handler for the whole API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		utils.RecoverMiddleware(s.logger),
		utils.LatencyMiddleware(s.logger),
		utils.CORSMiddleware(s.opts.AllowedOrigin),
	)

	r.Get("/healthz", s.HealthHandler)

	r.Group(func(r chi.Router) {
		r.Use(utils.RateLimit(s.opts.RateLimitPerMin, time.Minute))
		r.Post("/api/try-on", s.VirtualTryOnHandler)
		r.Post("/api/subscribe", s.SubscribeHandler)
	})
	r.Get("/api/subscribe", s.SubscriberCountHandler)

	r.Get("/api/admin", s.AdminListHandler)
	r.Post("/api/admin", s.AdminActionHandler)

	return r
}

// HealthHandler reports that the process is serving.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
