package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/helpbyexperts/ava/backend/internal/config"
	"github.com/helpbyexperts/ava/backend/internal/handler/agent"
	"github.com/helpbyexperts/ava/backend/internal/handler/chat"
	paymenthandler "github.com/helpbyexperts/ava/backend/internal/handler/payment"
	scripthandler "github.com/helpbyexperts/ava/backend/internal/handler/script"
	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/middleware"
	"github.com/helpbyexperts/ava/backend/internal/model/script"
	"github.com/helpbyexperts/ava/backend/internal/observability"
	"github.com/helpbyexperts/ava/backend/internal/service/notify"
	"github.com/helpbyexperts/ava/backend/internal/service/payment"
	"github.com/helpbyexperts/ava/backend/internal/service/triage"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Triage   *triage.Manager
	Hub      *notify.Hub
	Payments payment.Provider
	Server   config.ServerConfig
	Payment  config.PaymentConfig
	// Scripts defaults to a store holding only the manager's script.
	Scripts script.Store
	// Limiter throttles the payment endpoints per client IP. A default one
	// is built from Server when nil.
	Limiter *middleware.RateLimiter
	Logger  *logging.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(deps.Server.AllowedOrigins))
	r.Use(middleware.Metrics)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		status := "Offline"
		if deps.Triage.Online() {
			status = "Online"
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Ava Server Running. AI: %s", status)
	})
	r.Handle("/metrics", observability.MetricsHandler())

	scripts := deps.Scripts
	if scripts == nil {
		scripts = script.NewMemoryStore(deps.Triage.Script())
	}
	scripthandler.New(scripts).RegisterRoutes(r)

	chat.NewWebSocketHandler(deps.Triage, deps.Payments, chat.Options{
		AllowedOrigins: deps.Server.AllowedOrigins,
		RateLimitRPS:   deps.Server.RateLimitRPS,
		RateLimitBurst: deps.Server.RateLimitBurst,
	}, log).RegisterRoutes(r)

	if deps.Payments != nil {
		limiter := deps.Limiter
		if limiter == nil {
			limiter = middleware.NewRateLimiter(deps.Server.RateLimitRPS, deps.Server.RateLimitBurst)
		}
		paymenthandler.New(deps.Payments, deps.Triage, deps.Payment.SuccessURL, deps.Payment.CancelURL, log).
			RegisterRoutes(r, limiter.PerIP)
	}

	// the expert API can mark sessions paid, so it only exists behind a token
	if deps.Hub != nil && deps.Server.AgentToken != "" {
		agent.New(deps.Triage, deps.Hub, deps.Server.AgentToken, log).RegisterRoutes(r)
	}

	return r
}
