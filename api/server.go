/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK (outermost first):
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client identity from proxy headers
  3. Requests:      zap access log
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. StripSlashes:  /accounts/ and /accounts route the same
  6. CORS:          Cross-origin requests for a browser frontend
  7. Rate limit:    Fixed window per client IP, skips probes
  8. Timeout:       Request-scoped deadline for store and cache calls

ROUTES:
  /health, /ready
  /accounts, /accounts/{id}
  /categories, /categories/tree, /categories/{id}
  /transactions, /transactions/{id}
  /transfers

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - ratelimit/middleware.go: Rate limiting
  - cmd/server/main.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/money-tracker/logging"
	"github.com/warp/money-tracker/ratelimit"
)

// RouterOptions configure the middleware stack.
type RouterOptions struct {
	// Limiter is optional; nil disables rate limiting.
	Limiter        *ratelimit.Limiter
	RequestTimeout time.Duration
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Requests(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
	}))
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware(ratelimit.ClientIP, "/health", "/ready"))
	}
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	// Probes
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	// Account routes
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.ListAccounts)
		r.Post("/", h.CreateAccount)
		r.Put("/{id}", h.UpdateAccount)
	})

	// Category routes
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)
		r.Post("/", h.CreateCategory)
		r.Get("/tree", h.CategoryTree)
		r.Put("/{id}", h.UpdateCategory)
	})

	// Transaction routes
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.ListTransactions)
		r.Post("/", h.CreateTransaction)
		r.Put("/{id}", h.UpdateTransaction)
		r.Delete("/{id}", h.DeleteTransaction)
	})

	r.Post("/transfers", h.CreateTransfer)

	return r
}
