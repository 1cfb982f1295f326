// Package httpapi реализует HTTP API авторитетного сервиса корзины.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Options задаёт зависимости сервера.
type Options struct {
	Logger             *log.Entry
	Metrics            *metrics.HTTPMetrics
	IdempotencyMetrics *metrics.IdempotencyMetrics
	Idempotency        domain.IdempotencyRepository
	IdempotencyTTL     time.Duration
	Changes            domain.CartChangePublisher
	Authenticator      Authenticator
	Clock              func() time.Time
}

// Option настраивает Server.
type Option func(*Options)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт HTTP-метрики.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithIdempotency включает обработку заголовка Idempotency-Key.
func WithIdempotency(repo domain.IdempotencyRepository, m *metrics.IdempotencyMetrics, ttl time.Duration) Option {
	return func(opts *Options) {
		opts.Idempotency = repo
		opts.IdempotencyMetrics = m
		opts.IdempotencyTTL = ttl
	}
}

// WithChangePublisher задаёт получателя изменений корзин.
func WithChangePublisher(publisher domain.CartChangePublisher) Option {
	return func(opts *Options) {
		opts.Changes = publisher
	}
}

// WithAuthenticator задаёт проверку bearer-токенов.
func WithAuthenticator(auth Authenticator) Option {
	return func(opts *Options) {
		opts.Authenticator = auth
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// Server обслуживает /api/cart поверх CartStore и Catalog.
type Server struct {
	store       domain.CartStore
	catalog     domain.Catalog
	idempotency domain.IdempotencyRepository
	idemMetrics *metrics.IdempotencyMetrics
	idemTTL     time.Duration
	changes     domain.CartChangePublisher
	auth        Authenticator
	metrics     *metrics.HTTPMetrics
	logger      *log.Entry
	now         func() time.Time
}

// NewServer создаёт сервер API корзины.
func NewServer(store domain.CartStore, catalog domain.Catalog, options ...Option) *Server {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "cart-http-api")
	}
	if opts.Authenticator == nil {
		opts.Authenticator = TokenAsOwner{}
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Server{
		store:       store,
		catalog:     catalog,
		idempotency: opts.Idempotency,
		idemMetrics: opts.IdempotencyMetrics,
		idemTTL:     opts.IdempotencyTTL,
		changes:     opts.Changes,
		auth:        opts.Authenticator,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         opts.Clock,
	}
}

// Routes возвращает http.Handler со всеми маршрутами API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Route("/api/cart", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/", s.getCart)

		r.Group(func(r chi.Router) {
			r.Use(s.withIdempotency)
			r.Delete("/", s.clearCart)
			r.Post("/items", s.addItem)
			r.Put("/items/{productId}", s.updateItem)
			r.Delete("/items/{productId}", s.removeItem)
		})
	})

	return r
}
