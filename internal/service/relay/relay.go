// Package relay публикует события корзины во внешнюю шину в фоне,
// не задерживая движок синхронизации и обработчики HTTP API.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

const (
	defaultBufferSize     = 1024
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultDrainTimeout   = 5 * time.Second
)

// ErrBufferFull возвращается, когда буфер событий заполнен и событие отброшено.
var ErrBufferFull = errors.New("event buffer is full")

// Sink синхронно принимает события (например, Kafka).
type Sink interface {
	domain.SyncEventPublisher
	domain.CartChangePublisher
}

// Options задаёт параметры Relay.
type Options struct {
	Logger         *log.Entry
	Metrics        *metrics.RelayMetrics
	BufferSize     int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	DrainTimeout   time.Duration
}

// Option настраивает Relay.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithBufferSize задаёт ёмкость буфера.
func WithBufferSize(size int) Option {
	return func(opts *Options) {
		opts.BufferSize = size
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *Options) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовую задержку exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *Options) {
		opts.RetryBaseDelay = delay
	}
}

// WithDrainTimeout ограничивает дослив буфера после отмены ctx.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.DrainTimeout = timeout
	}
}

type envelope struct {
	syncEvent  *domain.SyncEvent
	cartChange *domain.CartChange
}

func (e envelope) kind() string {
	if e.syncEvent != nil {
		return string(e.syncEvent.Type)
	}
	return "cart.changed"
}

// Relay буферизует события и публикует их в Sink из отдельной горутины.
// Publish* никогда не блокируются: при переполнении событие отбрасывается.
type Relay struct {
	sink           Sink
	buffer         chan envelope
	logger         *log.Entry
	metrics        *metrics.RelayMetrics
	maxAttempts    int
	retryBaseDelay time.Duration
	drainTimeout   time.Duration

	mu     sync.RWMutex
	closed bool
}

// New создаёт Relay поверх sink.
func New(sink Sink, options ...Option) *Relay {
	opts := Options{
		BufferSize:     defaultBufferSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
		DrainTimeout:   defaultDrainTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "event-relay")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}

	return &Relay{
		sink:           sink,
		buffer:         make(chan envelope, opts.BufferSize),
		logger:         logger,
		metrics:        opts.Metrics,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		drainTimeout:   opts.DrainTimeout,
	}
}

// PublishSyncEvent ставит событие синхронизации в буфер.
func (r *Relay) PublishSyncEvent(event domain.SyncEvent) error {
	return r.enqueue(envelope{syncEvent: &event})
}

// PublishCartChange ставит изменение корзины в буфер.
func (r *Relay) PublishCartChange(change domain.CartChange) error {
	return r.enqueue(envelope{cartChange: &change})
}

// Buffered возвращает число событий, ожидающих публикации.
func (r *Relay) Buffered() int {
	return len(r.buffer)
}

func (r *Relay) enqueue(env envelope) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.RecordDropped("closed")
		return fmt.Errorf("event relay is closed")
	}
	select {
	case r.buffer <- env:
		r.metrics.SetBuffered(len(r.buffer))
		return nil
	default:
		r.metrics.RecordDropped("buffer_full")
		r.logger.WithField("event", env.kind()).Warn("event buffer is full, event dropped")
		return ErrBufferFull
	}
}

// Run публикует события до отмены ctx, затем досливает буфер не дольше DrainTimeout.
func (r *Relay) Run(ctx context.Context) {
	if r.sink == nil {
		r.logger.Warn("event relay is disabled: sink is nil")
		return
	}

	for {
		select {
		case <-ctx.Done():
			r.drain(nil)
			return
		case env := <-r.buffer:
			r.metrics.SetBuffered(len(r.buffer))
			if r.deliver(ctx, env) {
				// Отмена застала событие в паузе между попытками: дошлём его первым.
				r.drain(&env)
				return
			}
		}
	}
}

// drain закрывает приём и досылает inflight и остаток буфера под собственным таймаутом.
func (r *Relay) drain(inflight *envelope) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
	defer cancel()

	next := inflight
	for {
		var env envelope
		if next != nil {
			env, next = *next, nil
		} else {
			select {
			case env = <-r.buffer:
			default:
				r.metrics.SetBuffered(0)
				return
			}
		}

		lost := 0
		if r.deliver(ctx, env) {
			lost = 1
			r.metrics.RecordDropped("shutdown")
		}
		if ctx.Err() != nil {
			if left := len(r.buffer) + lost; left > 0 {
				r.logger.WithField("left", left).Warn("event relay stopped before buffer was drained")
			}
			return
		}
	}
}

// deliver публикует событие с повторами. true означает, что ctx отменён раньше,
// чем попытки исчерпались, и событие не доставлено.
func (r *Relay) deliver(ctx context.Context, env envelope) bool {
	err := r.publishWithRetry(ctx, env)
	if err == nil {
		return false
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return true
	}
	r.metrics.RecordAttempt("failed")
	r.logger.WithError(err).WithField("event", env.kind()).Error("event publish failed after retries")
	return false
}

func (r *Relay) publishWithRetry(ctx context.Context, env envelope) error {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.publish(env)
		if err == nil {
			r.metrics.RecordAttempt("sent")
			return nil
		}
		lastErr = err
		r.metrics.RecordAttempt("retry_error")

		if attempt >= r.maxAttempts {
			break
		}

		delay := r.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *Relay) publish(env envelope) error {
	if env.syncEvent != nil {
		return r.sink.PublishSyncEvent(*env.syncEvent)
	}
	return r.sink.PublishCartChange(*env.cartChange)
}

func (r *Relay) retryBackoff(attempt int) time.Duration {
	if r.retryBaseDelay <= 0 {
		return 0
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := r.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

var (
	_ domain.SyncEventPublisher  = (*Relay)(nil)
	_ domain.CartChangePublisher = (*Relay)(nil)
)
