package cartsync

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

const (
	defaultDebounce      = 1000 * time.Millisecond
	defaultQueueCapacity = 50
	defaultMaxRetries    = 3
)

// EngineOptions задаёт параметры движка синхронизации.
type EngineOptions struct {
	Logger        *log.Entry
	Scheduler     domain.Scheduler
	Notifier      domain.Notifier
	Publisher     domain.SyncEventPublisher
	Metrics       *metrics.SyncMetrics
	Observer      func(State)
	Clock         func() time.Time
	Debounce      time.Duration
	QueueCapacity int
	MaxRetries    int
}

// Option настраивает Engine.
type Option func(*EngineOptions)

// WithLogger задаёт logger движка.
func WithLogger(logger *log.Entry) Option {
	return func(opts *EngineOptions) {
		opts.Logger = logger
	}
}

// WithScheduler подменяет планировщик отложенных задач (в тестах ручной).
func WithScheduler(scheduler domain.Scheduler) Option {
	return func(opts *EngineOptions) {
		opts.Scheduler = scheduler
	}
}

// WithNotifier задаёт получателя пользовательских уведомлений.
func WithNotifier(notifier domain.Notifier) Option {
	return func(opts *EngineOptions) {
		opts.Notifier = notifier
	}
}

// WithEventPublisher задаёт publisher событий синхронизации.
func WithEventPublisher(publisher domain.SyncEventPublisher) Option {
	return func(opts *EngineOptions) {
		opts.Publisher = publisher
	}
}

// WithMetrics включает Prometheus-метрики.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(opts *EngineOptions) {
		opts.Metrics = m
	}
}

// WithObserver задаёт callback, получающий состояние после каждого перехода.
func WithObserver(observer func(State)) Option {
	return func(opts *EngineOptions) {
		opts.Observer = observer
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *EngineOptions) {
		opts.Clock = clock
	}
}

// WithDebounce задаёт окно склейки изменений количества.
func WithDebounce(d time.Duration) Option {
	return func(opts *EngineOptions) {
		opts.Debounce = d
	}
}

// WithQueueCapacity задаёт максимальную длину офлайн-очереди.
func WithQueueCapacity(capacity int) Option {
	return func(opts *EngineOptions) {
		opts.QueueCapacity = capacity
	}
}

// WithMaxRetries задаёт число неудачных попыток, после которого операция выбрасывается из очереди.
func WithMaxRetries(maxRetries int) Option {
	return func(opts *EngineOptions) {
		opts.MaxRetries = maxRetries
	}
}

func buildOptions(options []Option) EngineOptions {
	opts := EngineOptions{
		Debounce:      defaultDebounce,
		QueueCapacity: defaultQueueCapacity,
		MaxRetries:    defaultMaxRetries,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "cartsync")
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler()
	}
	if opts.Notifier == nil {
		opts.Notifier = logNotifier{logger: opts.Logger}
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return opts
}

// logNotifier пишет уведомления в лог, когда UI не подключён.
type logNotifier struct {
	logger *log.Entry
}

func (n logNotifier) Notify(notice domain.Notice) {
	entry := n.logger.WithField("code", notice.Code)
	switch notice.Level {
	case domain.NoticeError:
		entry.Error(notice.Message)
	case domain.NoticeWarning:
		entry.Warn(notice.Message)
	default:
		entry.Info(notice.Message)
	}
}
