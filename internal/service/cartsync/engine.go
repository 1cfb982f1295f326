package cartsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

// State — наблюдаемое UI состояние движка.
type State struct {
	Cart     domain.Cart
	Status   domain.SyncStatus
	Online   bool
	QueueLen int
	Pending  *domain.PendingEdit
}

// Engine держит локальную корзину сессии согласованной с удалённым сервисом.
//
// Все поля состояния защищены mu. Мьютекс никогда не удерживается во время сетевого
// вызова, уведомления или callback наблюдателя, поэтому ответы могут приходить в
// произвольном порядке: более медленный add может перезаписать снимок, полученный
// от более позднего remove. Это допущение принято осознанно, сериализуются только
// отложенные изменения количества (один слот PendingEdit).
type Engine struct {
	factory domain.RemoteCartFactory
	conn    domain.ConnectivitySource

	logger     *log.Entry
	notifier   domain.Notifier
	publisher  domain.SyncEventPublisher
	metrics    *metrics.SyncMetrics
	observer   func(State)
	now        func() time.Time
	maxRetries int

	mu          sync.Mutex
	started     bool
	epoch       uint64
	session     domain.Session
	remote      domain.RemoteCart
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	cart        domain.Cart
	status      domain.SyncStatus
	online      bool
	inflight    int
	draining    bool
	queue       *OperationQueue
	edits       *coalescer
}

// mutation хранит отправляемое изменение вместе со снимком для отката.
type mutation struct {
	op     domain.QueuedOperation
	prev   domain.Cart
	epoch  uint64
	remote domain.RemoteCart
	online bool
}

// NewEngine создаёт движок. Сессия начинается вызовом Start.
func NewEngine(factory domain.RemoteCartFactory, conn domain.ConnectivitySource, options ...Option) *Engine {
	opts := buildOptions(options)

	return &Engine{
		factory:    factory,
		conn:       conn,
		logger:     opts.Logger,
		notifier:   opts.Notifier,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		observer:   opts.Observer,
		now:        opts.Clock,
		maxRetries: opts.MaxRetries,
		status:     domain.SyncStatusSynced,
		queue:      NewOperationQueue(opts.QueueCapacity),
		edits:      newCoalescer(opts.Scheduler, opts.Debounce),
	}
}

// Start открывает сессию: подписывается на переходы сети и один раз загружает корзину.
// Ошибка загрузки не закрывает сессию: статус становится error, Retry повторит загрузку.
func (e *Engine) Start(ctx context.Context, session domain.Session) error {
	remote, err := e.factory.ForSession(session)
	if err != nil {
		return fmt.Errorf("create cart client: %w", err)
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return domain.ErrSessionAlreadyStarted
	}
	e.epoch++
	epoch := e.epoch
	e.started = true
	e.session = session
	e.remote = remote
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.cart = domain.Cart{}
	e.queue.Reset()
	e.edits.cancel()
	e.inflight = 0
	e.draining = false
	e.unsubscribe = e.conn.Subscribe(connectivityListener{engine: e})
	e.online = e.conn.Online()
	e.setStatusLocked(domain.SyncStatusSynced)
	online := e.online
	e.mu.Unlock()

	e.metrics.SetOnline(online)
	e.metrics.SetQueueDepth(0)
	e.logger.WithFields(log.Fields{
		"user_id": session.UserID,
		"online":  online,
	}).Info("cart session started")

	return e.refetch(ctx, epoch, remote)
}

// Stop закрывает сессию: отменяет debounce, очищает очередь и корзину, снимает подписку.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.edits.cancel()
	e.queue.Reset()
	e.cart = domain.Cart{}
	e.started = false
	e.epoch++
	e.inflight = 0
	e.draining = false
	e.setStatusLocked(domain.SyncStatusSynced)
	cancel, unsubscribe := e.cancel, e.unsubscribe
	e.cancel, e.unsubscribe = nil, nil
	e.remote = nil
	userID := e.session.UserID
	e.session = domain.Session{}
	state := e.stateLocked()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	e.metrics.SetQueueDepth(0)
	e.logger.WithField("user_id", userID).Info("cart session stopped")
	e.emit(state)
}

// Add добавляет quantity единиц товара. product задаёт опциональный снимок карточки для
// оптимистичного отображения цены.
func (e *Engine) Add(ctx context.Context, productID string, quantity int32, product *domain.ProductSnapshot) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return domain.ErrSessionNotStarted
	}
	prev := e.cart
	e.cart = applyAdd(prev, productID, quantity, product, newLocalItemID, e.now())
	m := e.beginLocked(domain.OperationAdd, domain.OperationPayload{ProductID: productID, Quantity: quantity}, prev)
	state := e.stateLocked()
	e.mu.Unlock()

	e.emit(state)
	return e.dispatch(ctx, m)
}

// Update выставляет количество позиции. Запись уходит на сервер только после окна
// debounce без новых правок; quantity <= 0 удаляет позицию.
func (e *Engine) Update(ctx context.Context, itemID string, quantity int32) error {
	if quantity <= 0 {
		return e.Remove(ctx, itemID)
	}

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return domain.ErrSessionNotStarted
	}
	item, idx, ok := e.cart.FindItem(itemID)
	if !ok {
		e.mu.Unlock()
		return e.reportMissing(domain.OperationUpdate, itemID)
	}
	prev := e.cart
	e.cart = applySetQuantity(prev, idx, quantity, e.now())
	superseded := e.edits.arm(domain.PendingEdit{
		ItemID:    itemID,
		ProductID: item.ProductID,
		Quantity:  quantity,
	}, prev, e.fireDebounce)
	e.setStatusLocked(domain.SyncStatusPending)
	state := e.stateLocked()
	e.mu.Unlock()

	if superseded != nil && superseded.ProductID != item.ProductID {
		e.logger.WithFields(log.Fields{
			"superseded_product_id": superseded.ProductID,
			"product_id":            item.ProductID,
		}).Debug("pending quantity edit superseded by edit of another item")
	}
	e.emit(state)
	return nil
}

// Remove удаляет позицию. Отложенная правка количества этой же позиции отменяется,
// чтобы за удалением не последовала устаревшая запись.
func (e *Engine) Remove(ctx context.Context, itemID string) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return domain.ErrSessionNotStarted
	}
	item, idx, ok := e.cart.FindItem(itemID)
	if !ok {
		e.mu.Unlock()
		return e.reportMissing(domain.OperationRemove, itemID)
	}
	e.edits.cancelFor(item.ProductID)
	prev := e.cart
	e.cart = applyRemove(prev, idx, e.now())
	m := e.beginLocked(domain.OperationRemove, domain.OperationPayload{ProductID: item.ProductID}, prev)
	state := e.stateLocked()
	e.mu.Unlock()

	e.emit(state)
	return e.dispatch(ctx, m)
}

// Clear очищает корзину.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return domain.ErrSessionNotStarted
	}
	e.edits.cancel()
	prev := e.cart
	e.cart = applyClear(prev, e.now())
	m := e.beginLocked(domain.OperationClear, domain.OperationPayload{}, prev)
	state := e.stateLocked()
	e.mu.Unlock()

	e.emit(state)
	return e.dispatch(ctx, m)
}

// Retry сливает офлайн-очередь, если она не пуста, иначе перезагружает корзину.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return domain.ErrSessionNotStarted
	}
	queued := e.queue.Len() > 0
	epoch, remote := e.epoch, e.remote
	e.mu.Unlock()

	if queued {
		return e.drain(ctx)
	}
	return e.refetch(ctx, epoch, remote)
}

// Snapshot возвращает копию текущей корзины.
func (e *Engine) Snapshot() domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Clone()
}

// State возвращает согласованный снимок всего наблюдаемого состояния.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Status возвращает текущий статус синхронизации.
func (e *Engine) Status() domain.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Online сообщает, считается ли хост подключённым к сети.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

func (e *Engine) ItemCount() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.ItemCount
}

func (e *Engine) TotalMinor() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.TotalMinor
}

func (e *Engine) Currency() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Currency
}

// QueueLen возвращает длину офлайн-очереди.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

// QueuedOperations возвращает копию содержимого офлайн-очереди.
func (e *Engine) QueuedOperations() []domain.QueuedOperation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Snapshot()
}

// PendingEdit возвращает отложенную правку количества, если она есть.
func (e *Engine) PendingEdit() (domain.PendingEdit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.edits.current()
}

func (e *Engine) beginLocked(kind domain.OperationKind, payload domain.OperationPayload, prev domain.Cart) mutation {
	e.inflight++
	e.setStatusLocked(domain.SyncStatusPending)
	return mutation{
		op: domain.QueuedOperation{
			ID:         uuid.NewString(),
			Kind:       kind,
			Payload:    payload,
			EnqueuedAt: e.now(),
		},
		prev:   prev,
		epoch:  e.epoch,
		remote: e.remote,
		// При непустой очереди мутация встаёт в хвост, иначе обгонит ранние правки.
		online: e.online && e.queue.Len() == 0,
	}
}

// fireDebounce отправляет последнюю правку количества после тихого окна.
func (e *Engine) fireDebounce(generation uint64) {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	edit, base, ok := e.edits.take(generation)
	if !ok {
		e.mu.Unlock()
		return
	}
	m := e.beginLocked(domain.OperationUpdate, domain.OperationPayload{
		ProductID: edit.ProductID,
		Quantity:  edit.Quantity,
	}, base)
	ctx := e.ctx
	e.mu.Unlock()

	if err := e.dispatch(ctx, m); err != nil {
		e.logger.WithError(err).WithField("product_id", edit.ProductID).Debug("debounced quantity update failed")
	}
}

func (e *Engine) reportMissing(kind domain.OperationKind, itemID string) error {
	e.metrics.RecordMutation(string(kind), "precondition_failed")
	e.notify(domain.NoticeError, domain.NoticeItemNotFound, "This item is no longer in your cart.")
	return fmt.Errorf("%s %s: %w", kind, itemID, domain.ErrItemNotFound)
}

func (e *Engine) setStatusLocked(status domain.SyncStatus) {
	e.status = status
	e.metrics.SetStatus(string(status))
}

// settleLocked выводит статус после успешного обмена с сервером.
func (e *Engine) settleLocked() {
	_, editPending := e.edits.current()
	switch {
	case e.queue.Len() > 0:
		e.setStatusLocked(domain.SyncStatusError)
	case e.inflight > 0 || editPending:
		e.setStatusLocked(domain.SyncStatusPending)
	default:
		e.setStatusLocked(domain.SyncStatusSynced)
	}
}

func (e *Engine) stateLocked() State {
	state := State{
		Cart:     e.cart.Clone(),
		Status:   e.status,
		Online:   e.online,
		QueueLen: e.queue.Len(),
	}
	if edit, ok := e.edits.current(); ok {
		state.Pending = &edit
	}
	return state
}

func (e *Engine) emit(state State) {
	if e.observer != nil {
		e.observer(state)
	}
}

func (e *Engine) notify(level domain.NoticeLevel, code domain.NoticeCode, message string) {
	e.notifier.Notify(domain.Notice{Level: level, Code: code, Message: message})
}

func (e *Engine) publish(event domain.SyncEvent) {
	if e.publisher == nil {
		return
	}
	e.mu.Lock()
	event.UserID = e.session.UserID
	event.Status = e.status
	event.QueueLen = e.queue.Len()
	e.mu.Unlock()
	event.OccurredAt = e.now()

	if err := e.publisher.PublishSyncEvent(event); err != nil {
		e.logger.WithError(err).WithField("event_type", event.Type).Warn("failed to publish sync event")
	}
}

func newLocalItemID() string {
	return "local-" + uuid.NewString()
}

// connectivityListener не даёт методам OnOnline/OnOffline попасть в публичный API Engine.
type connectivityListener struct {
	engine *Engine
}

func (l connectivityListener) OnOnline()  { l.engine.handleOnline() }
func (l connectivityListener) OnOffline() { l.engine.handleOffline() }

func (e *Engine) handleOnline() {
	e.mu.Lock()
	if !e.started || e.online {
		e.mu.Unlock()
		return
	}
	e.online = true
	ctx := e.ctx
	state := e.stateLocked()
	e.mu.Unlock()

	e.metrics.SetOnline(true)
	e.notify(domain.NoticeInfo, domain.NoticeOnline, "Back online. Syncing your cart.")
	e.emit(state)

	if err := e.drain(ctx); err != nil {
		e.logger.WithError(err).Warn("drain after reconnect did not complete")
	}
}

func (e *Engine) handleOffline() {
	e.mu.Lock()
	if !e.started || !e.online {
		e.mu.Unlock()
		return
	}
	e.online = false
	state := e.stateLocked()
	e.mu.Unlock()

	e.metrics.SetOnline(false)
	e.notify(domain.NoticeWarning, domain.NoticeOffline, "You are offline. Changes will be queued and synced when the connection is restored.")
	e.emit(state)
}
