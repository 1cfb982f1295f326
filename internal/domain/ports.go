package domain

import (
	"context"
	"time"
)

// RemoteCart описывает авторитетный удалённый сервис корзины одной сессии.
type RemoteCart interface {
	Fetch(ctx context.Context) (Cart, error)
	Add(ctx context.Context, productID string, quantity int32) (Cart, error)
	Update(ctx context.Context, productID string, quantity int32) (Cart, error)
	Remove(ctx context.Context, productID string) (Cart, error)
	Clear(ctx context.Context) error
}

// RemoteCartFactory выдаёт клиент удалённого сервиса, аутентифицированный токеном сессии.
type RemoteCartFactory interface {
	ForSession(session Session) (RemoteCart, error)
}

// Timer — однократная отложенная задача.
type Timer interface {
	// Stop отменяет задачу, если она ещё не выполнена; возвращает false, если уже поздно.
	Stop() bool
}

// Scheduler позволяет взводить и отменять отложенные задачи (debounce).
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// ConnectivityListener получает переходы online/offline.
type ConnectivityListener interface {
	OnOnline()
	OnOffline()
}

// ConnectivitySource сообщает о переходах online/offline хоста.
type ConnectivitySource interface {
	// Online возвращает текущее состояние сети.
	Online() bool
	// Subscribe регистрирует слушателя; возвращённая функция снимает подписку.
	// Слушатель не должен вызываться синхронно из самого Subscribe.
	Subscribe(listener ConnectivityListener) (unsubscribe func())
}

// Notifier доставляет уведомления движка в UI.
type Notifier interface {
	Notify(notice Notice)
}

// SyncEventPublisher публикует события синхронизации во внешнюю шину.
type SyncEventPublisher interface {
	PublishSyncEvent(event SyncEvent) error
}

// CartChange фиксирует факт изменения серверной копии корзины.
type CartChange struct {
	OwnerID   string
	Operation OperationKind
	ProductID string
	Quantity  int32
	Revision  int64
	At        time.Time
}

// CartChangePublisher публикует изменения серверной корзины.
type CartChangePublisher interface {
	PublishCartChange(change CartChange) error
}

// Catalog возвращает сведения о товарах для серверной корзины.
type Catalog interface {
	Product(ctx context.Context, productID string) (ProductSnapshot, error)
}

// CartStore — хранилище авторитетной копии корзин.
// expectedRevision == 0 отключает проверку ревизии; при несовпадении возвращается ErrConflict.
type CartStore interface {
	Get(ctx context.Context, ownerID string) (Cart, error)
	AddItem(ctx context.Context, ownerID string, product ProductSnapshot, quantity int32, expectedRevision int64) (Cart, error)
	SetQuantity(ctx context.Context, ownerID, productID string, quantity int32, expectedRevision int64) (Cart, error)
	RemoveItem(ctx context.Context, ownerID, productID string, expectedRevision int64) (Cart, error)
	Clear(ctx context.Context, ownerID string, expectedRevision int64) (Cart, error)
	Ping(ctx context.Context) error
}

// IdempotencyRepository хранит результаты мутаций, выполненных с Idempotency-Key.
type IdempotencyRepository interface {
	// CreateProcessing резервирует ключ. Если ключ уже есть, возвращает существующую запись
	// вместе с ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Delete освобождает ключ, чтобы повтор запроса выполнился заново.
	Delete(ctx context.Context, key string) error
	// DeleteExpired удаляет не более limit записей с TTLAt <= before.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
