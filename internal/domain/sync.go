package domain

import "time"

// SyncStatus показывает, согласованы ли локальное и удалённое состояние корзины.
type SyncStatus string

const (
	// Локальный снимок совпадает с последним ответом сервера.
	SyncStatusSynced SyncStatus = "synced"
	// Есть изменения, ожидающие отправки или ответа.
	SyncStatusPending SyncStatus = "pending"
	// Последнее изменение не дошло до сервера или было отклонено.
	SyncStatusError SyncStatus = "error"
)

// OperationKind задаёт тип мутации корзины.
type OperationKind string

const (
	OperationAdd    OperationKind = "add"
	OperationUpdate OperationKind = "update"
	OperationRemove OperationKind = "remove"
	OperationClear  OperationKind = "clear"
)

// OperationPayload хранит аргументы мутации для удалённого сервиса.
type OperationPayload struct {
	ProductID string
	Quantity  int32
}

// QueuedOperation описывает мутацию, отложенную в офлайн-очереди.
type QueuedOperation struct {
	ID         string
	Kind       OperationKind
	Payload    OperationPayload
	RetryCount int
	EnqueuedAt time.Time
}

// PendingEdit — последнее изменение количества, ожидающее окончания окна debounce.
type PendingEdit struct {
	ItemID    string
	ProductID string
	Quantity  int32
}

// Session описывает аутентифицированную сессию покупателя.
type Session struct {
	UserID string
	Token  string
}

// NoticeLevel определяет важность уведомления для UI.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// NoticeCode — машинно-читаемый код уведомления.
type NoticeCode string

const (
	NoticeOffline      NoticeCode = "offline"
	NoticeOnline       NoticeCode = "online"
	NoticeQueued       NoticeCode = "queued"
	NoticeQueueFull    NoticeCode = "queue_full"
	NoticeConflict     NoticeCode = "conflict"
	NoticeRolledBack   NoticeCode = "rolled_back"
	NoticeDropped      NoticeCode = "dropped"
	NoticeSyncFailed   NoticeCode = "sync_failed"
	NoticeItemNotFound NoticeCode = "item_not_found"
)

// Notice передаёт сообщение движка синхронизации, адресованное пользователю.
type Notice struct {
	Level   NoticeLevel
	Code    NoticeCode
	Message string
}

// SyncEventType определяет тип события синхронизации для внешней телеметрии.
type SyncEventType string

const (
	SyncEventFetched    SyncEventType = "cart.fetched"
	SyncEventSynced     SyncEventType = "cart.synced"
	SyncEventQueued     SyncEventType = "cart.queued"
	SyncEventDropped    SyncEventType = "cart.dropped"
	SyncEventConflict   SyncEventType = "cart.conflict"
	SyncEventRolledBack SyncEventType = "cart.rolled_back"
	SyncEventDrained    SyncEventType = "cart.drained"
)

// SyncEvent описывает событие жизненного цикла синхронизации одной сессии.
type SyncEvent struct {
	Type       SyncEventType
	UserID     string
	Operation  OperationKind
	ProductID  string
	RetryCount int
	QueueLen   int
	Status     SyncStatus
	Reason     string
	OccurredAt time.Time
}
