package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// Topics для Kafka
const (
	TopicSyncEvents  = "cart.sync.events"
	TopicCartChanges = "cart.changes"
)

// HeaderEventType дублирует тип события в заголовке, чтобы потребители могли фильтровать без разбора тела.
const HeaderEventType = "x-event-type"

// EventTypeCartChanged — тип сообщений топика cart.changes.
const EventTypeCartChanged = "cart.changed"

// SyncEventMessage описывает событие синхронизации корзины клиентской сессии.
type SyncEventMessage struct {
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id"`
	Operation  string    `json:"operation,omitempty"`
	ProductID  string    `json:"product_id,omitempty"`
	RetryCount int       `json:"retry_count,omitempty"`
	QueueLen   int       `json:"queue_len"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CartChangeMessage описывает изменение авторитетной копии корзины.
type CartChangeMessage struct {
	EventType string    `json:"event_type"`
	OwnerID   string    `json:"owner_id"`
	Operation string    `json:"operation"`
	ProductID string    `json:"product_id,omitempty"`
	Quantity  int32     `json:"quantity,omitempty"`
	Revision  int64     `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSyncEventMessage переводит доменное событие в сообщение.
func NewSyncEventMessage(event domain.SyncEvent) *SyncEventMessage {
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &SyncEventMessage{
		EventType:  string(event.Type),
		UserID:     event.UserID,
		Operation:  string(event.Operation),
		ProductID:  event.ProductID,
		RetryCount: event.RetryCount,
		QueueLen:   event.QueueLen,
		Status:     string(event.Status),
		Reason:     event.Reason,
		Timestamp:  ts,
	}
}

// NewCartChangeMessage переводит изменение корзины в сообщение.
func NewCartChangeMessage(change domain.CartChange) *CartChangeMessage {
	ts := change.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &CartChangeMessage{
		EventType: EventTypeCartChanged,
		OwnerID:   change.OwnerID,
		Operation: string(change.Operation),
		ProductID: change.ProductID,
		Quantity:  change.Quantity,
		Revision:  change.Revision,
		Timestamp: ts,
	}
}

// ParseSyncEvent парсит SyncEventMessage из сообщения
func ParseSyncEvent(message *sarama.ConsumerMessage) (*SyncEventMessage, error) {
	var event SyncEventMessage
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync event: %w", err)
	}
	return &event, nil
}

// ParseCartChange парсит CartChangeMessage из сообщения
func ParseCartChange(message *sarama.ConsumerMessage) (*CartChangeMessage, error) {
	var change CartChangeMessage
	if err := json.Unmarshal(message.Value, &change); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart change: %w", err)
	}
	return &change, nil
}
