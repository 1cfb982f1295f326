package kafka

import (
	"fmt"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// EventPublisher синхронно публикует события синхронизации и изменения корзин.
// Ключом сообщения служит пользователь, поэтому события одной корзины попадают в одну партицию по порядку.
type EventPublisher struct {
	producer    *Producer
	syncTopic   string
	changeTopic string
}

// NewEventPublisher создаёт паблишер; пустые топики заменяются значениями по умолчанию.
func NewEventPublisher(producer *Producer, syncTopic, changeTopic string) *EventPublisher {
	if syncTopic == "" {
		syncTopic = TopicSyncEvents
	}
	if changeTopic == "" {
		changeTopic = TopicCartChanges
	}
	return &EventPublisher{producer: producer, syncTopic: syncTopic, changeTopic: changeTopic}
}

// PublishSyncEvent публикует событие движка синхронизации.
func (p *EventPublisher) PublishSyncEvent(event domain.SyncEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka event publisher is not initialized")
	}
	return p.producer.PublishEvent(p.syncTopic, event.UserID, string(event.Type), NewSyncEventMessage(event))
}

// PublishCartChange публикует изменение серверной корзины.
func (p *EventPublisher) PublishCartChange(change domain.CartChange) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka event publisher is not initialized")
	}
	return p.producer.PublishEvent(p.changeTopic, change.OwnerID, EventTypeCartChanged, NewCartChangeMessage(change))
}

var (
	_ domain.SyncEventPublisher  = (*EventPublisher)(nil)
	_ domain.CartChangePublisher = (*EventPublisher)(nil)
)
