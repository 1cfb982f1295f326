package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
	"github.com/vladislavdragonenkov/cartsync/internal/service/relay"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Возвращает nil, nil, когда Kafka не настроена.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, cfg.KafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// newEventRelay собирает асинхронный relay поверх producer.
func newEventRelay(cfg Config, producer *kafka.Producer, logger *log.Entry) *relay.Relay {
	publisher := kafka.NewEventPublisher(producer, cfg.SyncEventsTopic, cfg.CartChangesTopic)
	return relay.New(publisher,
		relay.WithLogger(logger.WithField("component", "event-relay")),
		relay.WithMetrics(metrics.NewRelayMetrics()),
		relay.WithBufferSize(cfg.EventBufferSize),
		relay.WithMaxAttempts(cfg.EventMaxAttempts),
		relay.WithRetryBaseDelay(cfg.EventRetryDelay),
	)
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
