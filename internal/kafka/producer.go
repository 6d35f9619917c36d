package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"promo-system/internal/config"
	"promo-system/internal/logger"
	"promo-system/internal/metrics"
	"promo-system/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Producer публикует события промокодов в Kafka
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает синхронного продюсера Kafka
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.WithField("brokers", cfg.Brokers).Info("Kafka producer created")

	topics := cfg.Topics
	return &Producer{
		producer: producer,
		log:      log,
		topics:   &topics,
	}, nil
}

// Close закрывает продюсера
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// publishEvent отправляет событие в топик. key задаёт партицию: события
// одного промокода идут по порядку.
func (p *Producer) publishEvent(topic, key string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		metrics.IncEvent(string(event.Type), "failed")
		return fmt.Errorf("failed to send event %s: %w", event.Type, err)
	}
	metrics.IncEvent(string(event.Type), "published")

	p.log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"topic":      topic,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Event published")

	return nil
}

func newEvent(eventType models.EventType, data interface{}) models.Event {
	return models.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// PublishPromoCreated публикует событие создания промокода
func (p *Producer) PublishPromoCreated(promo *models.PromoRecord, resetUsage bool) error {
	event := newEvent(models.EventTypePromoCreated, models.PromoCreatedEvent{
		Code:        promo.Code,
		Activations: promo.ActivationsLeft,
		Value:       promo.Value,
		Type:        promo.Reward,
		ResetUsage:  resetUsage,
	})
	return p.publishEvent(p.topics.Promos, promo.Code, event)
}

// PublishPromoDeleted публикует событие удаления промокода
func (p *Producer) PublishPromoDeleted(code string) error {
	event := newEvent(models.EventTypePromoDeleted, models.PromoDeletedEvent{Code: code})
	return p.publishEvent(p.topics.Promos, code, event)
}

// PublishPromoRedeemed публикует событие активации промокода
func (p *Producer) PublishPromoRedeemed(userID, code string, outcome *models.RedemptionOutcome) error {
	event := newEvent(models.EventTypePromoRedeemed, models.PromoRedeemedEvent{
		UserID: userID,
		Code:   code,
		Tier:   outcome.Tier,
		Value:  outcome.Value,
		Type:   outcome.RewardKind,
	})
	return p.publishEvent(p.topics.Promos, code, event)
}
