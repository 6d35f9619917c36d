package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType представляет тип доменного события
type EventType string

const (
	EventTypePromoCreated  EventType = "promo.created"
	EventTypePromoDeleted  EventType = "promo.deleted"
	EventTypePromoRedeemed EventType = "promo.redeemed"
)

// Event представляет событие, публикуемое в Kafka
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PromoCreatedEvent данные события создания промокода
type PromoCreatedEvent struct {
	Code        string          `json:"code"`
	Activations int             `json:"activations"`
	Value       decimal.Decimal `json:"value"`
	Type        RewardType      `json:"type"`
	ResetUsage  bool            `json:"reset_usage"`
}

// PromoDeletedEvent данные события удаления промокода
type PromoDeletedEvent struct {
	Code string `json:"code"`
}

// PromoRedeemedEvent данные события активации промокода.
// Публикуется только для успешных активаций.
type PromoRedeemedEvent struct {
	UserID string          `json:"user_id"`
	Code   string          `json:"code"`
	Tier   RedemptionTier  `json:"tier"`
	Value  decimal.Decimal `json:"value"`
	Type   RewardType      `json:"type"`
}
