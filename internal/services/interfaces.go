package services

import (
	"context"

	"promo-system/internal/models"
)

// PromoStore описывает хранилище промокодов и аккаунтов.
// RunRedemption выполняет fn внутри атомарной транзакции и может вызвать её
// повторно, если документы изменились конкурентно.
type PromoStore interface {
	SavePromo(ctx context.Context, promo *models.PromoRecord, resetUsage bool) (*models.PromoRecord, error)
	GetPromo(ctx context.Context, code string) (*models.PromoRecord, error)
	DeletePromo(ctx context.Context, code string) error
	ListRecentPromos(ctx context.Context, limit int) ([]*models.PromoRecord, error)
	GetAccount(ctx context.Context, userID string) (*models.UserAccount, error)
	RunRedemption(ctx context.Context, code, userID string, fn models.RedeemFunc) (*models.RedemptionOutcome, error)
}

// EventPublisher публикует доменные события промокодов.
type EventPublisher interface {
	PublishPromoCreated(promo *models.PromoRecord, resetUsage bool) error
	PublishPromoDeleted(code string) error
	PublishPromoRedeemed(userID, code string, outcome *models.RedemptionOutcome) error
}
