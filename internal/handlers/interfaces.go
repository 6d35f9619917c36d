package handlers

import (
	"context"

	"promo-system/internal/models"
)

// ----- Promo -----

type PromoService interface {
	CreatePromoCode(ctx context.Context, req *models.CreatePromoCodeRequest) (*models.PromoRecord, error)
	GetPromoCode(ctx context.Context, code string) (*models.PromoRecord, error)
	DeletePromoCode(ctx context.Context, code string) error
	ListRecentPromos(ctx context.Context, limit int) ([]*models.PromoRecord, error)
}

// ----- Redemptions -----

type RedemptionService interface {
	Redeem(ctx context.Context, userID, code string) (*models.RedemptionOutcome, error)
	PendingPromo(ctx context.Context, userID string) (*models.PendingPromo, error)
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
