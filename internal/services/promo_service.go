package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"promo-system/internal/apperror"
	"promo-system/internal/config"
	"promo-system/internal/logger"
	"promo-system/internal/metrics"
	"promo-system/internal/models"
)

const maxListLimit = 200

// PromoService управляет динамическими промокодами.
type PromoService struct {
	store         PromoStore
	events        EventPublisher
	log           *logger.Logger
	listLimit     int
	maxCodeLength int
}

// NewPromoService создаёт сервис промокодов.
func NewPromoService(store PromoStore, events EventPublisher, log *logger.Logger, cfg *config.PromoConfig) *PromoService {
	s := &PromoService{
		store:         store,
		events:        events,
		log:           log,
		listLimit:     20,
		maxCodeLength: 64,
	}
	if cfg != nil {
		if cfg.ListLimit > 0 {
			s.listLimit = cfg.ListLimit
		}
		if cfg.MaxCodeLength > 0 {
			s.maxCodeLength = cfg.MaxCodeLength
		}
	}
	return s
}

// CreatePromoCode создаёт промокод или перезаписывает существующий.
// Журнал использований сохраняется, если не запрошен ResetUsage.
func (s *PromoService) CreatePromoCode(ctx context.Context, req *models.CreatePromoCodeRequest) (*models.PromoRecord, error) {
	code := strings.TrimSpace(req.Code)
	reward, err := s.validatePromoCodePayload(code, req)
	if err != nil {
		metrics.IncRegistryOp("create", string(apperror.KindValidation))
		return nil, apperror.Validation(err.Error(), err)
	}

	promo := &models.PromoRecord{
		Code:            code,
		ActivationsLeft: req.Activations,
		Value:           req.Value,
		Reward:          reward,
		UsersUsed:       models.UsageLedger{},
		CreatedAt:       time.Now().UTC(),
	}

	saved, err := s.store.SavePromo(ctx, promo, req.ResetUsage)
	if err != nil {
		metrics.IncRegistryOp("create", "error")
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}
	metrics.IncRegistryOp("create", "success")

	s.log.WithFields(map[string]interface{}{
		"promo_code":  saved.Code,
		"activations": saved.ActivationsLeft,
		"type":        saved.Reward.String(),
		"reset_usage": req.ResetUsage,
	}).Info("Promo code created")

	if s.events != nil {
		if err := s.events.PublishPromoCreated(saved, req.ResetUsage); err != nil {
			s.log.WithError(err).WithField("promo_code", saved.Code).Warn("Failed to publish promo created event")
		}
	}

	return saved, nil
}

// DeletePromoCode удаляет промокод.
func (s *PromoService) DeletePromoCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperror.Validation("code is required", nil)
	}

	if err := s.store.DeletePromo(ctx, code); err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			metrics.IncRegistryOp("delete", string(apperror.KindNotFound))
			return err
		}
		metrics.IncRegistryOp("delete", "error")
		return fmt.Errorf("failed to delete promo code: %w", err)
	}
	metrics.IncRegistryOp("delete", "success")

	s.log.WithField("promo_code", code).Info("Promo code deleted")

	if s.events != nil {
		if err := s.events.PublishPromoDeleted(code); err != nil {
			s.log.WithError(err).WithField("promo_code", code).Warn("Failed to publish promo deleted event")
		}
	}
	return nil
}

// GetPromoCode возвращает промокод по коду.
func (s *PromoService) GetPromoCode(ctx context.Context, code string) (*models.PromoRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.Validation("code is required", nil)
	}
	return s.store.GetPromo(ctx, code)
}

// ListRecentPromos возвращает последние промокоды, новые первыми.
func (s *PromoService) ListRecentPromos(ctx context.Context, limit int) ([]*models.PromoRecord, error) {
	if limit <= 0 {
		limit = s.listLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	promos, err := s.store.ListRecentPromos(ctx, limit)
	if err != nil {
		metrics.IncRegistryOp("list", "error")
		return nil, fmt.Errorf("failed to list promo codes: %w", err)
	}
	metrics.IncRegistryOp("list", "success")
	return promos, nil
}

func (s *PromoService) validatePromoCodePayload(code string, req *models.CreatePromoCodeRequest) (models.RewardType, error) {
	if code == "" {
		return models.RewardType{}, fmt.Errorf("code is required")
	}
	if utf8.RuneCountInString(code) > s.maxCodeLength {
		return models.RewardType{}, fmt.Errorf("code must be at most %d characters", s.maxCodeLength)
	}
	if req.Activations < 0 {
		return models.RewardType{}, fmt.Errorf("activations must be non-negative")
	}
	if req.Value.IsNegative() {
		return models.RewardType{}, fmt.Errorf("value must be non-negative")
	}
	if !models.HasValueScale(req.Value) {
		return models.RewardType{}, fmt.Errorf("value must have at most %d decimal places", models.ValueScale)
	}
	reward, err := models.ParseRewardType(req.Type)
	if err != nil {
		return models.RewardType{}, fmt.Errorf("invalid type: %w", err)
	}
	return reward, nil
}
