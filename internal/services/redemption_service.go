package services

import (
	"context"
	"fmt"
	"strings"

	"promo-system/internal/apperror"
	"promo-system/internal/logger"
	"promo-system/internal/metrics"
	"promo-system/internal/models"
)

// RedemptionService активирует промокоды пользователей.
type RedemptionService struct {
	store    PromoStore
	resolver *Resolver
	events   EventPublisher
	log      *logger.Logger
}

// NewRedemptionService создаёт сервис активации. events может быть nil, если Kafka выключена.
func NewRedemptionService(store PromoStore, resolver *Resolver, events EventPublisher, log *logger.Logger) *RedemptionService {
	return &RedemptionService{
		store:    store,
		resolver: resolver,
		events:   events,
		log:      log,
	}
}

// Redeem активирует код для пользователя. Бизнес-отказы возвращаются
// типизированными ошибками apperror, сбои хранилища оборачиваются как есть.
func (s *RedemptionService) Redeem(ctx context.Context, userID, codeInput string) (*models.RedemptionOutcome, error) {
	if strings.TrimSpace(userID) == "" {
		metrics.IncRedemption("", string(apperror.KindUnauthenticated))
		return nil, apperror.Unauthenticated(msgLoginRequired)
	}

	code := strings.TrimSpace(codeInput)
	if code == "" {
		metrics.IncRedemption("", string(apperror.KindInvalidCode))
		return nil, apperror.InvalidCode(msgInvalidCode)
	}

	outcome, err := s.store.RunRedemption(ctx, code, userID, func(promo *models.PromoRecord, account models.UserAccount) (*models.RedemptionResult, error) {
		return s.resolver.Resolve(userID, code, promo, account)
	})
	if err != nil {
		if kind := apperror.KindOf(err); kind != "" {
			metrics.IncRedemption("", string(kind))
			return nil, err
		}
		metrics.IncRedemption("", "error")
		return nil, fmt.Errorf("failed to redeem promo code: %w", err)
	}

	result := "success"
	if outcome.RedirectRequired() {
		result = "redirect"
	}
	metrics.IncRedemption(string(outcome.Tier), result)

	s.log.WithFields(map[string]interface{}{
		"user_id":    userID,
		"promo_code": code,
		"tier":       outcome.Tier,
		"value":      outcome.Value.String(),
		"redirect":   outcome.RedirectRequired(),
	}).Info("Promo code redeemed")

	if s.events != nil && outcome.Success {
		if err := s.events.PublishPromoRedeemed(userID, code, outcome); err != nil {
			s.log.WithError(err).WithField("promo_code", code).Warn("Failed to publish promo redeemed event")
		}
	}

	return outcome, nil
}

// PendingPromo возвращает отложенный бонус пользователя или nil.
func (s *RedemptionService) PendingPromo(ctx context.Context, userID string) (*models.PendingPromo, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.Unauthenticated(msgLoginRequired)
	}

	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account.Pending(), nil
}
