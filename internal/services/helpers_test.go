package services

import (
	"context"
	"sync"
	"testing"

	"promo-system/internal/config"
	"promo-system/internal/logger"
	"promo-system/internal/models"
	"promo-system/internal/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func newTestStaticTable() map[string]models.StaticPromo {
	return map[string]models.StaticPromo{
		"WELCOME": {Code: "WELCOME", Value: decimal.NewFromInt(100), Reward: models.RewardMoney},
		"KAVEXS":  {Code: "KAVEXS", Value: decimal.NewFromInt(1000), Reward: models.RewardMoney},
	}
}

func newTestRedisStore(t *testing.T) (*redis.PromoStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.Connect(&config.RedisConfig{Host: "127.0.0.1", Port: mr.Port()}, newTestLogger())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	store := redis.NewPromoStore(client, &config.PromoConfig{TxMaxRetries: 50, TxRetryBackoffMs: 1})
	return store, mr
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu       sync.Mutex
	created  []string
	deleted  []string
	redeemed []string
	err      error
}

func (p *recordingPublisher) PublishPromoCreated(promo *models.PromoRecord, resetUsage bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, promo.Code)
	return p.err
}

func (p *recordingPublisher) PublishPromoDeleted(code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, code)
	return p.err
}

func (p *recordingPublisher) PublishPromoRedeemed(userID, code string, outcome *models.RedemptionOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redeemed = append(p.redeemed, userID+":"+code)
	return p.err
}

// stubStore позволяет подставить ответы хранилища.
type stubStore struct {
	PromoStore
	runErr  error
	account *models.UserAccount
}

func (s *stubStore) RunRedemption(ctx context.Context, code, userID string, fn models.RedeemFunc) (*models.RedemptionOutcome, error) {
	return nil, s.runErr
}

func (s *stubStore) GetAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	if s.account == nil {
		return &models.UserAccount{ID: userID}, nil
	}
	return s.account, nil
}
