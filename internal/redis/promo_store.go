package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"promo-system/internal/apperror"
	"promo-system/internal/config"
	"promo-system/internal/metrics"
	"promo-system/internal/models"

	"github.com/go-redis/redis/v8"
)

// PromoStore хранит промокоды и аккаунты JSON-документами в Redis.
// В документе пользователя меняются только поля из accountFields.
// Активация выполняется оптимистичной транзакцией WATCH/MULTI/EXEC с повторами.
type PromoStore struct {
	client     *Client
	maxRetries int
	backoff    time.Duration
}

// NewPromoStore создает хранилище промокодов поверх клиента Redis.
func NewPromoStore(client *Client, cfg *config.PromoConfig) *PromoStore {
	s := &PromoStore{client: client, maxRetries: 10, backoff: 5 * time.Millisecond}
	if cfg != nil {
		if cfg.TxMaxRetries >= 0 {
			s.maxRetries = cfg.TxMaxRetries
		}
		if cfg.TxRetryBackoffMs >= 0 {
			s.backoff = time.Duration(cfg.TxRetryBackoffMs) * time.Millisecond
		}
	}
	return s
}

func promoKey(code string) string  { return GenerateKey(KeyPrefixPromo, code) }
func userKey(userID string) string { return GenerateKey(KeyPrefixUser, userID) }

// SavePromo создает или перезаписывает промокод. Журнал использований
// сохраняется, если resetUsage не выставлен.
func (s *PromoStore) SavePromo(ctx context.Context, promo *models.PromoRecord, resetUsage bool) (*models.PromoRecord, error) {
	key := promoKey(promo.Code)
	var saved *models.PromoRecord

	err := s.withRetry(ctx, func(tx *redis.Tx) error {
		saved = promo.Clone()
		if !resetUsage {
			var prev models.PromoRecord
			err := getJSON(ctx, tx, key, &prev)
			switch {
			case err == nil:
				saved.UsersUsed = prev.UsersUsed
			case !errors.Is(err, ErrKeyNotFound):
				return err
			}
		}
		if saved.UsersUsed == nil {
			saved.UsersUsed = models.UsageLedger{}
		}

		data, err := json.Marshal(saved)
		if err != nil {
			return fmt.Errorf("failed to marshal promo code: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, KeyPromosByCreated, &redis.Z{
				Score:  float64(saved.CreatedAt.UnixMilli()),
				Member: saved.Code,
			})
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, fmt.Errorf("failed to save promo code %s: %w", promo.Code, err)
	}

	s.client.log.WithField("promo_code", saved.Code).Debug("Promo code stored in Redis")
	return saved, nil
}

// GetPromo возвращает промокод по коду.
func (s *PromoStore) GetPromo(ctx context.Context, code string) (*models.PromoRecord, error) {
	var promo models.PromoRecord
	if err := s.client.Get(ctx, promoKey(code), &promo); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, apperror.NotFound("promo code not found", err)
		}
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return &promo, nil
}

// DeletePromo удаляет промокод и его запись в индексе.
func (s *PromoStore) DeletePromo(ctx context.Context, code string) error {
	var del *redis.IntCmd
	_, err := s.client.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, promoKey(code))
		pipe.ZRem(ctx, KeyPromosByCreated, code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete promo code: %w", err)
	}
	if del.Val() == 0 {
		return apperror.NotFound("promo code not found", nil)
	}
	return nil
}

// ListRecentPromos возвращает последние созданные промокоды, новые первыми.
func (s *PromoStore) ListRecentPromos(ctx context.Context, limit int) ([]*models.PromoRecord, error) {
	if limit <= 0 {
		return []*models.PromoRecord{}, nil
	}

	codes, err := s.client.client.ZRevRange(ctx, KeyPromosByCreated, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list promo codes: %w", err)
	}

	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, promoKey(code))
	}

	values, err := s.client.GetMultiple(ctx, keys)
	if err != nil {
		return nil, err
	}

	promos := make([]*models.PromoRecord, 0, len(codes))
	for _, key := range keys {
		raw, ok := values[key]
		if !ok {
			// индекс мог пережить документ
			continue
		}
		var promo models.PromoRecord
		if err := json.Unmarshal([]byte(raw), &promo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal promo code %s: %w", key, err)
		}
		promos = append(promos, &promo)
	}
	return promos, nil
}

// GetAccount возвращает аккаунт пользователя. Отсутствующий аккаунт считается пустым.
func (s *PromoStore) GetAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	doc, err := loadAccount(ctx, s.client.client, userID)
	if err != nil {
		return nil, err
	}
	return doc.account, nil
}

// accountFields перечисляет поля документа пользователя, которые меняет активация.
// Остальные поля принадлежат другим сервисам и переписываются без изменений.
var accountFields = []string{
	"balance",
	"used_promos",
	"active_promo_code",
	"active_promo_type",
	"active_promo_value",
	"active_promo_used",
}

// accountDoc хранит разобранный аккаунт вместе с исходным документом.
type accountDoc struct {
	account *models.UserAccount
	raw     map[string]json.RawMessage
}

func loadAccount(ctx context.Context, g getter, userID string) (*accountDoc, error) {
	key := userKey(userID)
	raw := map[string]json.RawMessage{}
	if err := getJSON(ctx, g, key, &raw); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return &accountDoc{account: &models.UserAccount{ID: userID}, raw: map[string]json.RawMessage{}}, nil
		}
		return nil, err
	}
	if raw == nil {
		raw = map[string]json.RawMessage{}
	}

	owned := make(map[string]json.RawMessage, len(accountFields))
	for _, field := range accountFields {
		if v, ok := raw[field]; ok {
			owned[field] = v
		}
	}
	data, err := json.Marshal(owned)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account fields for key %s: %w", key, err)
	}

	var account models.UserAccount
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account for key %s: %w", key, err)
	}
	account.ID = userID
	return &accountDoc{account: &account, raw: raw}, nil
}

// merge накладывает изменённые поля аккаунта на исходный документ.
func (d *accountDoc) merge(account *models.UserAccount) ([]byte, error) {
	data, err := json.Marshal(account)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account: %w", err)
	}
	var owned map[string]json.RawMessage
	if err := json.Unmarshal(data, &owned); err != nil {
		return nil, fmt.Errorf("failed to split account fields: %w", err)
	}

	doc := make(map[string]json.RawMessage, len(d.raw)+len(accountFields))
	for k, v := range d.raw {
		doc[k] = v
	}
	for _, field := range accountFields {
		doc[field] = owned[field]
	}
	return json.Marshal(doc)
}

// RunRedemption читает промокод и аккаунт под WATCH, вызывает fn и атомарно
// записывает результат. fn может быть вызвана несколько раз при конфликтах.
func (s *PromoStore) RunRedemption(ctx context.Context, code, userID string, fn models.RedeemFunc) (*models.RedemptionOutcome, error) {
	pKey, uKey := promoKey(code), userKey(userID)
	var outcome models.RedemptionOutcome

	err := s.withRetry(ctx, func(tx *redis.Tx) error {
		var promo *models.PromoRecord
		var stored models.PromoRecord
		err := getJSON(ctx, tx, pKey, &stored)
		switch {
		case err == nil:
			promo = &stored
		case !errors.Is(err, ErrKeyNotFound):
			return err
		}

		doc, err := loadAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		result, err := fn(promo, *doc.account)
		if err != nil {
			return err
		}

		if result.Promo != nil || result.Account != nil {
			var promoData, accountData []byte
			if result.Promo != nil {
				if promoData, err = json.Marshal(result.Promo); err != nil {
					return fmt.Errorf("failed to marshal promo code: %w", err)
				}
			}
			if result.Account != nil {
				if accountData, err = doc.merge(result.Account); err != nil {
					return err
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if promoData != nil {
					pipe.Set(ctx, pKey, promoData, 0)
				}
				if accountData != nil {
					pipe.Set(ctx, uKey, accountData, 0)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		outcome = result.Outcome
		return nil
	}, pKey, uKey)
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// withRetry повторяет транзакцию WATCH, пока ключи меняются конкурентно.
func (s *PromoStore) withRetry(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := s.client.client.Watch(ctx, fn, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		metrics.IncTxRetry(config.StorageRedis)
		s.client.log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"keys":    keys,
		}).Debug("Redis transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * s.backoff):
		}
	}
	return apperror.ErrTxConflict
}
