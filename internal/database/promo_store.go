package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"promo-system/internal/apperror"
	"promo-system/internal/config"
	"promo-system/internal/logger"
	"promo-system/internal/metrics"
	"promo-system/internal/models"

	"github.com/lib/pq"
)

// PromoStore хранит промокоды и аккаунты в PostgreSQL.
type PromoStore struct {
	db         *DB
	log        *logger.Logger
	maxRetries int
	backoff    time.Duration
}

// NewPromoStore создает хранилище промокодов поверх PostgreSQL.
func NewPromoStore(db *DB, log *logger.Logger, cfg *config.PromoConfig) *PromoStore {
	s := &PromoStore{db: db, log: log, maxRetries: 10, backoff: 5 * time.Millisecond}
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

const selectPromoQuery = `
	SELECT code, activations_left, value, reward_type, users_used, created_at
	FROM promo_codes
	WHERE code = $1
`

const selectAccountQuery = `
	SELECT id, balance, used_promos, active_promo_code, active_promo_type, active_promo_value, active_promo_used
	FROM user_accounts
	WHERE id = $1
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPromo(row rowScanner) (*models.PromoRecord, error) {
	promo := &models.PromoRecord{}
	var (
		rewardType string
		usersUsed  pq.StringArray
	)
	if err := row.Scan(&promo.Code, &promo.ActivationsLeft, &promo.Value, &rewardType, &usersUsed, &promo.CreatedAt); err != nil {
		return nil, err
	}

	reward, err := models.ParseRewardType(rewardType)
	if err != nil {
		return nil, fmt.Errorf("promo code %s: %w", promo.Code, err)
	}
	promo.Reward = reward
	promo.UsersUsed = models.UsageLedger(usersUsed)
	if promo.UsersUsed == nil {
		promo.UsersUsed = models.UsageLedger{}
	}
	return promo, nil
}

func scanAccount(row rowScanner) (*models.UserAccount, error) {
	account := &models.UserAccount{}
	var (
		usedPromos pq.StringArray
		code       sql.NullString
		promoType  sql.NullString
	)
	if err := row.Scan(&account.ID, &account.Balance, &usedPromos, &code, &promoType, &account.ActivePromoValue, &account.ActivePromoUsed); err != nil {
		return nil, err
	}

	account.UsedPromos = models.UsageLedger(usedPromos)
	if code.Valid {
		c := code.String
		account.ActivePromoCode = &c
	}
	if promoType.Valid {
		// тип пишут и внешние сервисы, поэтому незнакомые значения не ошибка
		if err := account.ActivePromoType.UnmarshalText([]byte(promoType.String)); err != nil {
			return nil, fmt.Errorf("account %s: %w", account.ID, err)
		}
	}
	return account, nil
}

// SavePromo создает или перезаписывает промокод одним upsert.
// users_used сохраняется, если resetUsage не выставлен.
func (s *PromoStore) SavePromo(ctx context.Context, promo *models.PromoRecord, resetUsage bool) (*models.PromoRecord, error) {
	query := `
		INSERT INTO promo_codes (code, activations_left, value, reward_type, users_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE
		SET activations_left = EXCLUDED.activations_left,
			value = EXCLUDED.value,
			reward_type = EXCLUDED.reward_type,
			users_used = CASE WHEN $7::boolean THEN EXCLUDED.users_used ELSE promo_codes.users_used END,
			created_at = EXCLUDED.created_at
		RETURNING users_used
	`

	users := pq.StringArray(promo.UsersUsed)
	if users == nil {
		users = pq.StringArray{}
	}

	var stored pq.StringArray
	err := s.db.QueryRowContext(ctx, query,
		promo.Code, promo.ActivationsLeft, promo.Value, promo.Reward.String(), users, promo.CreatedAt, resetUsage,
	).Scan(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to save promo code: %w", err)
	}

	saved := promo.Clone()
	saved.UsersUsed = models.UsageLedger(stored)
	if saved.UsersUsed == nil {
		saved.UsersUsed = models.UsageLedger{}
	}
	return saved, nil
}

// GetPromo возвращает промокод по коду.
func (s *PromoStore) GetPromo(ctx context.Context, code string) (*models.PromoRecord, error) {
	promo, err := scanPromo(s.db.QueryRowContext(ctx, selectPromoQuery, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("promo code not found", err)
		}
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return promo, nil
}

// DeletePromo удаляет промокод.
func (s *PromoStore) DeletePromo(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM promo_codes WHERE code = $1", code)
	if err != nil {
		return fmt.Errorf("failed to delete promo code: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("promo code not found", nil)
	}
	return nil
}

// ListRecentPromos возвращает последние созданные промокоды.
func (s *PromoStore) ListRecentPromos(ctx context.Context, limit int) ([]*models.PromoRecord, error) {
	query := `
		SELECT code, activations_left, value, reward_type, users_used, created_at
		FROM promo_codes
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list promo codes: %w", err)
	}
	defer rows.Close()

	promos := make([]*models.PromoRecord, 0, limit)
	for rows.Next() {
		promo, err := scanPromo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promo code: %w", err)
		}
		promos = append(promos, promo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate promo codes: %w", err)
	}
	return promos, nil
}

// GetAccount возвращает аккаунт пользователя. Отсутствующий аккаунт считается пустым.
func (s *PromoStore) GetAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, selectAccountQuery, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UserAccount{ID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// RunRedemption выполняет fn в SERIALIZABLE транзакции с блокировкой строк
// промокода и аккаунта. При ошибке сериализации транзакция повторяется.
func (s *PromoStore) RunRedemption(ctx context.Context, code, userID string, fn models.RedeemFunc) (*models.RedemptionOutcome, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		outcome, err := s.runRedemptionTx(ctx, code, userID, fn)
		if err == nil {
			return outcome, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}

		metrics.IncTxRetry(config.StoragePostgres)
		s.log.WithFields(map[string]interface{}{
			"attempt":    attempt + 1,
			"promo_code": code,
		}).Debug("Postgres serialization failure, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * s.backoff):
		}
	}
	return nil, apperror.ErrTxConflict
}

func (s *PromoStore) runRedemptionTx(ctx context.Context, code, userID string, fn models.RedeemFunc) (*models.RedemptionOutcome, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	promo, err := scanPromo(tx.QueryRowContext(ctx, selectPromoQuery+" FOR UPDATE", code))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to lock promo code: %w", err)
		}
		promo = nil
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, selectAccountQuery+" FOR UPDATE", userID))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to lock account: %w", err)
		}
		account = &models.UserAccount{ID: userID}
	}

	result, err := fn(promo, *account)
	if err != nil {
		return nil, err
	}

	if result.Promo != nil {
		updatePromo := `
			UPDATE promo_codes
			SET activations_left = $1, users_used = $2
			WHERE code = $3
		`
		if _, err := tx.ExecContext(ctx, updatePromo, result.Promo.ActivationsLeft, pq.StringArray(result.Promo.UsersUsed), result.Promo.Code); err != nil {
			return nil, fmt.Errorf("failed to update promo code: %w", err)
		}
	}

	if result.Account != nil {
		if err := upsertAccount(ctx, tx, userID, result.Account); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &result.Outcome, nil
}

func upsertAccount(ctx context.Context, tx *sql.Tx, userID string, account *models.UserAccount) error {
	query := `
		INSERT INTO user_accounts (id, balance, used_promos, active_promo_code, active_promo_type, active_promo_value, active_promo_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET balance = EXCLUDED.balance,
			used_promos = EXCLUDED.used_promos,
			active_promo_code = EXCLUDED.active_promo_code,
			active_promo_type = EXCLUDED.active_promo_type,
			active_promo_value = EXCLUDED.active_promo_value,
			active_promo_used = EXCLUDED.active_promo_used
	`

	usedPromos := pq.StringArray(account.UsedPromos)
	if usedPromos == nil {
		usedPromos = pq.StringArray{}
	}
	promoType := sql.NullString{String: account.ActivePromoType.String(), Valid: !account.ActivePromoType.IsZero()}
	var promoCode sql.NullString
	if account.ActivePromoCode != nil {
		promoCode = sql.NullString{String: *account.ActivePromoCode, Valid: true}
	}

	_, err := tx.ExecContext(ctx, query,
		userID, account.Balance, usedPromos, promoCode, promoType, account.ActivePromoValue, account.ActivePromoUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// isSerializationFailure распознает SQLSTATE 40001 (serialization_failure)
// и 40P01 (deadlock_detected).
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
