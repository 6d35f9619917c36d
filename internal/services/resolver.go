package services

import (
	"fmt"

	"promo-system/internal/apperror"
	"promo-system/internal/models"

	"github.com/shopspring/decimal"
)

// Пользовательские сообщения активации.
const (
	msgLoginRequired   = "Сначала войдите в аккаунт"
	msgExhausted       = "Активации этого промокода закончились"
	msgAlreadyRedeemed = "Вы уже использовали этот промокод"
	msgInvalidCode     = "Неверный промокод"
	msgDepositRedirect = "Это бонус к депозиту. Переходим на пополнение..."

	msgMoneyCredited  = "Промокод активирован: +%s₽"
	msgDepositStaged  = "Промокод активирован: +%s%% к депу"
	msgBonusStaged    = "Промокод активирован: бонус +%s₽ ожидает зачисления"
	msgBonusActivated = "Бонус активирован: +%s₽"
)

// Resolver определяет результат активации кода. Это чистая функция от
// прочитанных в транзакции документов: входные данные не изменяются,
// а хранилище может вызвать её повторно при конфликте записи.
type Resolver struct {
	static          map[string]models.StaticPromo
	depositRedirect string
}

// NewResolver создает резолвер со статической таблицей промокодов.
func NewResolver(static map[string]models.StaticPromo, depositRedirect string) *Resolver {
	table := make(map[string]models.StaticPromo, len(static))
	for code, promo := range static {
		table[code] = promo
	}
	if depositRedirect == "" {
		depositRedirect = "dep.html"
	}
	return &Resolver{static: table, depositRedirect: depositRedirect}
}

// Resolve проходит уровни по порядку: динамический промокод, статическая
// таблица, персональный отложенный бонус.
func (r *Resolver) Resolve(userID, code string, promo *models.PromoRecord, account models.UserAccount) (*models.RedemptionResult, error) {
	if promo != nil {
		return r.resolveDynamic(userID, code, promo, account)
	}
	if static, ok := r.static[code]; ok {
		return r.resolveStatic(code, static, account)
	}
	return r.resolvePersonal(code, account)
}

func (r *Resolver) resolveDynamic(userID, code string, promo *models.PromoRecord, account models.UserAccount) (*models.RedemptionResult, error) {
	// повторный ввод кода, бонус которого уже ждёт в аккаунте
	if slot := account.Pending(); slot != nil && slot.Code == code {
		return r.resolvePersonal(code, account)
	}

	if promo.UsersUsed.Has(userID) {
		return nil, apperror.AlreadyRedeemed(msgAlreadyRedeemed)
	}
	if promo.ActivationsLeft <= 0 {
		return nil, apperror.Exhausted(msgExhausted)
	}

	updated := account.Clone()
	var message string
	switch promo.Reward.Kind {
	case models.RewardKindMoney:
		updated.Balance = updated.Balance.Add(promo.Value)
		message = fmt.Sprintf(msgMoneyCredited, promo.Value.String())
	case models.RewardKindDepositBonus:
		stageSlot(&updated, promo)
		message = fmt.Sprintf(msgDepositStaged, promo.Value.String())
	case models.RewardKindDirectBonus:
		stageSlot(&updated, promo)
		message = fmt.Sprintf(msgBonusStaged, promo.Value.String())
	default:
		return nil, fmt.Errorf("promo code %s has unsupported reward type %q", promo.Code, promo.Reward.String())
	}

	next := promo.Clone()
	next.ActivationsLeft--
	next.UsersUsed = promo.UsersUsed.With(userID)

	return &models.RedemptionResult{
		Promo:   next,
		Account: &updated,
		Outcome: models.RedemptionOutcome{
			Success:    true,
			Value:      promo.Value,
			RewardKind: promo.Reward,
			Message:    message,
			Tier:       models.TierDynamic,
		},
	}, nil
}

func stageSlot(account *models.UserAccount, promo *models.PromoRecord) {
	code := promo.Code
	account.ActivePromoCode = &code
	account.ActivePromoType = promo.Reward
	account.ActivePromoValue = promo.Value
	account.ActivePromoUsed = false
}

func (r *Resolver) resolveStatic(code string, static models.StaticPromo, account models.UserAccount) (*models.RedemptionResult, error) {
	if account.UsedPromos.Has(code) {
		return nil, apperror.AlreadyRedeemed(msgAlreadyRedeemed)
	}

	updated := account.Clone()
	updated.Balance = updated.Balance.Add(static.Value)
	updated.UsedPromos = account.UsedPromos.With(code)

	return &models.RedemptionResult{
		Account: &updated,
		Outcome: models.RedemptionOutcome{
			Success:    true,
			Value:      static.Value,
			RewardKind: models.RewardMoney,
			Message:    fmt.Sprintf(msgMoneyCredited, static.Value.String()),
			Tier:       models.TierStatic,
		},
	}, nil
}

func (r *Resolver) resolvePersonal(code string, account models.UserAccount) (*models.RedemptionResult, error) {
	slot := account.Pending()
	if slot == nil || slot.Code != code {
		return nil, apperror.InvalidCode(msgInvalidCode)
	}

	// зачисляется только прямой бонус, любой другой тип ведёт на депозит
	if slot.Type.Kind != models.RewardKindDirectBonus {
		return &models.RedemptionResult{
			Outcome: models.RedemptionOutcome{
				Success:    false,
				Value:      slot.Value,
				RewardKind: slot.Type,
				Message:    msgDepositRedirect,
				Redirect:   r.depositRedirect,
				Tier:       models.TierPersonal,
			},
		}, nil
	}

	updated := account.Clone()
	updated.Balance = updated.Balance.Add(slot.Value)
	updated.ActivePromoCode = nil
	updated.ActivePromoValue = decimal.Zero
	updated.ActivePromoUsed = true

	return &models.RedemptionResult{
		Account: &updated,
		Outcome: models.RedemptionOutcome{
			Success:    true,
			Value:      slot.Value,
			RewardKind: slot.Type,
			Message:    fmt.Sprintf(msgBonusActivated, slot.Value.String()),
			Tier:       models.TierPersonal,
		},
	}, nil
}
