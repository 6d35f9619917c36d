package models

import "github.com/shopspring/decimal"

// RedemptionTier указывает, какой источник промокода сработал.
type RedemptionTier string

const (
	TierDynamic  RedemptionTier = "dynamic"
	TierStatic   RedemptionTier = "static"
	TierPersonal RedemptionTier = "personal"
)

// RedemptionOutcome представляет результат активации промокода для вызывающей стороны.
// Redirect заполнен, когда бонус привязан к депозиту и пользователя нужно
// отправить на пополнение; это не ошибка.
type RedemptionOutcome struct {
	Success    bool            `json:"success"`
	Value      decimal.Decimal `json:"value"`
	RewardKind RewardType      `json:"reward_kind"`
	Message    string          `json:"message"`
	Redirect   string          `json:"redirect,omitempty"`
	Tier       RedemptionTier  `json:"tier"`
}

// RedirectRequired сообщает, что вызывающая сторона должна перейти к депозиту.
func (o RedemptionOutcome) RedirectRequired() bool {
	return o.Redirect != ""
}

// RedemptionResult содержит изменения, которые хранилище должно записать атомарно.
// nil означает, что документ не меняется.
type RedemptionResult struct {
	Promo   *PromoRecord
	Account *UserAccount
	Outcome RedemptionOutcome
}

// RedeemFunc вычисляет результат активации по прочитанным в транзакции документам.
// promo равен nil, если динамического промокода нет. Хранилище может вызвать
// функцию повторно при конфликте записи, поэтому она не должна иметь побочных эффектов.
type RedeemFunc func(promo *PromoRecord, account UserAccount) (*RedemptionResult, error)
