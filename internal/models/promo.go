package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RewardKind описывает вид награды промокода.
type RewardKind string

const (
	RewardKindMoney        RewardKind = "money"
	RewardKindDepositBonus RewardKind = "dep"
	RewardKindDirectBonus  RewardKind = "bonus"
)

// RewardType описывает вид награды с необязательным подвидом (например dep_x2).
// В хранилище и JSON кодируется строкой: money, dep, dep_<variant>, bonus, bonus_<variant>.
type RewardType struct {
	Kind    RewardKind
	Variant string
}

var (
	RewardMoney        = RewardType{Kind: RewardKindMoney}
	RewardDepositBonus = RewardType{Kind: RewardKindDepositBonus}
	RewardDirectBonus  = RewardType{Kind: RewardKindDirectBonus}
)

// ValueScale задаёт число знаков после запятой у сумм. Совпадает с NUMERIC(18, 2) в postgres.
const ValueScale int32 = 2

// HasValueScale сообщает, что сумма представима без округления.
func HasValueScale(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(ValueScale))
}

// ParseRewardType разбирает строковое представление награды.
func ParseRewardType(s string) (RewardType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == string(RewardKindMoney):
		return RewardMoney, nil
	case v == "deposit":
		return RewardDepositBonus, nil
	case strings.HasPrefix(v, string(RewardKindDepositBonus)):
		return RewardType{Kind: RewardKindDepositBonus, Variant: variantOf(v, RewardKindDepositBonus)}, nil
	case strings.HasPrefix(v, string(RewardKindDirectBonus)):
		return RewardType{Kind: RewardKindDirectBonus, Variant: variantOf(v, RewardKindDirectBonus)}, nil
	default:
		return RewardType{}, fmt.Errorf("unknown reward type %q", s)
	}
}

func variantOf(v string, kind RewardKind) string {
	return strings.TrimLeft(strings.TrimPrefix(v, string(kind)), "_-:")
}

func (t RewardType) String() string {
	if t.Kind == "" {
		return ""
	}
	if t.Variant == "" || t.Kind == RewardKindMoney {
		return string(t.Kind)
	}
	return string(t.Kind) + "_" + t.Variant
}

// IsZero сообщает, что тип награды не задан.
func (t RewardType) IsZero() bool { return t.Kind == "" }

// IsKnown сообщает, что тип награды поддерживается этим сервисом.
func (t RewardType) IsKnown() bool {
	switch t.Kind {
	case RewardKindMoney, RewardKindDepositBonus, RewardKindDirectBonus:
		return true
	}
	return false
}

// MarshalText реализует encoding.TextMarshaler.
func (t RewardType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler. Пустая строка даёт нулевой тип.
// Незнакомый тип сохраняется как есть: его могли записать другие сервисы,
// и он должен пережить чтение и обратную запись документа.
func (t *RewardType) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*t = RewardType{}
		return nil
	}
	parsed, err := ParseRewardType(raw)
	if err != nil {
		*t = RewardType{Kind: RewardKind(raw)}
		return nil
	}
	*t = parsed
	return nil
}

// UsageLedger представляет множество идентификаторов, в которое можно только добавлять.
// Один и тот же тип хранит и пользователей промокода, и использованные пользователем коды.
type UsageLedger []string

// Has проверяет наличие идентификатора.
func (l UsageLedger) Has(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// With возвращает новый журнал с добавленным идентификатором, исходный не меняется.
func (l UsageLedger) With(id string) UsageLedger {
	out := make(UsageLedger, 0, len(l)+1)
	out = append(out, l...)
	if l.Has(id) {
		return out
	}
	return append(out, id)
}

// PromoRecord представляет динамический промокод.
type PromoRecord struct {
	Code            string          `json:"code"`
	ActivationsLeft int             `json:"activations_left"`
	Value           decimal.Decimal `json:"value"`
	Reward          RewardType      `json:"type"`
	UsersUsed       UsageLedger     `json:"users_used"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Clone возвращает глубокую копию записи.
func (p *PromoRecord) Clone() *PromoRecord {
	if p == nil {
		return nil
	}
	c := *p
	c.UsersUsed = append(UsageLedger(nil), p.UsersUsed...)
	return &c
}

// StaticPromo представляет запись глобальной таблицы промокодов из конфигурации.
type StaticPromo struct {
	Code   string          `json:"code"`
	Value  decimal.Decimal `json:"value"`
	Reward RewardType      `json:"type"`
}

// UserAccount представляет часть аккаунта пользователя, которую меняет активация промокодов.
type UserAccount struct {
	ID               string          `json:"id"`
	Balance          decimal.Decimal `json:"balance"`
	UsedPromos       UsageLedger     `json:"used_promos"`
	ActivePromoCode  *string         `json:"active_promo_code"`
	ActivePromoType  RewardType      `json:"active_promo_type"`
	ActivePromoValue decimal.Decimal `json:"active_promo_value"`
	ActivePromoUsed  bool            `json:"active_promo_used"`
}

// Clone возвращает глубокую копию аккаунта.
func (a UserAccount) Clone() UserAccount {
	c := a
	c.UsedPromos = append(UsageLedger(nil), a.UsedPromos...)
	if a.ActivePromoCode != nil {
		code := *a.ActivePromoCode
		c.ActivePromoCode = &code
	}
	return c
}

// PendingPromo описывает отложенный персональный бонус аккаунта.
type PendingPromo struct {
	Code  string          `json:"code"`
	Type  RewardType      `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Pending возвращает неиспользованный отложенный бонус или nil.
func (a UserAccount) Pending() *PendingPromo {
	if a.ActivePromoCode == nil || a.ActivePromoUsed {
		return nil
	}
	return &PendingPromo{
		Code:  *a.ActivePromoCode,
		Type:  a.ActivePromoType,
		Value: a.ActivePromoValue,
	}
}

// CreatePromoCodeRequest описывает запрос на создание промокода.
type CreatePromoCodeRequest struct {
	Code        string          `json:"code" validate:"required"`
	Activations int             `json:"activations" validate:"gte=0"`
	Value       decimal.Decimal `json:"value"`
	Type        string          `json:"type"`
	ResetUsage  bool            `json:"reset_usage,omitempty"` // сбросить журнал использований при перезаписи
}

// RedeemPromoCodeRequest описывает запрос на активацию промокода.
type RedeemPromoCodeRequest struct {
	Code string `json:"code"`
}
