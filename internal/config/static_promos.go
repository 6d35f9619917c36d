package config

import (
	"fmt"
	"os"
	"strings"

	"promo-system/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// staticPromoFile описывает YAML с глобальными промокодами
type staticPromoFile struct {
	Promos []staticPromoEntry `yaml:"promos"`
}

type staticPromoEntry struct {
	Code  string  `yaml:"code"`
	Value float64 `yaml:"value"`
	Type  string  `yaml:"type"`
}

// defaultStaticPromos используется, когда файл не задан
var defaultStaticPromos = []staticPromoEntry{
	{Code: "PROMOCODE_DAY_670", Value: 50, Type: "money"},
	{Code: "WELCOME", Value: 100, Type: "money"},
	{Code: "DROPWIN2026", Value: 200, Type: "money"},
	{Code: "KAVEXS", Value: 1000, Type: "money"},
	{Code: "KAVEXS2026", Value: 5000, Type: "money"},
}

// LoadStaticPromos читает таблицу глобальных промокодов из YAML.
// Пустой путь возвращает встроенную таблицу.
func LoadStaticPromos(path string) (map[string]models.StaticPromo, error) {
	if strings.TrimSpace(path) == "" {
		return buildStaticPromos(defaultStaticPromos)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static promos file: %w", err)
	}

	var file staticPromoFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse static promos file: %w", err)
	}

	return buildStaticPromos(file.Promos)
}

func buildStaticPromos(entries []staticPromoEntry) (map[string]models.StaticPromo, error) {
	table := make(map[string]models.StaticPromo, len(entries))
	for _, e := range entries {
		code := strings.TrimSpace(e.Code)
		if code == "" {
			return nil, fmt.Errorf("static promo with empty code")
		}
		if _, dup := table[code]; dup {
			return nil, fmt.Errorf("duplicate static promo %q", code)
		}

		reward := models.RewardMoney
		if e.Type != "" {
			parsed, err := models.ParseRewardType(e.Type)
			if err != nil {
				return nil, fmt.Errorf("static promo %q: %w", code, err)
			}
			reward = parsed
		}
		// глобальные промокоды начисляют только деньги
		if reward.Kind != models.RewardKindMoney {
			return nil, fmt.Errorf("static promo %q: only money rewards are supported, got %s", code, reward)
		}
		if e.Value < 0 {
			return nil, fmt.Errorf("static promo %q: negative value", code)
		}

		value := decimal.NewFromFloat(e.Value)
		if !models.HasValueScale(value) {
			return nil, fmt.Errorf("static promo %q: value must have at most %d decimal places", code, models.ValueScale)
		}

		table[code] = models.StaticPromo{
			Code:   code,
			Value:  value,
			Reward: reward,
		}
	}
	return table, nil
}
