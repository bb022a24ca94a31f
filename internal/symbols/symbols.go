// Package symbols разрешает пользовательский символ в символ, поддерживаемый
// биржей: точное совпадение, верхний регистр, замена алиасов котируемой
// валюты, поиск рынка по базе и котировке.
package symbols

import (
	"fmt"
	"strings"

	"github.com/skalibog/bast/pkg/models"
)

// quoteAliases взаимозаменяемые котируемые валюты. База никогда не
// подменяется: BTC и XBT считаются разными активами.
var quoteAliases = []string{"USD", "USDT", "USDC"}

// Resolver разрешает символы по загруженному списку рынков
type Resolver struct {
	markets  []*models.Market
	bySymbol map[string]*models.Market
}

// NewResolver создает резолвер по списку рынков биржи
func NewResolver(markets []*models.Market) *Resolver {
	bySymbol := make(map[string]*models.Market, len(markets))
	for _, m := range markets {
		bySymbol[m.Symbol] = m
	}
	return &Resolver{markets: markets, bySymbol: bySymbol}
}

// Resolve возвращает поддерживаемый биржей символ для пользовательского
// ввода. Принимает как слитную форму (ADAUSDT), так и пару через слэш
// (ADA/USDT).
func (r *Resolver) Resolve(input string) (string, error) {
	candidate := strings.TrimSpace(input)
	if candidate == "" {
		return "", fmt.Errorf("пустой символ")
	}

	if _, ok := r.bySymbol[candidate]; ok {
		return candidate, nil
	}
	upper := strings.ToUpper(candidate)
	if _, ok := r.bySymbol[upper]; ok {
		return upper, nil
	}

	// Парная форма: перебор алиасов котируемой валюты
	if base, quote, ok := strings.Cut(upper, "/"); ok {
		base = strings.TrimSpace(base)
		quote = strings.TrimSpace(quote)

		for _, q := range r.quoteCandidates(quote) {
			joined := base + q
			if _, found := r.bySymbol[joined]; found {
				return joined, nil
			}
		}

		// Поиск рынка по полям базы и котировки
		for _, m := range r.markets {
			if !strings.EqualFold(m.Base, base) {
				continue
			}
			for _, q := range r.quoteCandidates(quote) {
				if strings.EqualFold(m.Quote, q) {
					return m.Symbol, nil
				}
			}
		}

		// Крайний случай: любой рынок с такой базой
		for _, m := range r.markets {
			if strings.EqualFold(m.Base, base) {
				return m.Symbol, nil
			}
		}
	}

	return "", fmt.Errorf("символ %q не найден среди рынков биржи", input)
}

// quoteCandidates возвращает варианты котируемой валюты: сам ввод плюс
// алиасы, если котировка долларовая
func (r *Resolver) quoteCandidates(quote string) []string {
	for _, alias := range quoteAliases {
		if quote == alias {
			return quoteAliases
		}
	}
	return []string{quote}
}
