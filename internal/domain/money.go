package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is the ISO currency used when none is configured.
const DefaultCurrency = "gbp"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit price to integer minor units, rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to a major-unit amount.
func FromMinorUnits(minor int64) float64 {
	value, _ := decimal.New(minor, -2).Float64()
	return value
}

// NormalizeCurrency validates an ISO 4217 code and returns it lower-cased as the processor expects.
func NormalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", err
	}
	return strings.ToLower(unit.String()), nil
}

var currencySymbols = map[string]string{
	"gbp": "£",
	"usd": "$",
	"eur": "€",
	"jpy": "¥",
}

// FormatPrice renders a major-unit amount for display, e.g. "£599.99".
func FormatPrice(amount float64, code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	symbol, ok := currencySymbols[code]
	if !ok {
		symbol = strings.ToUpper(code) + " "
	}
	printer := message.NewPrinter(language.BritishEnglish)
	return symbol + printer.Sprintf("%.2f", amount)
}
