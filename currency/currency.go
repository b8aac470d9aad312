// Package currency converts prices between the storefront's supported
// currencies and renders them for display.
//
// Every rate is expressed as units of the base currency per one unit of the
// quoted currency, so conversions always pass through the base.
package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidRate         = errors.New("currency rate must be positive")
)

// Rates is an immutable snapshot of exchange rates against a base currency.
type Rates struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewRates validates the table and always pins the base currency to 1.
func NewRates(base string, rates map[string]decimal.Decimal) (*Rates, error) {
	base = Normalize(base)
	if _, err := currency.ParseISO(base); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, base)
	}

	table := make(map[string]decimal.Decimal, len(rates)+1)
	for code, rate := range rates {
		code = Normalize(code)
		if _, err := currency.ParseISO(code); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRate, code)
		}
		table[code] = rate
	}
	table[base] = decimal.NewFromInt(1)

	return &Rates{base: base, rates: table}, nil
}

func (r *Rates) Base() string {
	return r.base
}

func (r *Rates) Supported(code string) bool {
	_, ok := r.rates[Normalize(code)]
	return ok
}

// Codes lists the supported currencies in alphabetical order.
func (r *Rates) Codes() []string {
	codes := make([]string, 0, len(r.rates))
	for code := range r.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Rate returns the number of base units one unit of code is worth.
func (r *Rates) Rate(code string) (decimal.Decimal, error) {
	rate, ok := r.rates[Normalize(code)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}
	return rate, nil
}

// With returns a copy of r with the given rates overridden.
func (r *Rates) With(overrides map[string]decimal.Decimal) (*Rates, error) {
	merged := make(map[string]decimal.Decimal, len(r.rates)+len(overrides))
	for code, rate := range r.rates {
		merged[code] = rate
	}
	for code, rate := range overrides {
		merged[Normalize(code)] = rate
	}
	return NewRates(r.base, merged)
}

// Convert converts amount from one currency to another and rounds the result
// to the minor units of the target currency.
func (r *Rates) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = Normalize(from), Normalize(to)
	fromRate, err := r.Rate(from)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := r.Rate(to)
	if err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return Round(amount, to), nil
	}
	inBase := amount.Mul(fromRate)
	return Round(inBase.Div(toRate), to), nil
}

// Scale is the number of fraction digits used for code.
func Scale(code string) int32 {
	unit, err := currency.ParseISO(Normalize(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Round rounds amount half away from zero to the currency's minor unit.
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(Scale(code))
}

// Format renders amount for display in the given locale, e.g. "1,234.50 USD".
func Format(amount decimal.Decimal, code string, tag language.Tag) string {
	code = Normalize(code)
	return FormatNumber(Round(amount, code), Scale(code), tag) + " " + code
}

// FormatNumber renders amount with locale digit grouping and scale fraction digits.
func FormatNumber(amount decimal.Decimal, scale int32, tag language.Tag) string {
	value, _ := amount.Round(scale).Float64()
	return message.NewPrinter(tag).Sprint(number.Decimal(value, number.Scale(int(scale))))
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
