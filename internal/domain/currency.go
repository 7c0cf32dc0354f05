package domain

import (
	"fmt"
	"strings"
)

// Currency identifies a supported currency by its ISO 4217 code
type Currency string

// The supported set. USD is the base every rate is expressed against.
const (
	USD Currency = "USD"
	ARS Currency = "ARS"
	AED Currency = "AED"
	CNY Currency = "CNY"
	CAD Currency = "CAD"
	PEN Currency = "PEN"
	BRL Currency = "BRL"
)

// BaseCurrency is the currency all rates are relative to (rate = 1)
const BaseCurrency = USD

// currencies is the closed, ordered set tables are published for.
// Adding a currency means touching every source mapping and the
// country table below, so this is not extensible at runtime.
var currencies = []Currency{USD, ARS, AED, CNY, CAD, PEN, BRL}

// flagCountries maps each currency to the ISO 3166 country code used
// for flag assets.
var flagCountries = map[Currency]string{
	USD: "us",
	ARS: "ar",
	AED: "ae",
	CNY: "cn",
	CAD: "ca",
	PEN: "pe",
	BRL: "br",
}

// Currencies returns the ordered set of supported currencies.
func Currencies() []Currency {
	out := make([]Currency, len(currencies))
	copy(out, currencies)
	return out
}

// QuoteCurrencies returns the supported currencies without the base.
func QuoteCurrencies() []Currency {
	out := make([]Currency, 0, len(currencies)-1)
	for _, c := range currencies {
		if c != BaseCurrency {
			out = append(out, c)
		}
	}
	return out
}

// ParseCurrency normalizes and validates a currency code from user input.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

// Valid reports whether c belongs to the supported set.
func (c Currency) Valid() bool {
	for _, known := range currencies {
		if known == c {
			return true
		}
	}
	return false
}

// CountryCode returns the ISO 3166 country code for the currency's flag.
func (c Currency) CountryCode() string {
	return flagCountries[c]
}
