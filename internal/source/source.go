package source

import (
	"errors"
	"fmt"
	"math"

	"cambio_go/internal/domain"
)

// Source describes one rate provider: a fixed identifier, its endpoint,
// the set of currencies it is able to price, and a pure decode function
// mapping its response body to a partial rate table. Descriptors are
// immutable and registered once at process start.
type Source struct {
	ID        string
	Endpoint  string
	Supported []domain.Currency
	decode    func(body []byte) (domain.RateTable, error)
}

// Decode applies the provider's mapping function to a raw response body.
func (s Source) Decode(body []byte) (domain.RateTable, error) {
	return s.decode(body)
}

// Endpoints carries per-provider URL overrides. Empty fields keep the
// provider defaults; overrides point at mirrors or test servers.
type Endpoints struct {
	OpenERAPI       string
	ExchangeRateAPI string
	Frankfurter     string
}

// Registry returns the fixed, ordered list of rate sources the
// aggregator fans out to.
func Registry(urls Endpoints) []Source {
	return []Source{
		NewOpenERAPI(urls.OpenERAPI),
		NewExchangeRateAPI(urls.ExchangeRateAPI),
		NewFrankfurter(urls.Frankfurter),
	}
}

// tableFromRates filters a raw code→rate map down to the currencies the
// source supports. The base is pinned at 1 regardless of the response; a
// supported currency the provider skipped this time stays absent rather
// than zero. Nonsense values fail the whole source so they can never
// reach an average.
func tableFromRates(raw map[string]float64, supported []domain.Currency) (domain.RateTable, error) {
	table := domain.RateTable{domain.BaseCurrency: 1}
	for _, c := range supported {
		if c == domain.BaseCurrency {
			continue
		}
		v, ok := raw[string(c)]
		if !ok {
			continue
		}
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("unusable rate for %s: %v", c, v)
		}
		table[c] = v
	}
	if len(table) == 1 {
		return nil, errors.New("no usable rates in response")
	}
	return table, nil
}
