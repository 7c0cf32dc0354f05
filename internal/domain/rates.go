package domain

import (
	"fmt"
	"math"
	"time"
)

// RateTable maps each currency to its value in units per one unit of the
// base currency. A published table always carries every supported
// currency, with the base pinned at exactly 1.
type RateTable map[Currency]float64

// Complete reports whether every supported currency has a rate.
func (t RateTable) Complete() bool {
	return len(t.Missing()) == 0
}

// Missing returns the supported currencies absent from the table, in order.
func (t RateTable) Missing() []Currency {
	var missing []Currency
	for _, c := range currencies {
		if _, ok := t[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// Validate checks the invariants a publishable table must hold:
// completeness, strictly positive finite rates, and base == 1.
func (t RateTable) Validate() error {
	if missing := t.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrIncompleteTable, missing)
	}
	for c, rate := range t {
		if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return fmt.Errorf("invalid rate for %s: %v", c, rate)
		}
	}
	if t[BaseCurrency] != 1 {
		return fmt.Errorf("base currency %s must be 1, got %v", BaseCurrency, t[BaseCurrency])
	}
	return nil
}

// Clone returns a copy so the published table stays immutable.
func (t RateTable) Clone() RateTable {
	out := make(RateTable, len(t))
	for c, rate := range t {
		out[c] = rate
	}
	return out
}

// Convert converts amount between two currencies over the table: to base
// first, then to the target. The same-currency case returns the amount
// unchanged to avoid a pointless floating-point round trip.
func (t RateTable) Convert(amount float64, from, to Currency) (float64, error) {
	if from == to {
		return amount, nil
	}
	fromRate, ok := t[from]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCurrency, from)
	}
	toRate, ok := t[to]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}
	return amount / fromRate * toRate, nil
}

// AggregationResult is the immutable outcome of one successful aggregation
// cycle. The JSON field names are the snapshot wire format.
type AggregationResult struct {
	Rates        RateTable `json:"rates"`
	LastUpdate   time.Time `json:"lastUpdate"`
	SourcesUsed  int       `json:"sourcesUsed"`
	TotalSources int       `json:"totalSources"`
	FromCache    bool      `json:"-"`
}
