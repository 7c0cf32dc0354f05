package event

import (
	"cambio_go/internal/domain"
)

// Type discriminates the envelopes pushed to presentation clients.
type Type string

const (
	// TypeRatesUpdated announces a freshly published rate table.
	TypeRatesUpdated Type = "rates_updated"

	// TypeRefreshFailed announces a background refresh that could not
	// publish; previously active rates remain usable.
	TypeRefreshFailed Type = "refresh_failed"
)

// Envelope is the wire frame for every pushed event.
type Envelope struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

// Conversion is a re-run of the last entered conversion against the
// current table, so clients can restore entered state after a refresh.
type Conversion struct {
	Amount  float64 `json:"amount"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Result  float64 `json:"result"`
	Display string  `json:"display"`
}

// RatesUpdated carries the new aggregation result plus a humanized age
// and, when one exists, the re-converted last entry.
type RatesUpdated struct {
	Result     *domain.AggregationResult `json:"result"`
	UpdatedAgo string                    `json:"updatedAgo"`
	Conversion *Conversion               `json:"conversion,omitempty"`
}

// RefreshFailed names why a background cycle failed.
type RefreshFailed struct {
	Reason string `json:"reason"`
}

// NewRatesUpdated wraps a RatesUpdated payload in its envelope.
func NewRatesUpdated(payload RatesUpdated) Envelope {
	return Envelope{Type: TypeRatesUpdated, Payload: payload}
}

// NewRefreshFailed wraps a RefreshFailed payload in its envelope.
func NewRefreshFailed(reason string) Envelope {
	return Envelope{Type: TypeRefreshFailed, Payload: RefreshFailed{Reason: reason}}
}
