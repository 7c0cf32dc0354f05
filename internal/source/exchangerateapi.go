package source

import (
	"encoding/json"
	"fmt"

	"cambio_go/internal/domain"
)

const defaultExchangeRateAPIURL = "https://api.exchangerate-api.com/v4/latest/USD"

// exchangeRateAPIResponse represents the api.exchangerate-api.com v4 response
type exchangeRateAPIResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// NewExchangeRateAPI returns the exchangerate-api.com source descriptor.
// The provider covers the full supported set.
func NewExchangeRateAPI(url string) Source {
	if url == "" {
		url = defaultExchangeRateAPIURL
	}
	supported := domain.Currencies()

	return Source{
		ID:        "exchangerate-api",
		Endpoint:  url,
		Supported: supported,
		decode: func(body []byte) (domain.RateTable, error) {
			var resp exchangeRateAPIResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, err
			}
			if resp.Base != string(domain.BaseCurrency) {
				return nil, fmt.Errorf("unexpected base currency %q", resp.Base)
			}
			return tableFromRates(resp.Rates, supported)
		},
	}
}
