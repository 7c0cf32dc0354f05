package source

import (
	"encoding/json"
	"fmt"

	"cambio_go/internal/domain"
)

const defaultFrankfurterURL = "https://api.frankfurter.app/latest?base=USD"

// frankfurterResponse represents the api.frankfurter.app response
type frankfurterResponse struct {
	Amount float64            `json:"amount"`
	Base   string             `json:"base"`
	Date   string             `json:"date"`
	Rates  map[string]float64 `json:"rates"`
}

// NewFrankfurter returns the frankfurter.app source descriptor. The
// provider republishes ECB reference rates and only ever prices CNY,
// CAD and BRL out of our set; ARS, AED and PEN stay absent from its
// tables. The capability set is fixed here, never probed at runtime.
func NewFrankfurter(url string) Source {
	if url == "" {
		url = defaultFrankfurterURL
	}
	supported := []domain.Currency{domain.USD, domain.CNY, domain.CAD, domain.BRL}

	return Source{
		ID:        "frankfurter",
		Endpoint:  url,
		Supported: supported,
		decode: func(body []byte) (domain.RateTable, error) {
			var resp frankfurterResponse
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
