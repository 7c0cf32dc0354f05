package source

import (
	"encoding/json"
	"fmt"

	"cambio_go/internal/domain"
)

const defaultOpenERAPIURL = "https://open.er-api.com/v6/latest/USD"

// openERAPIResponse represents the open.er-api.com v6 response
type openERAPIResponse struct {
	Result    string             `json:"result"` // "success" or "error"
	ErrorType string             `json:"error-type"`
	BaseCode  string             `json:"base_code"`
	Rates     map[string]float64 `json:"rates"`
}

// NewOpenERAPI returns the open.er-api.com source descriptor. The
// provider covers the full supported set.
func NewOpenERAPI(url string) Source {
	if url == "" {
		url = defaultOpenERAPIURL
	}
	supported := domain.Currencies()

	return Source{
		ID:        "open-er-api",
		Endpoint:  url,
		Supported: supported,
		decode: func(body []byte) (domain.RateTable, error) {
			var resp openERAPIResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, err
			}
			if resp.Result != "success" {
				return nil, fmt.Errorf("api result %q: %s", resp.Result, resp.ErrorType)
			}
			return tableFromRates(resp.Rates, supported)
		},
	}
}
