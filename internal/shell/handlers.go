package shell

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cambio_go/internal/domain"
	"cambio_go/internal/event"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// formatAmount renders a value for display with two fixed decimals.
// Rounding happens here at the edge; the engine stays float64.
func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("Failed to encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type ratesResponse struct {
	Rates        map[domain.Currency]float64 `json:"rates"`
	Display      map[domain.Currency]string  `json:"display"`
	LastUpdate   string                      `json:"lastUpdate"`
	UpdatedAgo   string                      `json:"updatedAgo"`
	SourcesUsed  int                         `json:"sourcesUsed"`
	TotalSources int                         `json:"totalSources"`
	FromCache    bool                        `json:"fromCache"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res := s.agg.ActiveRates()
	if res == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrRatesNotLoaded.Error())
		return
	}

	display := make(map[domain.Currency]string, len(res.Rates))
	for c, v := range res.Rates {
		display[c] = formatAmount(v)
	}

	writeJSON(w, http.StatusOK, ratesResponse{
		Rates:        res.Rates,
		Display:      display,
		LastUpdate:   res.LastUpdate.UTC().Format("2006-01-02 15:04:05"),
		UpdatedAgo:   humanize.Time(res.LastUpdate),
		SourcesUsed:  res.SourcesUsed,
		TotalSources: res.TotalSources,
		FromCache:    res.FromCache,
	})
}

type convertRequest struct {
	Amount float64 `json:"amount"`
	From   string  `json:"from"`
	To     string  `json:"to"`
}

type convertResponse struct {
	Amount  float64 `json:"amount"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Result  float64 `json:"result"`
	Display string  `json:"display"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Amount < 0 {
		writeError(w, http.StatusBadRequest, domain.ErrNegativeAmount.Error())
		return
	}

	from, err := domain.ParseCurrency(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := domain.ParseCurrency(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.agg.Convert(req.Amount, from, to)
	if err != nil {
		if errors.Is(err, domain.ErrRatesNotLoaded) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Zero amounts are valid input but not worth restoring after a
	// refresh, so only real entries replace the stored one.
	if req.Amount > 0 {
		s.saveLastConversion(conversionEntry{Amount: req.Amount, From: string(from), To: string(to)})
	}

	writeJSON(w, http.StatusOK, convertResponse{
		Amount:  req.Amount,
		From:    string(from),
		To:      string(to),
		Result:  result,
		Display: formatAmount(result),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "refresh interval not elapsed")
		return
	}

	res, err := s.agg.FetchRates(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRefreshInFlight) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "refreshed",
		"sourcesUsed":  res.SourcesUsed,
		"totalSources": res.TotalSources,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	id := s.hub.Add(conn)

	// New clients get the current table immediately instead of
	// waiting for the next refresh.
	if res := s.agg.ActiveRates(); res != nil {
		payload := event.RatesUpdated{
			Result:     res,
			UpdatedAgo: humanize.Time(res.LastUpdate),
		}
		if err := s.hub.SendTo(id, event.NewRatesUpdated(payload)); err != nil {
			s.hub.Remove(id)
			return
		}
	}

	go s.readLoop(id, conn)
}

// readLoop drains client frames until the peer goes away. Inbound
// messages carry no commands today; the read keeps ping/pong and close
// handling alive.
func (s *Server) readLoop(id string, conn *websocket.Conn) {
	defer s.hub.Remove(id)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"ratesLoaded": s.agg.ActiveRates() != nil,
	})
}
