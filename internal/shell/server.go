package shell

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cambio_go/internal/domain"
	"cambio_go/internal/event"
	"cambio_go/internal/infra"
	"cambio_go/internal/service"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const prefKeyLastConversion = "lastConversion"

// conversionEntry is the persisted form of the last entered conversion.
type conversionEntry struct {
	Amount float64 `json:"amount"`
	From   string  `json:"from"`
	To     string  `json:"to"`
}

// Server is the replaceable presentation shell: a small HTTP+WebSocket
// surface over the aggregation engine. It carries no rate logic of its
// own; it validates input, calls the engine, and renders the result.
type Server struct {
	agg      *service.Aggregator
	prefs    domain.PreferenceStore
	hub      *Hub
	metrics  *infra.Metrics
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	srv      *http.Server
}

// NewServer wires the shell routes over the engine. The refresh limiter
// enforces the configured minimum interval between manual refreshes.
func NewServer(cfg *infra.Config, agg *service.Aggregator, prefs domain.PreferenceStore, flags *infra.FlagDownloader, metrics *infra.Metrics) *Server {
	minInterval := time.Duration(cfg.Refresh.MinIntervalSec) * time.Second

	s := &Server{
		agg:     agg,
		prefs:   prefs,
		hub:     NewHub(metrics),
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The shell is served same-origin or local; no origin gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/rates", s.handleRates)
	mux.HandleFunc("/api/convert", s.handleConvert)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", s.metrics.Handler())
	if flags != nil {
		mux.Handle("/assets/flags/", http.StripPrefix("/assets/flags/", http.FileServer(http.Dir(flags.BasePath()))))
	}

	s.srv = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		slog.Info("🌐 Shell server listening", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Shell server failed", slog.Any("error", err))
		}
	}()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// NotifyRatesUpdated pushes a fresh table to all clients together with
// a re-run of the last entered conversion, so user-entered state
// survives a background refresh.
func (s *Server) NotifyRatesUpdated(res *domain.AggregationResult) {
	payload := event.RatesUpdated{
		Result:     res,
		UpdatedAgo: humanize.Time(res.LastUpdate),
	}

	if entry := s.lastConversion(); entry != nil {
		value, err := s.agg.Convert(entry.Amount, domain.Currency(entry.From), domain.Currency(entry.To))
		if err == nil {
			payload.Conversion = &event.Conversion{
				Amount:  entry.Amount,
				From:    entry.From,
				To:      entry.To,
				Result:  value,
				Display: formatAmount(value),
			}
		}
	}

	s.hub.Broadcast(event.NewRatesUpdated(payload))
}

// NotifyRefreshFailed tells clients a background refresh failed;
// whatever table was active stays usable.
func (s *Server) NotifyRefreshFailed(err error) {
	s.hub.Broadcast(event.NewRefreshFailed(err.Error()))
}

// lastConversion reads the persisted last entry, or nil when there is
// none or it cannot be parsed.
func (s *Server) lastConversion() *conversionEntry {
	raw, err := s.prefs.GetPreference(prefKeyLastConversion)
	if err != nil || raw == "" {
		return nil
	}
	var entry conversionEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		slog.Warn("Stored conversion entry unreadable", slog.Any("error", err))
		return nil
	}
	return &entry
}

func (s *Server) saveLastConversion(entry conversionEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.prefs.SavePreference(prefKeyLastConversion, string(raw)); err != nil {
		slog.Warn("Failed to persist conversion entry", slog.Any("error", err))
	}
}
