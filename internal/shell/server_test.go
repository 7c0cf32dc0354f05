package shell

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cambio_go/internal/domain"
	"cambio_go/internal/infra"
	"cambio_go/internal/service"
	"cambio_go/internal/source"

	"github.com/gorilla/websocket"
)

// shellStore backs both store interfaces in-memory.
type shellStore struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	prefs     map[string]string
}

func newShellStore() *shellStore {
	return &shellStore{
		snapshots: make(map[string][]byte),
		prefs:     make(map[string]string),
	}
}

func (s *shellStore) SaveSnapshot(key string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = append([]byte(nil), payload...)
	return nil
}

func (s *shellStore) LoadSnapshot(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[key], nil
}

func (s *shellStore) SavePreference(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[key] = value
	return nil
}

func (s *shellStore) GetPreference(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs[key], nil
}

var testRates = map[domain.Currency]float64{
	domain.USD: 1,
	domain.ARS: 1010,
	domain.AED: 3.67,
	domain.CNY: 7.24,
	domain.CAD: 1.36,
	domain.PEN: 3.52,
	domain.BRL: 5.43,
}

type fixture struct {
	store  *shellStore
	agg    *service.Aggregator
	server *Server
	ts     *httptest.Server
}

// newFixture stands up the full shell over an aggregator whose sources
// point at the given handlers (or at unreachable endpoints when nil).
func newFixture(t *testing.T, handlers map[string]http.Handler) *fixture {
	t.Helper()

	urls := source.Endpoints{
		OpenERAPI:       "http://127.0.0.1:0",
		ExchangeRateAPI: "http://127.0.0.1:0",
		Frankfurter:     "http://127.0.0.1:0",
	}
	for name, h := range handlers {
		ts := httptest.NewServer(h)
		t.Cleanup(ts.Close)
		switch name {
		case "open-er-api":
			urls.OpenERAPI = ts.URL
		case "exchangerate-api":
			urls.ExchangeRateAPI = ts.URL
		case "frankfurter":
			urls.Frankfurter = ts.URL
		}
	}

	store := newShellStore()
	metrics := infra.NewMetrics()
	agg := service.NewAggregator(source.Registry(urls), source.NewFetcher(2*time.Second), store, metrics, 7*24*time.Hour)

	cfg := &infra.Config{}
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Refresh.MinIntervalSec = 3600

	server := NewServer(cfg, agg, store, nil, metrics)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &fixture{store: store, agg: agg, server: server, ts: ts}
}

// loadRates installs a complete table through the cache path.
func (f *fixture) loadRates(t *testing.T) {
	t.Helper()

	payload, err := json.Marshal(domain.AggregationResult{
		Rates:        testRates,
		LastUpdate:   time.Now().Add(-2 * time.Hour),
		SourcesUsed:  3,
		TotalSources: 3,
	})
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	f.store.SaveSnapshot(service.SnapshotKey, payload, 7*24*time.Hour)
	if _, ok := f.agg.LoadFromCache(); !ok {
		t.Fatal("expected cache load to succeed")
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode
}

func TestHandleRates(t *testing.T) {
	f := newFixture(t, nil)
	f.loadRates(t)

	var got ratesResponse
	if status := getJSON(t, f.ts.URL+"/api/rates", &got); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	if got.Rates[domain.ARS] != 1010 {
		t.Errorf("ARS rate = %v, want 1010", got.Rates[domain.ARS])
	}
	if got.Display[domain.ARS] != "1010.00" {
		t.Errorf("ARS display = %q, want \"1010.00\"", got.Display[domain.ARS])
	}
	if got.SourcesUsed != 3 || got.TotalSources != 3 {
		t.Errorf("sources = %d/%d, want 3/3", got.SourcesUsed, got.TotalSources)
	}
	if !got.FromCache {
		t.Error("expected fromCache = true for a cache-loaded table")
	}
	if got.UpdatedAgo == "" {
		t.Error("expected a humanized age")
	}
}

func TestHandleRates_NotLoaded(t *testing.T) {
	f := newFixture(t, nil)

	var got map[string]string
	if status := getJSON(t, f.ts.URL+"/api/rates", &got); status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
	if got["error"] == "" {
		t.Error("expected an error message")
	}
}

func TestHandleConvert(t *testing.T) {
	f := newFixture(t, nil)
	f.loadRates(t)

	var got convertResponse
	status := postJSON(t, f.ts.URL+"/api/convert", convertRequest{Amount: 100, From: "USD", To: "ARS"}, &got)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	if got.Result != 101000 {
		t.Errorf("result = %v, want 101000", got.Result)
	}
	if got.Display != "101000.00" {
		t.Errorf("display = %q, want \"101000.00\"", got.Display)
	}

	// A successful non-zero conversion becomes the restorable entry.
	raw, _ := f.store.GetPreference(prefKeyLastConversion)
	var entry conversionEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		t.Fatalf("stored entry unreadable: %v", err)
	}
	if entry.Amount != 100 || entry.From != "USD" || entry.To != "ARS" {
		t.Errorf("stored entry = %+v", entry)
	}
}

func TestHandleConvert_ZeroAmountNotPersisted(t *testing.T) {
	f := newFixture(t, nil)
	f.loadRates(t)

	var got convertResponse
	if status := postJSON(t, f.ts.URL+"/api/convert", convertRequest{Amount: 0, From: "USD", To: "ARS"}, &got); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if got.Result != 0 {
		t.Errorf("result = %v, want 0", got.Result)
	}
	if raw, _ := f.store.GetPreference(prefKeyLastConversion); raw != "" {
		t.Errorf("zero amount should not be persisted, got %q", raw)
	}
}

func TestHandleConvert_Validation(t *testing.T) {
	f := newFixture(t, nil)
	f.loadRates(t)

	cases := []struct {
		name string
		body string
	}{
		{"negative amount", `{"amount":-1,"from":"USD","to":"ARS"}`},
		{"unknown currency", `{"amount":1,"from":"USD","to":"XYZ"}`},
		{"malformed body", `{"amount":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(f.ts.URL+"/api/convert", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestHandleConvert_NotLoaded(t *testing.T) {
	f := newFixture(t, nil)

	var got map[string]string
	status := postJSON(t, f.ts.URL+"/api/convert", convertRequest{Amount: 1, From: "USD", To: "USD"}, &got)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
}

func TestHandleRefresh(t *testing.T) {
	full := `{"result":"success","base_code":"USD","rates":{"USD":1,"ARS":1000,"AED":3.67,"CNY":7.24,"CAD":1.36,"PEN":3.52,"BRL":5.43}}`
	f := newFixture(t, map[string]http.Handler{
		"open-er-api": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(full))
		}),
	})

	var got map[string]any
	status := postJSON(t, f.ts.URL+"/api/refresh", struct{}{}, &got)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, got)
	}
	if got["sourcesUsed"].(float64) != 1 {
		t.Errorf("sourcesUsed = %v, want 1", got["sourcesUsed"])
	}

	// Rates must now serve from the fresh fetch, not the cache.
	var rates ratesResponse
	if status := getJSON(t, f.ts.URL+"/api/rates", &rates); status != http.StatusOK {
		t.Fatalf("rates status = %d, want 200", status)
	}
	if rates.FromCache {
		t.Error("expected fromCache = false after a live refresh")
	}
}

func TestHandleRefresh_RateLimited(t *testing.T) {
	f := newFixture(t, nil)

	// First request consumes the single token; all sources are
	// unreachable so it reports upstream failure.
	var first map[string]string
	if status := postJSON(t, f.ts.URL+"/api/refresh", struct{}{}, &first); status != http.StatusBadGateway {
		t.Fatalf("first status = %d, want 502", status)
	}

	var second map[string]string
	if status := postJSON(t, f.ts.URL+"/api/refresh", struct{}{}, &second); status != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", status)
	}
}

func TestHandleRefresh_FailureKeepsActiveRates(t *testing.T) {
	f := newFixture(t, nil)
	f.loadRates(t)

	var got map[string]string
	if status := postJSON(t, f.ts.URL+"/api/refresh", struct{}{}, &got); status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", status)
	}

	var rates ratesResponse
	if status := getJSON(t, f.ts.URL+"/api/rates", &rates); status != http.StatusOK {
		t.Fatalf("rates status = %d, want 200 after failed refresh", status)
	}
	if rates.Rates[domain.ARS] != 1010 {
		t.Errorf("ARS = %v, want the pre-failure 1010", rates.Rates[domain.ARS])
	}
}

func TestHandleHealthz(t *testing.T) {
	f := newFixture(t, nil)

	var got map[string]any
	if status := getJSON(t, f.ts.URL+"/healthz", &got); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if got["status"] != "ok" {
		t.Errorf("status field = %v", got["status"])
	}
	if got["ratesLoaded"] != false {
		t.Errorf("ratesLoaded = %v, want false", got["ratesLoaded"])
	}

	f.loadRates(t)
	getJSON(t, f.ts.URL+"/healthz", &got)
	if got["ratesLoaded"] != true {
		t.Errorf("ratesLoaded = %v, want true after load", got["ratesLoaded"])
	}
}

// wsEnvelope mirrors the pushed frame shape for decoding in tests.
type wsEnvelope struct {
	Type    string `json:"type"`
	Payload struct {
		Result     *domain.AggregationResult `json:"result"`
		UpdatedAgo string                    `json:"updatedAgo"`
		Conversion *struct {
			Amount  float64 `json:"amount"`
			From    string  `json:"from"`
			To      string  `json:"to"`
			Result  float64 `json:"result"`
			Display string  `json:"display"`
		} `json:"conversion"`
		Reason string `json:"reason"`
	} `json:"payload"`
}

func dialWS(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env
}

func TestWebSocket_InitialSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	f.loadRates(t)

	conn := dialWS(t, f)
	env := readEnvelope(t, conn)

	if env.Type != "rates_updated" {
		t.Fatalf("type = %q, want rates_updated", env.Type)
	}
	if env.Payload.Result == nil || env.Payload.Result.Rates[domain.ARS] != 1010 {
		t.Errorf("unexpected snapshot payload: %+v", env.Payload.Result)
	}
	if env.Payload.UpdatedAgo == "" {
		t.Error("expected a humanized age")
	}
}

func TestWebSocket_BroadcastRestoresConversion(t *testing.T) {
	f := newFixture(t, nil)
	f.loadRates(t)

	// Simulate a previously entered conversion.
	entry, _ := json.Marshal(conversionEntry{Amount: 100, From: "USD", To: "ARS"})
	f.store.SavePreference(prefKeyLastConversion, string(entry))

	conn := dialWS(t, f)
	readEnvelope(t, conn) // initial snapshot

	f.server.NotifyRatesUpdated(f.agg.ActiveRates())

	env := readEnvelope(t, conn)
	if env.Type != "rates_updated" {
		t.Fatalf("type = %q, want rates_updated", env.Type)
	}
	conv := env.Payload.Conversion
	if conv == nil {
		t.Fatal("expected the stored conversion to be re-run")
	}
	if conv.Result != 101000 {
		t.Errorf("conversion result = %v, want 101000", conv.Result)
	}
	if conv.Display != "101000.00" {
		t.Errorf("conversion display = %q", conv.Display)
	}
}

func TestWebSocket_RefreshFailedBroadcast(t *testing.T) {
	f := newFixture(t, nil)
	f.loadRates(t)

	conn := dialWS(t, f)
	readEnvelope(t, conn) // initial snapshot

	f.server.NotifyRefreshFailed(domain.ErrAllSourcesFailed)

	env := readEnvelope(t, conn)
	if env.Type != "refresh_failed" {
		t.Fatalf("type = %q, want refresh_failed", env.Type)
	}
	if env.Payload.Reason == "" {
		t.Error("expected a failure reason")
	}
}

func TestWebSocket_NoSnapshotBeforeFirstLoad(t *testing.T) {
	f := newFixture(t, nil)

	conn := dialWS(t, f)

	// No table yet: nothing should arrive until a publish happens.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no initial frame without an active table")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{101000, "101000.00"},
		{3.675, "3.68"},
		{0, "0.00"},
		{0.005, "0.01"},
	}
	for _, tc := range cases {
		if got := formatAmount(tc.in); got != tc.want {
			t.Errorf("formatAmount(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
