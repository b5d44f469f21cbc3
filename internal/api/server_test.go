package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"riskfeed/config"
	"riskfeed/internal/alerts"
	"riskfeed/internal/options/memorystore"
	"riskfeed/pkg/storage/postgres"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubStream struct{ closed atomic.Int32 }

func (s *stubStream) ServeHTTP(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }
func (s *stubStream) CloseAll()                                     { s.closed.Add(1) }

type stubSnapshots struct {
	snap  *memorystore.Snapshot
	err   error
	calls int
}

func (s *stubSnapshots) FetchSnapshot(context.Context) (*memorystore.Snapshot, error) {
	s.calls++
	return s.snap, s.err
}

type stubOptions struct {
	metrics *memorystore.Metrics
	history []postgres.HistoryPoint
	err     error
	ranges  []postgres.HistoryRange
}

func (s *stubOptions) FetchMetrics(context.Context, string, string) (*memorystore.Metrics, error) {
	return s.metrics, s.err
}

func (s *stubOptions) FetchHistory(_ context.Context, _, _ string, r postgres.HistoryRange) ([]postgres.HistoryPoint, error) {
	s.ranges = append(s.ranges, r)
	return s.history, s.err
}

type stubAlerts struct {
	res *alerts.Result
	err error
	got []alerts.Request
}

func (s *stubAlerts) Subscribe(_ context.Context, req alerts.Request) (*alerts.Result, error) {
	s.got = append(s.got, req)
	return s.res, s.err
}

type harness struct {
	server    *Server
	cache     *memorystore.SnapshotCache
	snapshots *stubSnapshots
	options   *stubOptions
	alerts    *stubAlerts
}

func newHarness() *harness {
	gin.SetMode(gin.TestMode)
	h := &harness{
		cache:     memorystore.NewSnapshotCache(),
		snapshots: &stubSnapshots{},
		options:   &stubOptions{},
		alerts:    &stubAlerts{},
	}
	h.server = NewServer(config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, time.Second, "test", Deps{
		Stream:    &stubStream{},
		Cache:     h.cache,
		Snapshots: h.snapshots,
		Options:   h.options,
		Alerts:    h.alerts,
	}, zap.NewNop())
	return h
}

func (h *harness) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

// go test -v --run TestHealth
func TestHealth(t *testing.T) {
	h := newHarness()
	code, body := h.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

// go test -v --run TestWebsocketRouteDelegates
func TestWebsocketRouteDelegates(t *testing.T) {
	h := newHarness()
	code, _ := h.do(t, "GET", "/ws", "")
	assert.Equal(t, http.StatusTeapot, code)
}

// go test -v --run TestSnapshotFromCache
func TestSnapshotFromCache(t *testing.T) {
	h := newHarness()
	h.cache.Store(&memorystore.Snapshot{Timestamp: "10:00:00", Expiries: map[string][]memorystore.ContractRow{}})

	code, body := h.do(t, "GET", "/api/snapshot", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "10:00:00", body["timestamp"])
	assert.Equal(t, 0, h.snapshots.calls)
}

// go test -v --run TestSnapshotFetchesWhenCacheEmpty
func TestSnapshotFetchesWhenCacheEmpty(t *testing.T) {
	h := newHarness()
	h.snapshots.snap = &memorystore.Snapshot{Timestamp: "09:15:02", Expiries: map[string][]memorystore.ContractRow{}}

	code, body := h.do(t, "GET", "/api/snapshot", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "09:15:02", body["timestamp"])
	assert.Same(t, h.snapshots.snap, h.cache.Load())

	h.snapshots.err = errors.New("unreachable")
	h.cache.Store(nil)
	code, body = h.do(t, "GET", "/api/snapshot", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, msgSnapshotUnavailable, body["detail"])
}

// go test -v --run TestHistory
func TestHistory(t *testing.T) {
	h := newHarness()
	ltp := 101.5
	h.options.history = []postgres.HistoryPoint{{Time: "2026-02-20T10:00:00", LTP: &ltp}}

	code, body := h.do(t, "GET", "/api/history?symbol=NIFTY25400CE&expiry=2026-02-24&range=1W&reqId=7", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(7), body["reqId"])
	assert.Equal(t, "1W", body["range"])
	assert.Len(t, body["data"], 1)
	assert.Equal(t, []postgres.HistoryRange{postgres.Range1W}, h.options.ranges)
}

// go test -v --run TestHistoryBadRequests
func TestHistoryBadRequests(t *testing.T) {
	h := newHarness()

	code, body := h.do(t, "GET", "/api/history?symbol=X&expiry=E&range=1Y&reqId=1", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "range must be 1D, 1W, 1M or MAX", body["detail"])

	code, _ = h.do(t, "GET", "/api/history?symbol=X&range=1D&reqId=1", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, "GET", "/api/history?symbol=X&expiry=E&range=1D", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, h.options.ranges)
}

// go test -v --run TestHistoryQueryFailureIsEmpty
func TestHistoryQueryFailureIsEmpty(t *testing.T) {
	h := newHarness()
	h.options.err = errors.New("pool exhausted")

	code, body := h.do(t, "GET", "/api/history?symbol=X&expiry=E&range=MAX&reqId=3", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["data"])
}

// go test -v --run TestLatest
func TestLatest(t *testing.T) {
	h := newHarness()
	delta := 0.48
	h.options.metrics = &memorystore.Metrics{Symbol: "NIFTY25400CE", Expiry: "2026-02-24", Delta: &delta}

	code, body := h.do(t, "GET", "/api/latest?symbol=NIFTY25400CE&expiry=2026-02-24&reqId=12", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(12), body["reqId"])
	assert.Equal(t, "NIFTY25400CE", body["symbol"])
	assert.Equal(t, 0.48, body["delta"])
}

// go test -v --run TestLatestNotFound
func TestLatestNotFound(t *testing.T) {
	h := newHarness()

	code, body := h.do(t, "GET", "/api/latest?symbol=NIFTY1CE&expiry=2026-02-24&reqId=1", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, msgOptionNotFound, body["detail"])

	h.options.err = errors.New("timeout")
	code, _ = h.do(t, "GET", "/api/latest?symbol=NIFTY1CE&expiry=2026-02-24&reqId=1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

// go test -v --run TestEmailAlert
func TestEmailAlert(t *testing.T) {
	h := newHarness()
	h.alerts.res = &alerts.Result{Status: "ok", Verified: true, Message: "Successfully subscribed"}

	code, body := h.do(t, "POST", "/api/email-alert", `{"option":"NIFTY25400CE","email":"a@b.co","risk":"75","expiry":"2026-02-24"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["verified"])
	require.Len(t, h.alerts.got, 1)
	assert.Equal(t, "75", h.alerts.got[0].Risk.Value)
}

// go test -v --run TestEmailAlertErrors
func TestEmailAlertErrors(t *testing.T) {
	h := newHarness()

	h.alerts.err = fmt.Errorf("%w: %s", alerts.ErrInvalidRequest, alerts.MsgMissingFields)
	code, body := h.do(t, "POST", "/api/email-alert", `{"option":"X"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, alerts.MsgMissingFields, body["detail"])

	h.alerts.err = fmt.Errorf("%w: AccessDenied", alerts.ErrStorage)
	code, body = h.do(t, "POST", "/api/email-alert", `{"option":"X","email":"a@b.co","risk":"1","expiry":"E"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, msgSaveFailed, body["detail"])

	code, _ = h.do(t, "POST", "/api/email-alert", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

// go test -v --run TestCORSPreflight
func TestCORSPreflight(t *testing.T) {
	h := newHarness()
	req := httptest.NewRequest("OPTIONS", "/api/snapshot", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// go test -v --run TestRunShutsDown
func TestRunShutsDown(t *testing.T) {
	h := newHarness()
	stream := h.server.deps.Stream.(*stubStream)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	// shutdown hooks run on their own goroutines
	require.Eventually(t, func() bool { return stream.closed.Load() == 1 }, time.Second, 10*time.Millisecond)
}
