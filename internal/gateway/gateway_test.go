package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sheetrelay/internal/engine"
	"github.com/roach88/sheetrelay/internal/testutil"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *engine.Engine) {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	eng := engine.New(testutil.ProcurementRegistry(t),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithLogger(logger))
	if cfg.Keys == nil {
		cfg.Keys = []string{"k1", "k2"}
	}
	cfg.Logger = logger
	return NewServer(eng, cfg), eng
}

func post(t *testing.T, h http.Handler, key, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body))
	if key != "" {
		req.Header.Set(headerKey, key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

const poBody = `{"routeId":"erp.po","records":{"line_id":"L1","po_number":"PO-1","qty":10,"price":2.5}}`

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestIngest_Success(t *testing.T) {
	srv, eng := newTestServer(t, Config{})

	rec, out := post(t, srv.Handler(), "k1", poBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "erp.po", out["routeId"])
	assert.Equal(t, "po_lines", out["sheetId"])
	assert.Equal(t, 1.0, out["ingested"])
	assert.Equal(t, 0.0, out["failed"])

	view, err := eng.Sheet("po_lines")
	require.NoError(t, err)
	assert.Equal(t, 2, view.RowCount)
}

func TestIngest_ArrayIsOneBatch(t *testing.T) {
	srv, eng := newTestServer(t, Config{})

	body := `{"routeId":"wms.receipt","records":[
		{"receipt_no":"R1","line_id":"L1","qty":1},
		{"receipt_no":"R2","line_id":"L1","qty":2},
		{"receipt_no":"R3","line_id":"L2","qty":3}]}`
	rec, out := post(t, srv.Handler(), "k1", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, out["ingested"])
	assert.Len(t, eng.History("branch-east"), 1, "one cascade per batch")
}

func TestIngest_FailureReasons(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		body   string
		status int
		reason Reason
	}{
		{"missing credential", "", poBody, 401, ReasonMissingCredential},
		{"invalid credential", "nope", poBody, 403, ReasonInvalidCredential},
		{"malformed json", "k1", `{"routeId":`, 400, ReasonInvalidPayload},
		{"missing route id", "k1", `{"records":{}}`, 400, ReasonInvalidPayload},
		{"scalar records", "k1", `{"routeId":"erp.po","records":7}`, 400, ReasonInvalidPayload},
		{"empty records", "k1", `{"routeId":"erp.po","records":[]}`, 400, ReasonInvalidPayload},
		{"null record", "k1", `{"routeId":"erp.po","records":[null]}`, 400, ReasonInvalidPayload},
		{"unknown route", "k1", `{"routeId":"nope","records":{}}`, 404, ReasonUnknownRoute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, Config{})
			rec, out := post(t, srv.Handler(), tt.key, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, out["ok"])
			assert.Equal(t, string(tt.reason), out["error"])
			assert.Len(t, out, 2, "no internal detail leaks")
		})
	}
}

func TestIngest_ByteLimitBeforeParse(t *testing.T) {
	srv, _ := newTestServer(t, Config{MaxBodyBytes: 64})

	// not even valid JSON: the size check must come first
	body := "{" + strings.Repeat("x", 100)
	rec, out := post(t, srv.Handler(), "k1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(ReasonPayloadTooLarge), out["error"])
}

func TestIngest_MaxRecords(t *testing.T) {
	srv, _ := newTestServer(t, Config{MaxRecords: 2})

	body := `{"routeId":"crm.note","records":[{"id":"1"},{"id":"2"},{"id":"3"}]}`
	rec, out := post(t, srv.Handler(), "k1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(ReasonInvalidPayload), out["error"])
}

func TestIngest_ProofRequiresTimestamp(t *testing.T) {
	srv, eng := newTestServer(t, Config{})
	h := srv.Handler()

	rec, out := post(t, h, "k1", poBody, headerProof, "1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(ReasonInvalidPayload), out["error"])

	view, err := eng.Sheet("po_lines")
	require.NoError(t, err)
	assert.Equal(t, 1, view.RowCount, "rejected requests append nothing")

	withTS := `{"routeId":"erp.po","records":{"line_id":"L1","ts":"2024-03-01T08:00:00Z"}}`
	rec, out = post(t, h, "k1", withTS, headerProof, "1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, out["ingested"])
}

func TestIngest_StrictRequired(t *testing.T) {
	srv, _ := newTestServer(t, Config{StrictRequired: true})

	rec, out := post(t, srv.Handler(), "k1", `{"routeId":"erp.po","records":{"po_number":"PO-1"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, out["ingested"])
	assert.Equal(t, 1.0, out["failed"])
}

func TestIngest_RateLimited(t *testing.T) {
	const capacity = 3
	srv, _ := newTestServer(t, Config{RatePerSecond: 0.001, Burst: capacity})
	h := srv.Handler()

	for i := 0; i < capacity; i++ {
		rec, _ := post(t, h, "k1", poBody)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	rec, out := post(t, h, "k1", poBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, string(ReasonRateLimited), out["error"])

	rec, _ = post(t, h, "k2", poBody)
	assert.Equal(t, http.StatusOK, rec.Code, "buckets are per credential")
}

func TestIngest_OpenModeAcceptsAnyKey(t *testing.T) {
	srv, _ := newTestServer(t, Config{Keys: []string{}})

	rec, _ := post(t, srv.Handler(), "anything", poBody)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngest_OpenModeBoundsLimiters(t *testing.T) {
	srv, _ := newTestServer(t, Config{Keys: []string{}, RatePerSecond: 0.001, Burst: 1, MaxLimiters: 2})
	h := srv.Handler()

	for _, key := range []string{"a", "b"} {
		rec, _ := post(t, h, key, poBody)
		require.Equal(t, http.StatusOK, rec.Code, key)
	}

	rec, _ := post(t, h, "c", poBody)
	assert.Equal(t, http.StatusOK, rec.Code, "first unseen key past the cap takes the overflow token")
	rec, out := post(t, h, "d", poBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "rotating keys does not mint new buckets")
	assert.Equal(t, string(ReasonRateLimited), out["error"])
	assert.Len(t, srv.limiters, 2)

	// once existing buckets have refilled they are swept for new keys
	srv.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	rec, _ = post(t, h, "e", poBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, srv.limiters, 1)
	assert.Contains(t, srv.limiters, "e")
}

func TestStateHashes(t *testing.T) {
	srv, eng := newTestServer(t, Config{})
	h := srv.Handler()
	post(t, h, "k1", poBody)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/state-hashes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got engine.StateHashes
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	want, err := eng.Hashes()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, got.Facts, 64)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, Config{Addr: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestReasonStatus(t *testing.T) {
	assert.Equal(t, 500, ReasonInternalError.Status())
	assert.Equal(t, 400, ReasonPayloadTooLarge.Status())
	assert.Equal(t, 429, ReasonRateLimited.Status())
}
