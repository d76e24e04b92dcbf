package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopdesk/internal/audit"
	"shopdesk/internal/classifier"
	"shopdesk/internal/dispatch"
	"shopdesk/internal/registry"
	"shopdesk/internal/session"
	"shopdesk/internal/specialists"
	"shopdesk/internal/types"
)

func newTestServer(t *testing.T) (*Server, session.Store) {
	t.Helper()

	reg := registry.New()
	require.NoError(t, specialists.RegisterDefaults(reg))

	store := session.NewMemoryStore(50)
	interceptor := audit.NewInterceptor(audit.NewMemorySink(), nil)
	engine := dispatch.NewEngine(dispatch.DefaultConfig(), classifier.New(nil, 0), reg, store, interceptor)

	return New(engine, store, "127.0.0.1:0"), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleTurn(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/turns", map[string]any{
		"session_id": "s1",
		"message":    "hol a rendelésem? 10042",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.CategoryOrderStatus, result.CategoryUsed)
	assert.NotEmpty(t, result.ResponseText)
	assert.False(t, result.Escalated)
}

func TestHandleTurn_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"empty message", map[string]any{"session_id": "s1", "message": "   "}},
		{"empty session", map[string]any{"session_id": "", "message": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/turns", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/turns", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetSession(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/turns", map[string]any{
		"session_id": "s1",
		"message":    "how much is the wireless mouse?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/v1/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary sessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "s1", summary.SessionID)
	assert.Equal(t, types.CategoryProductLookup, summary.ActiveCategory)
	assert.Equal(t, 2, summary.TurnCount, "one user turn plus one assistant turn")
	assert.Equal(t, 0, summary.ErrorCount)
}

func TestHandleGetSession_UnknownIsFreshDefault(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/sessions/never-seen", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary sessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "never-seen", summary.SessionID)
	assert.Equal(t, 0, summary.TurnCount)
}

func TestHandlePutConsent_GatesPromotions(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	// Without marketing consent the promotions intent lands on general.
	rec := doJSON(t, handler, http.MethodPost, "/v1/turns", map[string]any{
		"session_id": "s1",
		"message":    "any discount or coupon today?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var result types.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.CategoryGeneral, result.CategoryUsed)

	rec = doJSON(t, handler, http.MethodPut, "/v1/sessions/s1/consent", map[string]any{
		"flag": "marketing", "granted": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/turns", map[string]any{
		"session_id": "s1",
		"message":    "any discount or coupon today?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.CategoryPromotions, result.CategoryUsed)

	rec = doJSON(t, handler, http.MethodGet, "/v1/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary sessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Contains(t, summary.ConsentFlags, "marketing")
}

func TestHandlePutConsent_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/v1/sessions/s1/consent", map[string]any{
		"flag": "  ", "granted": true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"), "generated when the caller sends none")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}

func TestSessionsStayIsolatedAcrossRequests(t *testing.T) {
	srv, store := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/turns", map[string]any{
			"session_id": fmt.Sprintf("s%d", i),
			"message":    "hol a rendelésem?",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	for i := 0; i < 3; i++ {
		state := store.Load(httptest.NewRequest(http.MethodGet, "/", nil).Context(), fmt.Sprintf("s%d", i))
		assert.Len(t, state.TurnHistory, 2)
	}
}
