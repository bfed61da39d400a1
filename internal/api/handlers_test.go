package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bankfeed-reconciliation-service/internal/engine"
	"bankfeed-reconciliation-service/internal/models"
	"bankfeed-reconciliation-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apiDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// newTestServer seeds a memory store with one line that auto-matches its
// receipt and one line whose only candidate scores below the threshold.
func newTestServer(t *testing.T) (http.Handler, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	memStore := store.NewMemoryStore()

	lines := []*models.BankFeedLine{
		{
			ID:              "L-strong",
			BankAccountID:   "ACC-1",
			Currency:        "THB",
			TransactionDate: apiDate,
			Description:     "INV-2048 Client Payment",
			Amount:          decimal.RequireFromString("-1500.00"),
			Status:          models.StatusUnmatched,
		},
		{
			ID:              "L-weak",
			BankAccountID:   "ACC-1",
			Currency:        "THB",
			TransactionDate: apiDate,
			Description:     "misc debit",
			Amount:          decimal.RequireFromString("-300.00"),
			Status:          models.StatusUnmatched,
		},
	}
	records := []*models.SystemRecord{
		{
			Type:      models.RecordTypeReceipt,
			ID:        "R-strong",
			Amount:    decimal.RequireFromString("1500.00"),
			Currency:  "THB",
			Date:      apiDate,
			Reference: "INV-2048",
		},
		{
			Type:     models.RecordTypeExpense,
			ID:       "R-weak",
			Amount:   decimal.RequireFromString("300.00"),
			Currency: "THB",
			Date:     apiDate.AddDate(0, 0, 9),
		},
	}

	for _, line := range lines {
		require.NoError(t, memStore.SaveLine(ctx, line))
	}
	for _, record := range records {
		require.NoError(t, memStore.SaveRecord(ctx, record))
	}

	service := engine.NewMatchingService(memStore, nil, nil)
	server := NewServer(nil, service, memStore, nil)
	return server.Handler(), memStore
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "ok", decodeBody(t, recorder)["status"])
}

func TestAutoMatchEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodPost, "/api/automatch", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.EqualValues(t, 1, body["persisted"])

	recorder = doRequest(t, handler, http.MethodGet, "/api/lines/L-strong", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, string(models.StatusMatched), decodeBody(t, recorder)["status"])

	recorder = doRequest(t, handler, http.MethodGet, "/api/lines/L-weak", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, string(models.StatusUnmatched), decodeBody(t, recorder)["status"])
}

func TestListLines(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodGet, "/api/lines", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.EqualValues(t, 2, decodeBody(t, recorder)["count"])
}

func TestGetLineNotFound(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodGet, "/api/lines/nope", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestSuggestionsEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodGet, "/api/lines/L-weak/suggestions", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	// R-weak matches on exact amount (40), R-strong only shares the booking
	// date (20); both are candidates, strongest first.
	body := decodeBody(t, recorder)
	suggestions, ok := body["suggestions"].([]any)
	require.True(t, ok)
	require.Len(t, suggestions, 2)

	first := suggestions[0].(map[string]any)
	record := first["record"].(map[string]any)
	assert.Equal(t, "R-weak", record["id"])
	assert.EqualValues(t, 40, first["score"])
}

func TestQuickMatchEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodPost, "/api/lines/L-strong/quickmatch", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	assert.Equal(t, true, body["matched"])
	require.NotNil(t, body["match"])

	// The weak line has a candidate but nothing clears the threshold.
	recorder = doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/quickmatch", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body = decodeBody(t, recorder)
	assert.Equal(t, false, body["matched"])
	require.NotNil(t, body["suggestions"])

	// Re-matching an already matched line conflicts.
	recorder = doRequest(t, handler, http.MethodPost, "/api/lines/L-strong/quickmatch", nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestAcceptSuggestion(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/matches", map[string]any{
		"record_type": "expense",
		"record_id":   "R-weak",
		"score":       40,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, "L-weak", body["line_id"])
	assert.Equal(t, string(models.MethodManual), body["method"])

	recorder = doRequest(t, handler, http.MethodGet, "/api/lines/L-weak", nil)
	assert.Equal(t, string(models.StatusMatched), decodeBody(t, recorder)["status"])
}

func TestAcceptSuggestionBadRequests(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/matches", map[string]any{
		"record_id": "R-weak",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code, "record_type is required")

	recorder = doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/matches", map[string]any{
		"record_type": "voucher",
		"record_id":   "R-weak",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code, "unknown record type")

	recorder = doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/matches", map[string]any{
		"record_type": "expense",
		"record_id":   "missing",
	})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestUnmatchEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodPost, "/api/lines/L-strong/quickmatch", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, handler, http.MethodDelete, "/api/lines/L-strong/match", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, handler, http.MethodGet, "/api/lines/L-strong", nil)
	assert.Equal(t, string(models.StatusUnmatched), decodeBody(t, recorder)["status"])

	// Nothing left to unmatch.
	recorder = doRequest(t, handler, http.MethodDelete, "/api/lines/L-strong/match", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestLineLifecycleEndpoints(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/ignore", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/restore", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/missing-record", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, handler, http.MethodGet, "/api/lines/L-weak", nil)
	assert.Equal(t, string(models.StatusMissingRecord), decodeBody(t, recorder)["status"])

	recorder = doRequest(t, handler, http.MethodDelete, "/api/lines/L-weak", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	// Restoring a line that is neither ignored nor deleted conflicts.
	recorder = doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/restore", nil)
	require.Equal(t, http.StatusOK, recorder.Code, "deleted lines can be restored")

	recorder = doRequest(t, handler, http.MethodPost, "/api/lines/L-weak/restore", nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestIgnoreMatchedLineConflicts(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodPost, "/api/lines/L-strong/quickmatch", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, handler, http.MethodPost, "/api/lines/L-strong/ignore", nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	recorder = doRequest(t, handler, http.MethodDelete, "/api/lines/L-strong", nil)
	assert.Equal(t, http.StatusConflict, recorder.Code, "active match blocks deletion")
}

func TestUnmatchedRecordsEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	recorder := doRequest(t, handler, http.MethodPost, "/api/automatch", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, handler, http.MethodGet, "/api/records/unmatched", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.EqualValues(t, 1, body["count"])
	records := body["records"].([]any)
	record := records[0].(map[string]any)
	assert.Equal(t, "R-weak", record["id"])
}
