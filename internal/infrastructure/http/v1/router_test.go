package v1_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/projection"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/pkg/logger"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)

	store := memory.New()
	window := ledger.DefaultWindow()
	service := ledger.NewService(store, store, store, store, window)
	projector := projection.NewProjector(store, store, store, store, window)

	return v1.NewRouter(v1.RouterConfig{
		Logger:    log,
		Products:  store,
		Service:   service,
		Projector: projector,
		TxLog:     store,
		Retry:     ledger.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), "body: %s", w.Body.String())
	}
	return w, decoded
}

func createProduct(t *testing.T, router http.Handler) string {
	t.Helper()
	w, body := doJSON(t, router, http.MethodPost, "/api/v1/products", `{"name":"widget"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	return body["id"].(string)
}

func TestPurchaseLifecycle(t *testing.T) {
	router := newTestRouter(t)
	productID := createProduct(t, router)
	today := time.Now().UTC().Format(time.RFC3339)

	// Record a purchase.
	w, body := doJSON(t, router, http.MethodPost,
		"/api/v1/products/"+productID+"/purchases",
		fmt.Sprintf(`{"quantity":10,"effectiveDate":%q,"idempotencyKey":"k1","unitCost":"2.50","vendor":"acme"}`, today))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 10, body["stockAfter"])
	assert.Equal(t, "25.00", body["totalCost"])

	// Product reflects the new stock.
	w, body = doJSON(t, router, http.MethodGet, "/api/v1/products/"+productID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 10, body["currentStock"])

	// Ledger holds one entry.
	w, body = doJSON(t, router, http.MethodGet, "/api/v1/products/"+productID+"/ledger", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	// Stock snapshot agrees with the stored figure.
	w, body = doJSON(t, router, http.MethodGet, "/api/v1/products/"+productID+"/stock", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["drift"])
	assert.EqualValues(t, 10, body["derivedStock"])

	// Audit trail records the mutation.
	w, body = doJSON(t, router, http.MethodGet, "/api/v1/products/"+productID+"/transactions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestPurchaseIdempotentReplay(t *testing.T) {
	router := newTestRouter(t)
	productID := createProduct(t, router)
	today := time.Now().UTC().Format(time.RFC3339)
	payload := fmt.Sprintf(`{"quantity":10,"effectiveDate":%q,"idempotencyKey":"same"}`, today)

	w1, body1 := doJSON(t, router, http.MethodPost, "/api/v1/products/"+productID+"/purchases", payload)
	require.Equal(t, http.StatusCreated, w1.Code)

	w2, body2 := doJSON(t, router, http.MethodPost, "/api/v1/products/"+productID+"/purchases", payload)
	require.Equal(t, http.StatusCreated, w2.Code)
	assert.Equal(t, body1["id"], body2["id"], "replay must return the original entry")

	_, body := doJSON(t, router, http.MethodGet, "/api/v1/products/"+productID, "")
	assert.EqualValues(t, 10, body["currentStock"])
}

func TestPurchaseValidationErrors(t *testing.T) {
	router := newTestRouter(t)
	productID := createProduct(t, router)
	today := time.Now().UTC().Format(time.RFC3339)

	tests := []struct {
		name string
		body string
	}{
		{"zero quantity", fmt.Sprintf(`{"quantity":0,"effectiveDate":%q,"idempotencyKey":"k"}`, today)},
		{"negative quantity", fmt.Sprintf(`{"quantity":-5,"effectiveDate":%q,"idempotencyKey":"k"}`, today)},
		{"missing key", fmt.Sprintf(`{"quantity":5,"effectiveDate":%q}`, today)},
		{"malformed cost", fmt.Sprintf(`{"quantity":5,"effectiveDate":%q,"idempotencyKey":"k","unitCost":"abc"}`, today)},
		{"not json", `quantity=5`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := doJSON(t, router, http.MethodPost, "/api/v1/products/"+productID+"/purchases", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", body["code"])
		})
	}
}

func TestUnknownProductRoutes(t *testing.T) {
	router := newTestRouter(t)
	missing := "018f0000-0000-7000-8000-000000000042"

	for _, path := range []string{
		"/api/v1/products/" + missing,
		"/api/v1/products/" + missing + "/ledger",
		"/api/v1/products/" + missing + "/stock",
		"/api/v1/products/" + missing + "/transactions",
	} {
		w, body := doJSON(t, router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "NOT_FOUND", body["code"], path)
	}

	w, body := doJSON(t, router, http.MethodGet, "/api/v1/products/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	// Embedded store mode has no database dependency.
	w, body = doJSON(t, router, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestRequestIDPropagation(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}
