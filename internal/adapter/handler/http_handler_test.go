package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-engine/internal/core/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	checkout, _ := newTestCheckout(t)
	return NewRouter(NewHTTPHandler(checkout, zerolog.Nop()), "order-engine-test")
}

func doRequest(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) OrderHTTPResponse {
	t.Helper()
	var resp OrderHTTPResponse
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&resp))
	return resp
}

func TestHTTP_PlaceOrder(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/orders",
		`{"items":[{"product_number":1,"quantity":1}]}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeOrder(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Order)
	assert.Equal(t, "49999.00", resp.Order.Subtotal.String())
	assert.Equal(t, "2500.00", resp.Order.ShippingFee.String())
	assert.Equal(t, "52499.00", resp.Order.PaymentAmount.String())
	assert.Contains(t, w.Body.String(), `"payment_amount":"52499.00"`)

	w = doRequest(r, http.MethodGet, "/api/orders/"+resp.Order.OrderNumber, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, resp.Order.OrderNumber, decodeOrder(t, w).Order.OrderNumber)
}

func TestHTTP_IdempotencyKey(t *testing.T) {
	r := newTestRouter(t)
	body := `{"items":[{"product_number":2,"quantity":2}]}`
	headers := map[string]string{IdempotencyKeyHeader: "client-req-1"}

	first := doRequest(r, http.MethodPost, "/api/orders", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := doRequest(r, http.MethodPost, "/api/orders", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, decodeOrder(t, first).Order.OrderNumber, decodeOrder(t, second).Order.OrderNumber)
}

func TestHTTP_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed body", `{"items":`, http.StatusBadRequest, "invalid_request"},
		{"missing items", `{}`, http.StatusBadRequest, "invalid_request"},
		{"empty items", `{"items":[]}`, http.StatusBadRequest, "invalid_request"},
		{"quantity above limit", `{"items":[{"product_number":1,"quantity":1000}]}`, http.StatusBadRequest, "invalid_request"},
		{"unknown product", `{"items":[{"product_number":77,"quantity":1}]}`, http.StatusNotFound, "product_not_found"},
		{"sold out", `{"items":[{"product_number":1,"quantity":4}]}`, http.StatusConflict, "insufficient_stock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			w := doRequest(r, http.MethodPost, "/api/orders", tt.body, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var resp ErrorHTTPResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestHTTP_OrderNotFound(t *testing.T) {
	w := doRequest(newTestRouter(t), http.MethodGet, "/api/orders/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "order_not_found")
}

func TestHTTP_ShippingPolicyAndHealth(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/shipping-policy", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var policy domain.ShippingPolicy
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &policy))
	assert.Equal(t, "50000.00", policy.FreeShippingThreshold.String())
	assert.Equal(t, "2500.00", policy.Fee.String())

	w = doRequest(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, classify(assert.AnError).httpStatus)
	assert.Equal(t, "internal error", classify(assert.AnError).message)
	assert.Equal(t, http.StatusGatewayTimeout, classify(context.DeadlineExceeded).httpStatus)
	assert.Equal(t, http.StatusServiceUnavailable, classify(domain.ErrConflict).httpStatus)
	assert.Equal(t, http.StatusUnprocessableEntity, classify(domain.ErrIdempotencyKeyExpired).httpStatus)
	assert.Equal(t, http.StatusConflict, classify(domain.ErrDuplicateRequest).httpStatus)
}
