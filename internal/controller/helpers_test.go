package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{
			name:         "simple map",
			status:       http.StatusOK,
			payload:      map[string]string{"message": "hello"},
			expectedBody: `{"message":"hello"}`,
		},
		{
			name:         "error response",
			status:       http.StatusBadRequest,
			payload:      ErrorResponse{Error: "bad request", Code: "invalid_input"},
			expectedBody: `{"error":"bad request","code":"invalid_input"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()

	writeError(w, domainErrors.NewValidationError("quantity", "must be positive"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "validation_error", response.Code)
	assert.Contains(t, response.Error, "quantity")
}

func TestWriteError_Mappings(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"transaction not found", domainErrors.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
		{"wrapped payment not found", fmt.Errorf("load: %w", domainErrors.ErrPaymentNotFound), http.StatusNotFound, "not_found"},
		{"ownership mismatch", domainErrors.ErrOwnershipMismatch, http.StatusForbidden, "ownership_mismatch"},
		{"state error", domainErrors.NewStateError("transaction", "submitted", "Only draft transactions can be submitted"), http.StatusConflict, "invalid_state_transition"},
		{"not submitted", domainErrors.ErrTransactionNotSubmitted, http.StatusConflict, "transaction_not_submitted"},
		{"optimistic lock", domainErrors.ErrOptimisticLockFailed, http.StatusConflict, "conflict"},
		{"infrastructure", domainErrors.NewInfrastructureError("get transaction", errors.New("connection refused")), http.StatusServiceUnavailable, "unavailable"},
		{"unknown", errors.New("unexpected"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedCode, response.Code)
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domainErrors.ErrOptimisticLockFailed, "concurrent modification, please retry"},
		{domainErrors.NewInfrastructureError("ping", errors.New("dial tcp 10.0.0.1:5432")), "service temporarily unavailable"},
		{errors.New("pq: secret detail"), "internal server error"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeError(w, tt.err)

		var response ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, tt.want, response.Error)
	}
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"valid", `{"product_id":"5f0c3a4e-6b1e-4d1e-9a43-1f6f2d7f9a10","product_name":"Mouse","quantity":2,"unit_price":"15.99"}`, ""},
		{"invalid json", `{invalid`, "body"},
		{"empty body", ``, "body"},
		{"missing name", `{"product_id":"5f0c3a4e-6b1e-4d1e-9a43-1f6f2d7f9a10","quantity":2,"unit_price":"15.99"}`, "ProductName"},
		{"bad uuid", `{"product_id":"nope","product_name":"Mouse","quantity":2,"unit_price":"15.99"}`, "ProductID"},
		{"zero quantity", `{"product_id":"5f0c3a4e-6b1e-4d1e-9a43-1f6f2d7f9a10","product_name":"Mouse","quantity":0,"unit_price":"15.99"}`, "Quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))

			var dst AddItemRequest
			err := decodeAndValidate(req, &dst)

			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, "15.99", dst.UnitPrice.String())
				return
			}
			var validationErr *domainErrors.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.wantField, validationErr.Field)
		})
	}
}

func TestDecodeAndValidate_NumericPrice(t *testing.T) {
	body := `{"product_id":"5f0c3a4e-6b1e-4d1e-9a43-1f6f2d7f9a10","product_name":"Mouse","quantity":1,"unit_price":29.99}`
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader([]byte(body)))

	var dst AddItemRequest
	require.NoError(t, decodeAndValidate(req, &dst))
	assert.Equal(t, "29.99", dst.UnitPrice.String())
}
