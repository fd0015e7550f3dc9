package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteErrorRendersAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	base := NewAppError("INVALID_CONFIG", "pricing config is invalid", http.StatusUnprocessableEntity, errors.New("bad"))
	WriteError(rr, fmt.Errorf("wrapped: %w", base.WithDetails([]string{"currency"})))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":{"code":"INVALID_CONFIG","message":"pricing config is invalid","details":["currency"]}}`, rr.Body.String())
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}

func TestAppErrorStatusDefault(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, (&AppError{Code: "X"}).Status())
	var nilErr *AppError
	require.Equal(t, http.StatusInternalServerError, nilErr.Status())
	require.True(t, IsAppError(fmt.Errorf("ctx: %w", NewAppError("X", "x", http.StatusTeapot, nil))))
}

func TestDataEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	Data(rr, http.StatusOK, map[string]bool{"valid": true})

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":{"valid":true}}`, rr.Body.String())
}
