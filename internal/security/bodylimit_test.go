package security

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const previewPath = "/api/v1/quotes/preview"

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestBodyLimitAllowsWithinLimit(t *testing.T) {
	body := `{"selection":{"addOns":["wax"]}}`
	var captured string
	handler := BodyLimit(int64(len(body)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = string(data)
		require.Equal(t, int64(len(body)), r.ContentLength)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, previewPath, strings.NewReader(body))
	req.ContentLength = -1
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, body, captured)
}

func TestBodyLimitRejectsOversized(t *testing.T) {
	cases := map[string]func() *http.Request{
		"streamed body": func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, previewPath, strings.NewReader(`{"config":{"currency":"EUR"}}`))
			req.ContentLength = -1
			return req
		},
		"declared length": func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, previewPath, strings.NewReader("{}"))
			req.ContentLength = 4096
			return req
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			handler := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("next handler must not run")
			}))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, build())
			require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
			require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
		})
	}
}

func TestBodyLimitReadFailure(t *testing.T) {
	handler := BodyLimit(64)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))
	req := httptest.NewRequest(http.MethodPost, previewPath, failingReader{})
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "BAD_REQUEST")
}

func TestBodyLimitDisabled(t *testing.T) {
	called := false
	handler := BodyLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, previewPath, strings.NewReader(strings.Repeat("x", 1024))))
	require.True(t, called)
}
