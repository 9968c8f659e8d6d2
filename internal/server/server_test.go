package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hongminglow/onboard-be/internal/auth"
	"github.com/hongminglow/onboard-be/internal/config"
	"github.com/hongminglow/onboard-be/internal/registration"
	"github.com/hongminglow/onboard-be/internal/storage/storagetest"
)

func newTestRouter(t *testing.T, exposeOTP bool) http.Handler {
	t.Helper()
	cfg := config.Config{
		Env:         "test",
		Port:        "0",
		CORSOrigins: []string{"http://localhost:3000"},
		OTP:         config.OTPConfig{Code: "123456", TTL: 10 * time.Minute, ExposeInResponse: exposeOTP},
	}
	tokens := auth.NewTokenManager("server-test-secret", "onboard-test", time.Hour)
	svc := registration.NewService(storagetest.NewMemoryStore(), nil, nil, tokens, registration.Options{
		OTPCode: cfg.OTP.Code,
		OTPTTL:  cfg.OTP.TTL,
	}, zap.NewNop())
	return NewRouter(cfg, svc, zap.NewNop())
}

func jsonBody(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	router := newTestRouter(t, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Can't find /does-not-exist on this server", body["message"])
}

func TestWrongMethodReturns405(t *testing.T) {
	router := newTestRouter(t, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method not allowed", decodeBody(t, rec)["message"])
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["uptime"])
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	router := newTestRouter(t, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOTPHiddenWhenNotExposed(t *testing.T) {
	for _, expose := range []bool{true, false} {
		router := newTestRouter(t, expose)

		req := httptest.NewRequest(http.MethodPost, "/initiate-phone-verification",
			jsonBody(t, map[string]string{"phoneNumber": "+2348000000009"}))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		if expose {
			assert.Equal(t, "123456", body["otp"])
		} else {
			assert.NotContains(t, body, "otp")
		}
	}
}
