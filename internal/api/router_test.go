package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpm/internal/audit"
	"dpm/internal/db"
	"dpm/internal/provision"
)

func newTestRouter(t *testing.T, rps float64, burst int) http.Handler {
	t.Helper()

	logger := discardLogger()
	trail := audit.NewTrail(audit.NewSQLStore(db.OpenTestSQLite(t)), nil, logger)
	runner := provision.NewRunner(provision.NewOrchestrator(&stubOps{}, trail, logger), logger)
	return NewRouter(NewHandler(runner, trail, "", logger), RouterConfig{
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
		Logger:         logger,
	})
}

// The rate limiter must key on the socket address through the full
// middleware chain: forwarded-for headers are caller-controlled, and
// honoring them would hand every client a fresh limiter per header value.
func TestRateLimit_KeyedBySocketAddr(t *testing.T) {
	router := newTestRouter(t, 0.001, 1)

	do := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
		req.RemoteAddr = "203.0.113.7:4321"
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do(""))
	require.Equal(t, http.StatusTooManyRequests, do(""))

	// Rotating the header must not dodge the limit.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusTooManyRequests, do(fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Equal(t, http.StatusTooManyRequests, do("198.51.100.9, 10.0.0.1"))
}

// Distinct socket addresses still get independent limiters.
func TestRateLimit_PerClient(t *testing.T) {
	router := newTestRouter(t, 0.001, 1)

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("203.0.113.7:1111"))
	require.Equal(t, http.StatusTooManyRequests, do("203.0.113.7:2222"))
	assert.Equal(t, http.StatusOK, do("198.51.100.9:3333"))
}

// Health probes bypass the limiter entirely.
func TestRateLimit_HealthzExempt(t *testing.T) {
	router := newTestRouter(t, 0.001, 1)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.7:4321"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
