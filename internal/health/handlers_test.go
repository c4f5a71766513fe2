package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maison-parfum/internal/health"
)

type stubChecker struct {
	dbErr    error
	redisErr error
}

func (s stubChecker) PingDB(context.Context, time.Duration) error    { return s.dbErr }
func (s stubChecker) PingRedis(context.Context, time.Duration) error { return s.redisErr }

func ready(t *testing.T, h health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return rr.Code, status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReady(t *testing.T) {
	code, status := ready(t, health.Handler{Checker: stubChecker{}, DBTimeout: 50 * time.Millisecond})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"db": "ok", "redis": "ok"}, status)

	code, status = ready(t, health.Handler{Checker: stubChecker{redisErr: errors.New("redis down")}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "redis down", status["redis"])
	require.Equal(t, "ok", status["db"])

	code, _ = ready(t, health.Handler{})
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadinessAfterShutdown(t *testing.T) {
	h := health.Handler{Checker: stubChecker{}}
	t.Cleanup(func() { health.SetReady(true) })

	health.SetReady(true)
	code, _ := ready(t, h)
	require.Equal(t, http.StatusOK, code)

	health.SetReady(false)
	code, status := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "shutting_down", status["status"])
}
