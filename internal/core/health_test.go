package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpipe/internal/types"
)

func runHealth(t *testing.T, probes ...HealthProbe) (int, healthResponse) {
	t.Helper()
	srv, err := NewServer(types.NopLogger{})
	require.NoError(t, err)
	srv.HealthProbes = probes

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func healthy(name string) HealthProbe {
	return NewProbe(name, func(context.Context) error { return nil })
}

func TestHandleHealth_NoProbes(t *testing.T) {
	code, resp := runHealth(t)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Empty(t, resp.Components)
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	code, resp := runHealth(t, healthy("database"), healthy("transport"))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "healthy", resp.Components["transport"].Status)
}

func TestHandleHealth_OneFailing(t *testing.T) {
	down := NewProbe("transport", func(context.Context) error { return errors.New("not connected") })

	code, resp := runHealth(t, healthy("database"), down)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, componentStatus{Status: "unhealthy", Message: "not connected"}, resp.Components["transport"])
}

func TestHandleHealth_SlowProbeTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := NewProbe("database", func(ctx context.Context) error {
		<-release
		return nil
	})

	start := time.Now()
	code, resp := runHealth(t, slow)

	assert.Less(t, time.Since(start), healthCheckTimeout+time.Second)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "health check timed out", resp.Components["database"].Message)
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	boom := NewProbe("database", func(context.Context) error { panic("pool is nil") })

	code, resp := runHealth(t, boom)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Components["database"].Message, "pool is nil")
}
