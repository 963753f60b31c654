package httpgw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/protocol"
	"github.com/OmarEhab007/wiregate/internal/supervisor"
)

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	return map[string]any{}, nil
}

func newTestServer(t *testing.T, cfg Config) (*Server, *supervisor.Supervisor) {
	t.Helper()
	sup := supervisor.New(noopDispatcher{}, connection.DefaultConfig(), nil)
	cfg.Version = "1.0.0"
	return New(sup, cfg), sup
}

func TestHealthz_AllHealthy(t *testing.T) {
	s, _ := newTestServer(t, Config{
		Pings: map[string]PingFunc{
			"store": func(ctx context.Context) error { return nil },
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Services["store"].Status)
}

func TestHealthz_DegradedWhenAServiceFails(t *testing.T) {
	s, _ := newTestServer(t, Config{
		Pings: map[string]PingFunc{
			"store":       func(ctx context.Context) error { return nil },
			"rateLimiter": func(ctx context.Context) error { return errors.New("connection refused") },
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unhealthy", body.Services["rateLimiter"].Status)
	assert.NotEmpty(t, body.Services["rateLimiter"].Error)
}

func TestStats_ReportsConnectionCount(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1.0.0", body["version"])
	assert.Equal(t, float64(0), body["connections"])
}

func TestUpgrade_AcceptsConnectionAndSendsWelcome(t *testing.T) {
	s, _ := newTestServer(t, Config{Path: "/ws"})
	server := httptest.NewServer(s)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "welcome", welcome.Type)
}

func TestUpgrade_RefusedWithCloseCode1001WhenDraining(t *testing.T) {
	sup := supervisor.New(noopDispatcher{}, connection.DefaultConfig(), nil)
	s := New(sup, Config{Path: "/ws", Version: "1.0.0"})
	server := httptest.NewServer(s)
	t.Cleanup(server.Close)

	go sup.Stop(supervisor.StopOptions{})
	time.Sleep(20 * time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "upgrade itself should still succeed before the refusal close frame")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %T: %v", err, err)
	assert.Equal(t, 1001, closeErr.Code)
}

func TestCORSMiddleware_AllowsConfiguredOrigin(t *testing.T) {
	s, _ := newTestServer(t, Config{AllowedOrigins: []string{"https://example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_RejectsUnlistedOrigin(t *testing.T) {
	s, _ := newTestServer(t, Config{AllowedOrigins: []string{"https://example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
