package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/collab/internal/api/middleware"
	"github.com/eldtechnologies/collab/internal/codec"
	"github.com/eldtechnologies/collab/internal/collab"
	"github.com/eldtechnologies/collab/internal/fanout"
	"github.com/eldtechnologies/collab/internal/handlers"
	"github.com/eldtechnologies/collab/internal/models"
	"github.com/eldtechnologies/collab/internal/store"
	"github.com/eldtechnologies/collab/internal/transport"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := store.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hub := fanout.NewHub(codec.JSON{}, nil, "test", zerolog.Nop())
	engine := collab.New(collab.DefaultConfig(), hub, st)

	h := handlers.NewHandler(engine, transport.NewServer(engine, zerolog.Nop()),
		map[string]handlers.Pinger{"redis": st}, "test-1", zerolog.Nop())
	limiter := middleware.NewRateLimiter(st.Client(), zerolog.Nop(), middleware.RateLimiterConfig{})

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), h, limiter))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, user string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderTenant, "acme")
		req.Header.Set(middleware.HeaderUser, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPublicRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp = do(t, http.MethodGet, srv.URL+"/api", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "collab_http_requests_total")
}

func TestIdentityRequired(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/rooms", "agent-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitHeaders(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/rooms", "agent-1", map[string]any{
		"room_type":   "team",
		"name":        "Weekly pipeline",
		"max_members": 5,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "29", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", middleware.HeaderTenant)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestWebsocketThroughMiddleware(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/rooms", "agent-1", map[string]any{
		"room_type":   "tour",
		"name":        "Open house",
		"max_members": 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var room models.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))

	header := http.Header{}
	header.Set(middleware.HeaderTenant, "acme")
	header.Set(middleware.HeaderUser, "agent-2")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + string(room.ID) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	readUntil(t, conn, models.EventConnectionEstablished)

	// A message posted over HTTP reaches the socket.
	resp = do(t, http.MethodPost, srv.URL+"/rooms/"+string(room.ID)+"/messages", "agent-1", map[string]any{
		"content": "keys are in the lockbox",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := readUntil(t, conn, models.EventCollaborationMessage)
	assert.Contains(t, string(data), "keys are in the lockbox")
}

// readUntil returns the raw frame of the first event of type typ, skipping
// system messages and history.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev struct {
			Type string `json:"event_type"`
		}
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == typ && (typ != models.EventCollaborationMessage || !strings.Contains(string(data), `"message_type":"system"`)) {
			return data
		}
	}
}
