package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/collab/internal/api/middleware"
	"github.com/eldtechnologies/collab/internal/codec"
	"github.com/eldtechnologies/collab/internal/collab"
	"github.com/eldtechnologies/collab/internal/fanout"
	"github.com/eldtechnologies/collab/internal/models"
	"github.com/eldtechnologies/collab/internal/store"
)

type recordingServer struct {
	tenant models.TenantID
	req    models.JoinRoomRequest
	called bool
}

func (s *recordingServer) Serve(w http.ResponseWriter, _ *http.Request, tenantID models.TenantID, req models.JoinRoomRequest) {
	s.called = true
	s.tenant = tenantID
	s.req = req
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

type testAPI struct {
	engine *collab.Engine
	ws     *recordingServer
	router chi.Router
	redis  *miniredis.Miniredis
}

func newTestAPI(t *testing.T, checks map[string]Pinger) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := store.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hub := fanout.NewHub(codec.JSON{}, nil, "test", zerolog.Nop())
	engine := collab.New(collab.DefaultConfig(), hub, st)
	ws := &recordingServer{}

	if checks == nil {
		checks = map[string]Pinger{"redis": st}
	}
	h := NewHandler(engine, ws, checks, "test-1", zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/api", h.Root)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)
		r.Get("/stats", h.Stats)
		r.Put("/presence", h.UpdatePresence)
		r.Post("/rooms", h.CreateRoom)
		r.Get("/rooms", h.ListRooms)
		r.Get("/rooms/{id}", h.GetRoom)
		r.Delete("/rooms/{id}", h.ArchiveRoom)
		r.Get("/rooms/{id}/ws", h.JoinRoom)
		r.Post("/rooms/{id}/messages", h.PostMessage)
		r.Get("/rooms/{id}/messages", h.GetRoomMessages)
		r.Post("/rooms/{id}/typing", h.Typing)
		r.Post("/rooms/{id}/leave", h.LeaveRoom)
		r.Get("/rooms/{id}/presence", h.GetRoomPresence)
	})

	return &testAPI{engine: engine, ws: ws, router: r, redis: mr}
}

func (a *testAPI) do(t *testing.T, method, path, tenant, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(middleware.HeaderTenant, tenant)
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUser, user)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) createRoom(t *testing.T, body CreateRoomRequest) *models.Room {
	t.Helper()
	w := a.do(t, http.MethodPost, "/rooms", "t1", "u1", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var room models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	return &room
}

func TestCreateRoom(t *testing.T) {
	tests := []struct {
		name       string
		body       CreateRoomRequest
		wantStatus int
	}{
		{"valid", CreateRoomRequest{Name: "Listings", Type: models.RoomTypeTeam}, http.StatusCreated},
		{"default type", CreateRoomRequest{Name: "Tours"}, http.StatusCreated},
		{"missing name", CreateRoomRequest{Name: "   "}, http.StatusBadRequest},
		{"bad type", CreateRoomRequest{Name: "x", Type: "party"}, http.StatusBadRequest},
		{"short key", CreateRoomRequest{Name: "Private", Key: "short"}, http.StatusBadRequest},
		{"too many members", CreateRoomRequest{Name: "Tiny", MaxMembers: 1, InitialMembers: []models.UserID{"a", "b"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t, nil)
			w := a.do(t, http.MethodPost, "/rooms", "t1", "u1", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestCreateRoomUsesCallerIdentity(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "  Open\x00 house  "})

	assert.Equal(t, models.TenantID("t1"), room.TenantID)
	assert.Equal(t, models.UserID("u1"), room.CreatedBy)
	assert.Equal(t, "Open house", room.Name)
}

func TestIdentityRequired(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do(t, http.MethodGet, "/rooms", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodGet, "/rooms", "t1", "bad user!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomsAreTenantScoped(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "Listings"})

	w := a.do(t, http.MethodGet, "/rooms/"+string(room.ID), "t2", "u9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/rooms", "t2", "u9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list RoomListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Total)
	assert.NotNil(t, list.Rooms)

	w = a.do(t, http.MethodGet, "/rooms", "t1", "u1", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
}

func TestArchiveRoomPermissions(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "Listings"})
	path := "/rooms/" + string(room.ID)

	w := a.do(t, http.MethodDelete, path, "t1", "u2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodDelete, path, "t1", "u1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, path, "t1", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostMessageAndHistory(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "Listings"})
	path := "/rooms/" + string(room.ID) + "/messages"

	for i := 0; i < 5; i++ {
		w := a.do(t, http.MethodPost, path, "t1", "u1", PostMessageRequest{Content: fmt.Sprintf("m%d", i)})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var conf models.DeliveryConfirmation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conf))
		assert.Equal(t, room.ID, conf.RoomID)
	}

	w := a.do(t, http.MethodGet, path+"?limit=2", "t1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page RoomMessagesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "m3", page.Messages[0].Content)
	assert.Equal(t, "m4", page.Messages[1].Content)

	w = a.do(t, http.MethodGet, path+"?limit=10&before="+string(page.Messages[0].ID), "t1", "u1", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Messages, 3)
	assert.False(t, page.HasMore)
	assert.Equal(t, "m0", page.Messages[0].Content)

	w = a.do(t, http.MethodGet, path+"?limit=2&after="+string(page.Messages[0].ID), "t1", "u1", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "m1", page.Messages[0].Content)

	w = a.do(t, http.MethodGet, path+"?types=alert", "t1", "u1", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Empty(t, page.Messages)

	w = a.do(t, http.MethodGet, path+"?before=not-a-ulid", "t1", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryTypeFilterHasMore(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "Listings"})
	path := "/rooms/" + string(room.ID) + "/messages"

	for i := 0; i < 3; i++ {
		w := a.do(t, http.MethodPost, path, "t1", "u1", PostMessageRequest{Type: models.MessageAlert, Content: fmt.Sprintf("a%d", i)})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	for i := 0; i < 10; i++ {
		w := a.do(t, http.MethodPost, path, "t1", "u1", PostMessageRequest{Content: fmt.Sprintf("m%d", i)})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := a.do(t, http.MethodGet, path+"?limit=2&types=alert", "t1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page RoomMessagesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "a1", page.Messages[0].Content)
	assert.Equal(t, "a2", page.Messages[1].Content)

	w = a.do(t, http.MethodGet, path+"?limit=2&types=alert&before="+string(page.Messages[0].ID), "t1", "u1", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, "a0", page.Messages[0].Content)
}

func TestPostMessageValidation(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "Listings"})

	w := a.do(t, http.MethodPost, "/rooms/"+string(room.ID)+"/messages", "t1", "u1", PostMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/rooms/missing/messages", "t1", "u1", PostMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPrivateRoomRequiresMembership(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{
		Name:           "Negotiation",
		Key:            "correct horse battery staple",
		InitialMembers: []models.UserID{"u1"},
	})
	assert.True(t, room.HasKey)
	path := "/rooms/" + string(room.ID) + "/messages"

	w := a.do(t, http.MethodPost, path, "t1", "u2", PostMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, path, "t1", "u1", PostMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodGet, "/rooms/"+string(room.ID)+"/ws", "t1", "u2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, a.ws.called)
}

func TestJoinRoomHandsOffToSessionServer(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "Listings"})

	w := a.do(t, http.MethodGet, "/rooms/"+string(room.ID)+"/ws?display_name=Dana&role=admin", "t1", "u2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, a.ws.called)

	a.do(t, http.MethodGet, "/rooms/"+string(room.ID)+"/ws?display_name=Dana&role=moderator", "t1", "u2", nil)
	require.True(t, a.ws.called)
	assert.Equal(t, models.TenantID("t1"), a.ws.tenant)
	assert.Equal(t, models.JoinRoomRequest{
		RoomID:      room.ID,
		UserID:      "u2",
		DisplayName: "Dana",
		Role:        models.RoleModerator,
	}, a.ws.req)
}

func TestTypingAndLeave(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "Listings"})

	w := a.do(t, http.MethodPost, "/rooms/"+string(room.ID)+"/typing", "t1", "u1", TypingRequest{IsTyping: true})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodPost, "/rooms/"+string(room.ID)+"/leave", "t1", "u1", LeaveRoomRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/rooms/"+string(room.ID)+"/leave", "t1", "u1", LeaveRoomRequest{ConnectionID: "nope"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp LeaveRoomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Left)
}

type discardSession struct{}

func (discardSession) Send(fanout.Frame) error { return nil }

func TestLeaveRejectsForeignConnection(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "Listings"})

	connID, err := a.engine.JoinRoom(context.Background(), discardSession{}, models.JoinRoomRequest{
		RoomID: room.ID,
		UserID: "victim",
	})
	require.NoError(t, err)
	path := "/rooms/" + string(room.ID) + "/leave"

	w := a.do(t, http.MethodPost, path, "t1", "intruder", LeaveRoomRequest{ConnectionID: connID})
	require.Equal(t, http.StatusOK, w.Code)
	var resp LeaveRoomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Left)

	r, ok := a.engine.GetRoom(room.ID)
	require.True(t, ok)
	_, stillMember := r.Member("victim")
	assert.True(t, stillMember)

	w = a.do(t, http.MethodPost, path, "t1", "victim", LeaveRoomRequest{ConnectionID: connID})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Left)
}

func TestPresence(t *testing.T) {
	a := newTestAPI(t, nil)
	room := a.createRoom(t, CreateRoomRequest{Name: "Listings", InitialMembers: []models.UserID{"u1", "u2"}})

	w := a.do(t, http.MethodPut, "/presence", "t1", "u2", UpdatePresenceRequest{Status: models.StatusBusy, StatusMessage: "on a tour"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodPut, "/presence", "t1", "u2", UpdatePresenceRequest{Status: "asleep"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/rooms/"+string(room.ID)+"/presence", "t1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp RoomPresenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Presence, 2)

	byUser := map[models.UserID]models.Presence{}
	for _, p := range resp.Presence {
		byUser[p.UserID] = p
	}
	assert.Equal(t, models.StatusBusy, byUser["u2"].Status)
	assert.Equal(t, "on a tour", byUser["u2"].StatusMessage)
	assert.Equal(t, models.StatusOffline, byUser["u1"].Status)
}

func TestStats(t *testing.T) {
	a := newTestAPI(t, nil)
	a.createRoom(t, CreateRoomRequest{Name: "Listings"})

	w := a.do(t, http.MethodGet, "/stats", "t1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ActiveRooms)
	assert.Equal(t, 50.0, resp.Targets.LatencyMs)
	assert.Equal(t, 10000.0, resp.Targets.ThroughputPerSecond)
	assert.True(t, resp.Health.StoreHealthy)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, nil)
	w := a.do(t, http.MethodGet, "/health", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test-1", resp.Instance)
	assert.Equal(t, "pass", resp.Checks["redis"].Status)

	a = newTestAPI(t, map[string]Pinger{"catalog": failingPinger{}})
	w = a.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "fail", resp.Checks["catalog"].Status)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Dana", sanitizeName("  Da\tna \n"))
	long := bytes.Repeat([]byte("é"), 150)
	assert.Len(t, []rune(sanitizeName(string(long))), 100)
}
