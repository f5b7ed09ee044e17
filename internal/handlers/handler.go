package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/collab/internal/api/middleware"
	"github.com/eldtechnologies/collab/internal/collab"
	"github.com/eldtechnologies/collab/internal/metrics"
	"github.com/eldtechnologies/collab/internal/models"
)

// Engine is the collaboration surface the HTTP API drives.
type Engine interface {
	CreateRoom(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error)
	GetRoom(id models.RoomID) (*models.Room, bool)
	ListRooms(tenantID models.TenantID) []*models.Room
	ArchiveRoom(ctx context.Context, id models.RoomID) bool
	LeaveRoomAs(ctx context.Context, userID models.UserID, connID models.ConnectionID, roomID models.RoomID) bool
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.DeliveryConfirmation, error)
	SendTypingIndicator(ctx context.Context, ind models.TypingIndicator) error
	History(ctx context.Context, q models.HistoryQuery) ([]models.Message, error)
	UpdatePresence(ctx context.Context, req models.UpdatePresenceRequest) error
	GetRoomPresence(ctx context.Context, roomID models.RoomID) ([]models.Presence, error)
	Stats() metrics.Snapshot
	Health(ctx context.Context) collab.Health
}

// SessionServer upgrades a request into a room session.
type SessionServer interface {
	Serve(w http.ResponseWriter, r *http.Request, tenantID models.TenantID, req models.JoinRoomRequest)
}

// Pinger is a dependency reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	engine   Engine
	ws       SessionServer
	checks   map[string]Pinger
	instance string
	logger   zerolog.Logger
}

// NewHandler creates a Handler. checks names the dependencies pinged by
// the health endpoint.
func NewHandler(engine Engine, ws SessionServer, checks map[string]Pinger, instanceID string, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		ws:       ws,
		checks:   checks,
		instance: instanceID,
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// engineError maps engine errors onto HTTP statuses.
func (h *Handler) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, collab.ErrRoomNotFound):
		h.Error(w, http.StatusNotFound, "room not found")
	case errors.Is(err, collab.ErrInvalidRoom),
		errors.Is(err, collab.ErrInvalidMessage),
		errors.Is(err, collab.ErrInvalidPresence),
		errors.Is(err, collab.ErrInvalidQuery):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, collab.ErrCapacityExceeded):
		h.Error(w, http.StatusConflict, "room is full")
	case errors.Is(err, collab.ErrRoomKeyMismatch):
		h.Error(w, http.StatusForbidden, "invalid room key")
	case errors.Is(err, collab.ErrCircuitOpen):
		w.Header().Set("Retry-After", "60")
		h.Error(w, http.StatusServiceUnavailable, "room delivery temporarily suspended")
	case errors.Is(err, collab.ErrDeliveryFailed):
		h.Error(w, http.StatusBadGateway, "message delivery failed")
	default:
		h.logger.Error().Err(err).Msg("unexpected engine error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// identity returns the caller or writes 401.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "identity required")
	}
	return id, ok
}

// room resolves the {id} path parameter to one of the caller's tenant rooms.
// Rooms of other tenants are reported as not found.
func (h *Handler) room(w http.ResponseWriter, r *http.Request) (middleware.Identity, *models.Room, bool) {
	id, ok := h.identity(w, r)
	if !ok {
		return id, nil, false
	}
	room, found := h.engine.GetRoom(models.RoomID(chi.URLParam(r, "id")))
	if !found || room.TenantID != id.TenantID {
		h.Error(w, http.StatusNotFound, "room not found")
		return id, nil, false
	}
	return id, room, true
}

// requireMember enforces membership on keyed rooms, whose members proved the
// key when joining.
func (h *Handler) requireMember(w http.ResponseWriter, room *models.Room, user models.UserID) bool {
	if !room.HasKey {
		return true
	}
	if _, ok := room.Member(user); !ok {
		h.Error(w, http.StatusForbidden, "room membership required for private rooms")
		return false
	}
	return true
}

func decodeJSON(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}
	return name
}
