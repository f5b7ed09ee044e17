package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/eldtechnologies/collab/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// PostMessageRequest represents the send message request. The sender is the
// caller.
type PostMessageRequest struct {
	Type        models.MessageType     `json:"message_type"`
	Content     string                 `json:"content"`
	Priority    models.MessagePriority `json:"priority"`
	SenderName  string                 `json:"sender_name"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	Attachments []models.Attachment    `json:"attachments,omitempty"`
	ReplyTo     models.MessageID       `json:"reply_to,omitempty"`
	ThreadID    models.MessageID       `json:"thread_id,omitempty"`
}

// RoomInfo represents basic room information.
type RoomInfo struct {
	ID   models.RoomID `json:"id"`
	Name string        `json:"name"`
}

// RoomMessagesResponse represents the get room messages response.
type RoomMessagesResponse struct {
	Room     RoomInfo         `json:"room"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// TypingRequest represents the typing indicator request.
type TypingRequest struct {
	IsTyping bool   `json:"is_typing"`
	UserName string `json:"user_name"`
}

// PostMessage routes a message to the room and returns its delivery
// confirmation.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, room, ok := h.room(w, r)
	if !ok || !h.requireMember(w, room, id.UserID) {
		return
	}

	var req PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	senderName := sanitizeName(req.SenderName)
	if senderName == "" {
		if m, ok := room.Member(id.UserID); ok {
			senderName = m.DisplayName
		}
	}

	conf, err := h.engine.SendMessage(r.Context(), models.SendMessageRequest{
		RoomID:      room.ID,
		SenderID:    id.UserID,
		SenderName:  senderName,
		Type:        req.Type,
		Content:     req.Content,
		Priority:    req.Priority,
		Metadata:    req.Metadata,
		Attachments: req.Attachments,
		ReplyTo:     req.ReplyTo,
		ThreadID:    req.ThreadID,
	})
	if err != nil {
		h.engineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, conf)
}

// GetRoomMessages pages through a room's history. Query parameters: limit
// (default 50, max 200), before and after (exclusive message ids) and types
// (comma separated message types).
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	id, room, ok := h.room(w, r)
	if !ok || !h.requireMember(w, room, id.UserID) {
		return
	}

	q := r.URL.Query()
	limit := defaultHistoryLimit
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var types []models.MessageType
	for _, t := range strings.Split(q.Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, models.MessageType(t))
		}
	}

	after := models.MessageID(q.Get("after"))

	// Fetch one extra for has_more
	messages, err := h.engine.History(r.Context(), models.HistoryQuery{
		RoomID: room.ID,
		Limit:  limit + 1,
		Before: models.MessageID(q.Get("before")),
		After:  after,
		Types:  types,
	})
	if err != nil {
		h.engineError(w, err)
		return
	}

	hasMore := len(messages) > limit
	if hasMore {
		// Pages walk forward from after, backward otherwise.
		if after != "" {
			messages = messages[:limit]
		} else {
			messages = messages[len(messages)-limit:]
		}
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, RoomMessagesResponse{
		Room:     RoomInfo{ID: room.ID, Name: room.Name},
		Messages: messages,
		HasMore:  hasMore,
	})
}

// Typing broadcasts a typing indicator for the caller.
func (h *Handler) Typing(w http.ResponseWriter, r *http.Request) {
	id, room, ok := h.room(w, r)
	if !ok || !h.requireMember(w, room, id.UserID) {
		return
	}

	var req TypingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := h.engine.SendTypingIndicator(r.Context(), models.TypingIndicator{
		RoomID:   room.ID,
		UserID:   id.UserID,
		UserName: sanitizeName(req.UserName),
		IsTyping: req.IsTyping,
	})
	if err != nil {
		h.engineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
