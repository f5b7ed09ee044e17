package collab

import (
	"context"
	"fmt"

	"github.com/eldtechnologies/collab/internal/fanout"
	"github.com/eldtechnologies/collab/internal/ids"
	"github.com/eldtechnologies/collab/internal/metrics"
	"github.com/eldtechnologies/collab/internal/models"
)

const (
	systemSenderID   models.UserID = "system"
	systemSenderName               = "System"
)

func (e *Engine) validateMessage(req *models.SendMessageRequest) error {
	if req.SenderID == "" {
		return fmt.Errorf("%w: sender_id is required", ErrInvalidMessage)
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	if len(req.Content) > e.cfg.MaxMessageSize {
		return fmt.Errorf("%w: content exceeds %d bytes", ErrInvalidMessage, e.cfg.MaxMessageSize)
	}
	if req.Type == "" {
		req.Type = models.MessageText
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if req.SenderName == "" {
		req.SenderName = "User " + string(req.SenderID)
	}
	return nil
}

// SendMessage routes a message to every session in the room and returns a
// delivery confirmation. A room whose circuit is open is short-circuited
// without touching the adapter. A broadcast error counts against the room's
// circuit and yields ErrDeliveryFailed. Once started, delivery is not
// cancelled by ctx.
func (e *Engine) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.DeliveryConfirmation, error) {
	start := e.now()

	if err := e.validateMessage(&req); err != nil {
		return nil, err
	}

	tenantID, ok := e.rooms.Tenant(req.RoomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	if e.breaker.IsOpen(req.RoomID) {
		metrics.SendsShortCircuited.Inc()
		return nil, ErrCircuitOpen
	}

	ctx = context.WithoutCancel(ctx)

	msg := models.Message{
		ID:             ids.NewMessageID(),
		RoomID:         req.RoomID,
		SenderID:       req.SenderID,
		SenderName:     req.SenderName,
		Type:           req.Type,
		Content:        req.Content,
		Priority:       req.Priority,
		Metadata:       req.Metadata,
		Attachments:    req.Attachments,
		ReplyTo:        req.ReplyTo,
		ThreadID:       req.ThreadID,
		DeliveryStatus: models.DeliveryPending,
		SentAt:         start.UTC(),
	}
	msg.Advance(models.DeliverySent)
	e.persistMessage(ctx, &msg)

	res, err := e.broadcast(ctx, tenantID, e.event(models.EventCollaborationMessage, msg.RoomID, msg))
	if err != nil {
		if e.breaker.RecordFailure(req.RoomID) {
			metrics.CircuitOpened.Inc()
			e.logger.Warn().Str("room_id", string(req.RoomID)).Msg("circuit opened for room")
		}
		metrics.MessagesSent.WithLabelValues(string(msg.Type), string(models.DeliveryFailed)).Inc()
		e.logger.Error().Err(err).
			Str("room_id", string(req.RoomID)).
			Str("message_id", string(msg.ID)).
			Int("failures", e.breaker.Failures(req.RoomID)).
			Msg("message broadcast failed")
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	e.breaker.RecordSuccess(req.RoomID)

	end := e.now()
	switch {
	case len(res.Delivered) > 0:
		msg.Advance(models.DeliveryDelivered)
		at := end.UTC()
		msg.DeliveredAt = &at
	case len(res.Failed) > 0:
		msg.Advance(models.DeliveryFailed)
	}
	msg.LatencyMs = since(start, end)

	e.rooms.RecordMessage(req.RoomID, msg.LatencyMs, end.UTC())
	e.metrics.Record(msg.LatencyMs)
	metrics.DeliveryLatency.Observe(msg.LatencyMs / 1000)
	metrics.MessagesSent.WithLabelValues(string(msg.Type), string(msg.DeliveryStatus)).Inc()
	e.recordActivity(req.RoomID, end.UTC())

	if msg.LatencyMs > metrics.TargetLatencyMs {
		e.logger.Warn().
			Str("room_id", string(req.RoomID)).
			Str("message_id", string(msg.ID)).
			Float64("latency_ms", msg.LatencyMs).
			Msg("message latency above target")
	}

	return &models.DeliveryConfirmation{
		MessageID:        msg.ID,
		RoomID:           msg.RoomID,
		DeliveryStatus:   msg.DeliveryStatus,
		DeliveredTo:      res.Delivered,
		FailedRecipients: res.Failed,
		LatencyMs:        msg.LatencyMs,
	}, nil
}

// SendTypingIndicator broadcasts an ephemeral typing notification. It is not
// stored, retried or counted.
func (e *Engine) SendTypingIndicator(ctx context.Context, ind models.TypingIndicator) error {
	tenantID, ok := e.rooms.Tenant(ind.RoomID)
	if !ok {
		return ErrRoomNotFound
	}
	if e.breaker.IsOpen(ind.RoomID) {
		return ErrCircuitOpen
	}
	if _, err := e.broadcast(ctx, tenantID, e.event(models.EventTypingIndicator, ind.RoomID, ind)); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// systemMessage stores and broadcasts an engine generated notice. Failures
// are logged and do not count against the room's circuit.
func (e *Engine) systemMessage(ctx context.Context, tenantID models.TenantID, roomID models.RoomID, content string) {
	now := e.now().UTC()
	msg := models.Message{
		ID:             ids.NewMessageID(),
		RoomID:         roomID,
		SenderID:       systemSenderID,
		SenderName:     systemSenderName,
		Type:           models.MessageSystem,
		Content:        content,
		Priority:       models.PriorityNormal,
		DeliveryStatus: models.DeliverySent,
		SentAt:         now,
	}
	e.persistMessage(ctx, &msg)

	if _, err := e.broadcast(ctx, tenantID, e.event(models.EventCollaborationMessage, roomID, msg)); err != nil {
		e.logger.Warn().Err(err).Str("room_id", string(roomID)).Msg("failed to broadcast system message")
	}
}

// persistMessage appends the message to the room history. Failures are
// logged only; delivery goes ahead.
func (e *Engine) persistMessage(ctx context.Context, msg *models.Message) {
	data, err := e.codec.Marshal(msg)
	if err == nil {
		err = e.store.AppendMessage(ctx, msg.RoomID, msg.ID, data, e.cfg.HistoryLimit, e.cfg.MessageTTL)
	}
	if err != nil {
		e.logger.Warn().Err(err).
			Str("room_id", string(msg.RoomID)).
			Str("message_id", string(msg.ID)).
			Msg("failed to persist message")
	}
}

// broadcast calls the adapter, turning a panic into an error.
func (e *Engine) broadcast(ctx context.Context, tenantID models.TenantID, ev *models.Event) (res fanout.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broadcast panic: %v", r)
		}
	}()
	return e.adapter.Broadcast(ctx, tenantID, ev)
}
