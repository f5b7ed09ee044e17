package models

import "time"

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageText          MessageType = "text"
	MessageSystem        MessageType = "system"
	MessageFile          MessageType = "file"
	MessageHandoff       MessageType = "handoff"
	MessageAlert         MessageType = "alert"
	MessageCoachingTip   MessageType = "coaching_tip"
	MessageCommand       MessageType = "command"
	MessageLeadUpdate    MessageType = "lead_update"
	MessagePropertyShare MessageType = "property_share"
)

// MessagePriority orders urgency of delivery.
type MessagePriority string

const (
	PriorityLow    MessagePriority = "low"
	PriorityNormal MessagePriority = "normal"
	PriorityHigh   MessagePriority = "high"
	PriorityUrgent MessagePriority = "urgent"
)

// DeliveryStatus moves forward only: pending -> sent -> delivered | failed.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) rank() int {
	switch s {
	case DeliveryPending:
		return 0
	case DeliverySent:
		return 1
	case DeliveryDelivered, DeliveryFailed:
		return 2
	}
	return -1
}

// Attachment references a file shared in a message.
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Message is a collaboration message. Content is immutable once created.
type Message struct {
	ID             MessageID       `json:"message_id"`
	RoomID         RoomID          `json:"room_id"`
	SenderID       UserID          `json:"sender_id"`
	SenderName     string          `json:"sender_name"`
	Type           MessageType     `json:"message_type"`
	Content        string          `json:"content"`
	Priority       MessagePriority `json:"priority"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	ReplyTo        MessageID       `json:"reply_to,omitempty"`
	ThreadID       MessageID       `json:"thread_id,omitempty"`
	DeliveryStatus DeliveryStatus  `json:"delivery_status"`
	SentAt         time.Time       `json:"sent_at"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	LatencyMs      float64         `json:"latency_ms"`
}

// Advance moves the delivery status forward. Backward transitions are ignored.
func (m *Message) Advance(to DeliveryStatus) bool {
	if to.rank() <= m.DeliveryStatus.rank() {
		return false
	}
	m.DeliveryStatus = to
	return true
}

// SendMessageRequest is the input to the message router.
type SendMessageRequest struct {
	RoomID      RoomID          `json:"room_id"`
	SenderID    UserID          `json:"sender_id"`
	SenderName  string          `json:"sender_name"`
	Type        MessageType     `json:"message_type"`
	Content     string          `json:"content"`
	Priority    MessagePriority `json:"priority"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	ReplyTo     MessageID       `json:"reply_to,omitempty"`
	ThreadID    MessageID       `json:"thread_id,omitempty"`
}

// DeliveryConfirmation is returned synchronously to the sender.
type DeliveryConfirmation struct {
	MessageID        MessageID      `json:"message_id"`
	RoomID           RoomID         `json:"room_id"`
	DeliveryStatus   DeliveryStatus `json:"delivery_status"`
	DeliveredTo      []UserID       `json:"delivered_to"`
	FailedRecipients []UserID       `json:"failed_recipients"`
	LatencyMs        float64        `json:"latency_ms"`
}

// HistoryQuery pages through a room's stored messages. Before and After are
// exclusive message id bounds.
type HistoryQuery struct {
	RoomID RoomID        `json:"room_id"`
	Limit  int           `json:"limit"`
	Before MessageID     `json:"before_message_id,omitempty"`
	After  MessageID     `json:"after_message_id,omitempty"`
	Types  []MessageType `json:"message_types,omitempty"`
}

// TypingIndicator is an ephemeral typing notification.
type TypingIndicator struct {
	RoomID   RoomID `json:"room_id"`
	UserID   UserID `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}
