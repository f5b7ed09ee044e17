package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/collab/internal/models"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		binary  bool
		wantErr bool
	}{
		{name: "", want: NameJSON},
		{name: "json", want: NameJSON},
		{name: "msgpack", want: NameMsgPack, binary: true},
		{name: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name())
			assert.Equal(t, tt.binary, c.Binary())
		})
	}
}

func TestCodecsPreserveMessage(t *testing.T) {
	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := models.Message{
		ID:             "01HZX3N1V5E8Q9W4K2M7T6R0PA",
		RoomID:         "room-1",
		SenderID:       "u1",
		SenderName:     "Ada",
		Type:           models.MessageText,
		Content:        "hello",
		Priority:       models.PriorityHigh,
		DeliveryStatus: models.DeliveryDelivered,
		SentAt:         sent,
		LatencyMs:      3.5,
	}

	for _, c := range []Codec{JSON{}, MsgPack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(msg)
			require.NoError(t, err)

			var got models.Message
			require.NoError(t, c.Unmarshal(data, &got))
			assert.Equal(t, msg.ID, got.ID)
			assert.Equal(t, msg.Content, got.Content)
			assert.Equal(t, msg.Priority, got.Priority)
			assert.Equal(t, msg.DeliveryStatus, got.DeliveryStatus)
			assert.True(t, msg.SentAt.Equal(got.SentAt))
			assert.InDelta(t, msg.LatencyMs, got.LatencyMs, 0.0001)
		})
	}
}

func TestMsgPackIsSmallerThanJSON(t *testing.T) {
	ev := models.Event{Type: models.EventPresenceUpdate, RoomID: "room-1", Data: map[string]any{"status": "online"}}
	j, err := JSON{}.Marshal(ev)
	require.NoError(t, err)
	m, err := MsgPack{}.Marshal(ev)
	require.NoError(t, err)
	assert.Less(t, len(m), len(j))
}
