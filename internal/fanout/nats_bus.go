package fanout

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eldtechnologies/collab/internal/models"
)

const natsSubjectPrefix = "collab.tenant."

// NATSBus relays envelopes over NATS core subjects, one per tenant.
type NATSBus struct {
	conn *nats.Conn
}

// NewNATSBus connects to the NATS server at url.
func NewNATSBus(url string) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.Name("collab"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSBus{conn: nc}, nil
}

// natsToken makes a tenant id safe to use as a single subject token.
func natsToken(tenantID models.TenantID) string {
	if tenantID == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, string(tenantID))
}

// Publish sends payload on the tenant's subject.
func (b *NATSBus) Publish(_ context.Context, tenantID models.TenantID, payload []byte) error {
	return b.conn.Publish(natsSubjectPrefix+natsToken(tenantID), payload)
}

// Run subscribes to every tenant subject until ctx is done.
func (b *NATSBus) Run(ctx context.Context, handle func(payload []byte)) error {
	sub, err := b.conn.Subscribe(natsSubjectPrefix+"*", func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

// Close drains and closes the connection.
func (b *NATSBus) Close() error {
	return b.conn.Drain()
}
