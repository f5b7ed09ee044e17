// Package collab is the collaboration engine: rooms, message routing,
// presence and the background workers that keep them healthy.
package collab

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/collab/internal/breaker"
	"github.com/eldtechnologies/collab/internal/codec"
	"github.com/eldtechnologies/collab/internal/connection"
	"github.com/eldtechnologies/collab/internal/fanout"
	"github.com/eldtechnologies/collab/internal/metrics"
	"github.com/eldtechnologies/collab/internal/models"
	"github.com/eldtechnologies/collab/internal/presence"
	"github.com/eldtechnologies/collab/internal/room"
)

// Store is the keyed TTL store paired with the fan-out adapter.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	AppendMessage(ctx context.Context, roomID models.RoomID, id models.MessageID, data []byte, limit int, ttl time.Duration) error
	RoomHistory(ctx context.Context, roomID models.RoomID, before, after models.MessageID, limit int) ([][]byte, error)
	Ping(ctx context.Context) error
}

// Catalog is durable room storage restored at start-up.
type Catalog interface {
	SaveRoom(ctx context.Context, room *models.Room) error
	ArchiveRoom(ctx context.Context, id models.RoomID) error
	RecordActivity(ctx context.Context, id models.RoomID, messageCount int64, avgLatencyMs float64, at time.Time) error
	ActiveRooms(ctx context.Context) ([]*models.Room, error)
}

// Config tunes the engine.
type Config struct {
	HeartbeatInterval    time.Duration
	PresenceTTL          time.Duration
	BreakerThreshold     int
	BreakerCooldown      time.Duration
	BreakerSweepInterval time.Duration
	MetricsInterval      time.Duration
	QueueCapacity        int
	QueueWorkers         int
	MessageTTL           time.Duration
	HistoryLimit         int
	JoinHistory          int
	MaxMessageSize       int
	SnapshotTTL          time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    30 * time.Second,
		PresenceTTL:          presence.DefaultTTL,
		BreakerThreshold:     breaker.DefaultThreshold,
		BreakerCooldown:      breaker.DefaultCooldown,
		BreakerSweepInterval: 10 * time.Second,
		MetricsInterval:      10 * time.Second,
		QueueCapacity:        10000,
		QueueWorkers:         4,
		MessageTTL:           7 * 24 * time.Hour,
		HistoryLimit:         1000,
		JoinHistory:          50,
		MaxMessageSize:       64 * 1024,
		SnapshotTTL:          30 * 24 * time.Hour,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = d.PresenceTTL
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = d.BreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = d.BreakerCooldown
	}
	if c.BreakerSweepInterval <= 0 {
		c.BreakerSweepInterval = d.BreakerSweepInterval
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = d.MetricsInterval
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.QueueWorkers <= 0 {
		c.QueueWorkers = d.QueueWorkers
	}
	if c.MessageTTL <= 0 {
		c.MessageTTL = d.MessageTTL
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.JoinHistory <= 0 {
		c.JoinHistory = d.JoinHistory
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = d.SnapshotTTL
	}
	return c
}

// Engine coordinates rooms, connections, presence and message delivery for
// one process instance. Cross-instance delivery goes through the adapter.
type Engine struct {
	cfg     Config
	adapter fanout.Adapter
	store   Store
	catalog Catalog
	codec   codec.Codec
	logger  zerolog.Logger
	now     func() time.Time

	rooms    *room.Registry
	conns    *connection.Registry
	presence *presence.Tracker
	breaker  *breaker.Breaker
	metrics  *metrics.Collector
	queue    *queue

	startedAt time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCatalog enables durable room storage.
func WithCatalog(c Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithCodec sets the codec used for stored blobs. Defaults to JSON.
func WithCodec(c codec.Codec) Option {
	return func(e *Engine) { e.codec = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an engine around a fan-out adapter and its paired store.
func New(cfg Config, adapter fanout.Adapter, store Store, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg.withDefaults(),
		adapter: adapter,
		store:   store,
		codec:   codec.JSON{},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "engine").Logger()

	e.rooms = room.NewRegistry()
	e.conns = connection.NewRegistry()
	e.presence = presence.NewTracker(store, e.codec, e.cfg.PresenceTTL, e.now)
	e.breaker = breaker.New(e.cfg.BreakerThreshold, e.cfg.BreakerCooldown, breaker.WithClock(e.now))
	e.metrics = metrics.NewCollector(metrics.DefaultWindow)
	e.queue = newQueue(e.cfg.QueueCapacity, e.cfg.QueueWorkers)
	e.startedAt = e.now()
	return e
}

// Restore loads active rooms from the catalog. Without a catalog it is a
// no-op.
func (e *Engine) Restore(ctx context.Context) error {
	if e.catalog == nil {
		return nil
	}
	rooms, err := e.catalog.ActiveRooms(ctx)
	if err != nil {
		return err
	}
	n := e.rooms.Restore(rooms)
	metrics.ActiveRooms.Set(float64(e.rooms.Len()))
	e.logger.Info().Int("rooms", n).Msg("restored rooms from catalog")
	return nil
}

// Heartbeat records activity on a connection.
func (e *Engine) Heartbeat(connID models.ConnectionID) bool {
	return e.conns.Touch(connID, e.now())
}

// Stats returns the current metrics snapshot.
func (e *Engine) Stats() metrics.Snapshot {
	snap := e.metrics.Snapshot(e.now())
	snap.TotalConnections = e.conns.Len()
	snap.ActiveRooms = e.rooms.Len()
	snap.OpenCircuits = e.breaker.OpenCount()
	snap.QueueDepth = e.queue.depth()
	snap.QueueDropped = e.queue.droppedCount()
	return snap
}

// Health summarises whether the engine meets its targets.
type Health struct {
	StoreHealthy     bool          `json:"store_healthy"`
	LatencyTargetMet bool          `json:"latency_target_met"`
	Healthy          bool          `json:"healthy"`
	Uptime           time.Duration `json:"-"`
	UptimeSeconds    float64       `json:"uptime_seconds"`
}

// Health pings the store and combines the result with the latency target.
func (e *Engine) Health(ctx context.Context) Health {
	storeOK := e.store.Ping(ctx) == nil
	latencyOK := e.Stats().LatencyTargetMet
	uptime := e.now().Sub(e.startedAt)
	return Health{
		StoreHealthy:     storeOK,
		LatencyTargetMet: latencyOK,
		Healthy:          storeOK && latencyOK,
		Uptime:           uptime,
		UptimeSeconds:    uptime.Seconds(),
	}
}

func (e *Engine) event(typ string, roomID models.RoomID, data any) *models.Event {
	return &models.Event{Type: typ, RoomID: roomID, Timestamp: e.now().UTC(), Data: data}
}

func since(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000
}
