package collab

import (
	"context"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/eldtechnologies/collab/internal/metrics"
	"github.com/eldtechnologies/collab/internal/models"
)

// job is deferred post-processing work such as catalog writes.
type job struct {
	name   string
	roomID models.RoomID
	run    func(ctx context.Context) error
}

// queue is a bounded work queue split into one shard per worker. Jobs for a
// room always land on the same shard, so they run in the order they were
// queued. Producers never block: a full shard drops the job and counts it.
type queue struct {
	shards  []chan job
	dropped atomic.Int64
}

func newQueue(capacity, workers int) *queue {
	per := (capacity + workers - 1) / workers
	q := &queue{shards: make([]chan job, workers)}
	for i := range q.shards {
		q.shards[i] = make(chan job, per)
	}
	return q
}

func (q *queue) shard(roomID models.RoomID) chan job {
	return q.shards[xxhash.Sum64String(string(roomID))%uint64(len(q.shards))]
}

func (q *queue) push(j job) bool {
	select {
	case q.shard(j.roomID) <- j:
		return true
	default:
		q.dropped.Add(1)
		metrics.QueueDropped.Inc()
		return false
	}
}

func (q *queue) depth() int {
	n := 0
	for _, s := range q.shards {
		n += len(s)
	}
	return n
}

func (q *queue) droppedCount() int64 {
	return q.dropped.Load()
}

// enqueue schedules post-processing for a room and logs when it had to be
// dropped.
func (e *Engine) enqueue(name string, roomID models.RoomID, run func(ctx context.Context) error) {
	if !e.queue.push(job{name: name, roomID: roomID, run: run}) {
		e.logger.Warn().Str("job", name).Str("room_id", string(roomID)).Msg("post-processing queue full, job dropped")
	}
}
