package collab

import (
	"context"
	"fmt"

	"github.com/eldtechnologies/collab/internal/ids"
	"github.com/eldtechnologies/collab/internal/models"
)

// typeFilterOverfetch widens each store read when filtering by type.
const typeFilterOverfetch = 3

// History pages through a room's stored messages in chronological order.
// Before and After are exclusive message id bounds. Without After the page
// ends at the newest matching message; with After it starts right after it.
// A type filter keeps reading past non-matching messages until the page is
// full or the stored history runs out.
func (e *Engine) History(ctx context.Context, q models.HistoryQuery) ([]models.Message, error) {
	if _, ok := e.rooms.Tenant(q.RoomID); !ok {
		return nil, ErrRoomNotFound
	}
	if q.Before != "" && !ids.ValidMessageID(string(q.Before)) {
		return nil, fmt.Errorf("%w: before_message_id", ErrInvalidQuery)
	}
	if q.After != "" && !ids.ValidMessageID(string(q.After)) {
		return nil, fmt.Errorf("%w: after_message_id", ErrInvalidQuery)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = e.cfg.JoinHistory
	}
	if limit > e.cfg.HistoryLimit {
		limit = e.cfg.HistoryLimit
	}

	var allowed map[models.MessageType]struct{}
	batch := limit
	if len(q.Types) > 0 {
		allowed = make(map[models.MessageType]struct{}, len(q.Types))
		for _, t := range q.Types {
			allowed[t] = struct{}{}
		}
		batch = limit * typeFilterOverfetch
	}

	forward := q.After != ""
	before, after := q.Before, q.After
	var out []models.Message

	for {
		blobs, err := e.store.RoomHistory(ctx, q.RoomID, before, after, batch)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}

		page := make([]models.Message, 0, len(blobs))
		var matched []models.Message
		for _, b := range blobs {
			var m models.Message
			if err := e.codec.Unmarshal(b, &m); err != nil {
				e.logger.Warn().Err(err).Str("room_id", string(q.RoomID)).Msg("skipping undecodable message")
				continue
			}
			page = append(page, m)
			if allowed != nil {
				if _, ok := allowed[m.Type]; !ok {
					continue
				}
			}
			matched = append(matched, m)
		}

		if forward {
			out = append(out, matched...)
		} else {
			out = append(matched, out...)
		}

		if len(out) >= limit || len(blobs) < batch || len(page) == 0 {
			break
		}
		// Move the cursor past this batch.
		if forward {
			after = page[len(page)-1].ID
		} else {
			before = page[0].ID
		}
	}

	if len(out) > limit {
		if forward {
			out = out[:limit]
		} else {
			out = out[len(out)-limit:]
		}
	}
	if out == nil {
		out = []models.Message{}
	}
	return out, nil
}
