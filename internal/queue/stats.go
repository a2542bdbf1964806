package queue

import (
	"context"
	"errors"
)

// Stats summarizes pending depth and the age of the oldest envelope.
type Stats struct {
	Length    int   `json:"length"`
	OldestAge int64 `json:"oldest_age_seconds"`
}

// Stats reads every pending envelope of operation (all operations when
// empty). Envelopes that disappear mid-walk are not counted.
func (q *Queue) Stats(ctx context.Context, operation string) (Stats, error) {
	keys, err := q.ListPending(ctx, operation)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	var oldest int64
	for _, k := range keys {
		env, err := q.Read(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Stats{}, err
		}
		stats.Length++
		if oldest == 0 || env.Date < oldest {
			oldest = env.Date
		}
	}
	if stats.Length > 0 && oldest > 0 {
		stats.OldestAge = q.opts.Now().Unix() - oldest
	}
	return stats, nil
}
