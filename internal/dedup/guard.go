// Package dedup prevents more than one memory per recording using time-boxed
// idempotency markers in Redis.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const markerKeyPrefix = "recall:recording:memory_created:"

// Guard reserves recordings for memory creation with a single atomic
// set-if-absent per recording, so overlapping sync runs cannot both persist a
// memory for the same id. Markers expire after the configured TTL; a recording
// reappearing after expiry is treated as new, an accepted bounded-staleness
// trade-off.
type Guard struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewGuard creates a guard whose markers live for ttl.
func NewGuard(rdb redis.Cmdable, ttl time.Duration) *Guard {
	return &Guard{rdb: rdb, ttl: ttl}
}

// Reserve atomically claims recordingID. It returns true when no marker
// existed and the caller may persist a memory, false when the recording was
// already claimed. SET NX with TTL keeps check and claim a single round trip.
func (g *Guard) Reserve(ctx context.Context, recordingID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, markerKeyPrefix+recordingID, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserving recording %s: %w", recordingID, err)
	}
	return ok, nil
}

// Release removes the marker so the recording can be reprocessed. Used by the
// operator force-reprocess path and to roll back a reservation whose
// persistence step failed.
func (g *Guard) Release(ctx context.Context, recordingID string) error {
	if err := g.rdb.Del(ctx, markerKeyPrefix+recordingID).Err(); err != nil {
		return fmt.Errorf("releasing recording %s: %w", recordingID, err)
	}
	return nil
}

// IsReserved reports whether a marker exists without claiming it.
func (g *Guard) IsReserved(ctx context.Context, recordingID string) (bool, error) {
	n, err := g.rdb.Exists(ctx, markerKeyPrefix+recordingID).Result()
	if err != nil {
		return false, fmt.Errorf("checking marker for recording %s: %w", recordingID, err)
	}
	return n > 0, nil
}
