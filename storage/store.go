package storage

import (
	"context"
	"time"
)

// Temporary access URL lifetimes. Short enough to bound exposure of private
// media, long enough for the consumer to finish the read.
const (
	TranscribeURLTTL = 5 * time.Minute
	PlaybackURLTTL   = time.Hour
)

// ObjectStore durably stores binary media objects under caller-chosen keys
// and hands out time-limited signed read URLs. Overwriting an existing key is
// acceptable.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}
