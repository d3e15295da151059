package leads

import (
	"context"
	"io"
	"time"
)

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, run RunResult) error
	GetRun(ctx context.Context, runID string) (RunResult, error)
}

// BlobStore writes lead exports and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
