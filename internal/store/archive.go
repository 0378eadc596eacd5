package store

import (
	"context"
	"errors"

	"basegraph.app/boardroom/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// DiscussionArchive durably records terminal discussions. Archive is an
// upsert keyed by discussion id, so a redelivered hand-off is harmless.
type DiscussionArchive interface {
	Archive(ctx context.Context, d *model.Discussion, plan model.Plan) error
	Get(ctx context.Context, discussionID string) (*model.Discussion, error)
	Close() error
}

// SnapshotCache shares the latest discussion snapshot between replicas.
type SnapshotCache interface {
	Publish(ctx context.Context, d *model.Discussion) error
	Get(ctx context.Context, discussionID string) (*model.Discussion, error)
}
