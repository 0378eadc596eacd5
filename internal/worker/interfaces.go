package worker

import (
	"context"

	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Reclaim(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Archive is the durable store the worker writes terminal discussions to.
type Archive interface {
	Archive(ctx context.Context, d *model.Discussion, plan model.Plan) error
}
