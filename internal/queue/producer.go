package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/boardroom/internal/model"
)

type ArchiveMessage struct {
	DiscussionID string
	Payload      ArchivePayload
	TraceID      *string
	Attempt      int
}

type Producer interface {
	Enqueue(ctx context.Context, msg ArchiveMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg ArchiveMessage) error {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	payload, err := msg.Payload.Encode()
	if err != nil {
		return err
	}

	fields := map[string]any{
		"task_type":     string(TaskTypeArchiveDiscussion),
		"discussion_id": msg.DiscussionID,
		"payload":       payload,
		"attempt":       attempt,
	}

	if msg.TraceID != nil && *msg.TraceID != "" {
		fields["trace_id"] = *msg.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue archive: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued discussion for archive", "discussion_id", msg.DiscussionID, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

// StreamArchiver hands terminal discussions to the archive worker through
// the producer instead of writing them from the server.
type StreamArchiver struct {
	producer Producer
}

func NewStreamArchiver(producer Producer) *StreamArchiver {
	return &StreamArchiver{producer: producer}
}

func (a *StreamArchiver) Archive(ctx context.Context, d *model.Discussion, plan model.Plan) error {
	msg := ArchiveMessage{
		DiscussionID: d.ID,
		Payload:      NewArchivePayload(d, plan),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID := sc.TraceID().String()
		msg.TraceID = &traceID
	}
	return a.producer.Enqueue(ctx, msg)
}
