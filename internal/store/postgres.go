package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"basegraph.app/boardroom/core/db"
	"basegraph.app/boardroom/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS discussions (
	id           TEXT PRIMARY KEY,
	topic        TEXT NOT NULL,
	participants JSONB NOT NULL,
	status       TEXT NOT NULL,
	plan         JSONB NOT NULL,
	consensus    JSONB,
	start_time   TIMESTAMPTZ NOT NULL,
	end_time     TIMESTAMPTZ,
	archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS discussion_events (
	id            TEXT PRIMARY KEY,
	discussion_id TEXT NOT NULL REFERENCES discussions(id) ON DELETE CASCADE,
	seq           INTEGER NOT NULL,
	round         INTEGER NOT NULL,
	type          TEXT NOT NULL,
	from_agent    TEXT NOT NULL,
	content       TEXT NOT NULL,
	confidence    DOUBLE PRECISION,
	ts            TIMESTAMPTZ NOT NULL,
	UNIQUE (discussion_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_discussions_status ON discussions(status);
`

type postgresArchive struct {
	db *db.DB
}

// NewPostgresArchive returns an archive on the shared pool, creating its
// tables when missing.
func NewPostgresArchive(ctx context.Context, database *db.DB) (DiscussionArchive, error) {
	if _, err := database.Querier().Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrating discussion archive: %w", err)
	}
	return &postgresArchive{db: database}, nil
}

func (s *postgresArchive) Archive(ctx context.Context, d *model.Discussion, plan model.Plan) error {
	participants, err := json.Marshal(d.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	var consensus []byte
	if d.Consensus != nil {
		if consensus, err = json.Marshal(d.Consensus); err != nil {
			return fmt.Errorf("marshal consensus: %w", err)
		}
	}

	return s.db.WithTx(ctx, func(q db.Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO discussions (id, topic, participants, status, plan, consensus, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status, consensus = EXCLUDED.consensus,
				end_time = EXCLUDED.end_time, archived_at = now()`,
			d.ID, d.Topic, participants, string(d.Status), planJSON, consensus, d.StartTime, d.EndTime)
		if err != nil {
			return fmt.Errorf("upserting discussion: %w", err)
		}

		if _, err := q.Exec(ctx, `DELETE FROM discussion_events WHERE discussion_id = $1`, d.ID); err != nil {
			return fmt.Errorf("clearing discussion events: %w", err)
		}

		for i, e := range d.Events {
			_, err := q.Exec(ctx, `
				INSERT INTO discussion_events (id, discussion_id, seq, round, type, from_agent, content, confidence, ts)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				e.ID, d.ID, i, e.Round, string(e.Type), e.FromAgent, e.Content, e.Confidence, e.Timestamp)
			if err != nil {
				return fmt.Errorf("inserting discussion event %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *postgresArchive) Get(ctx context.Context, discussionID string) (*model.Discussion, error) {
	q := s.db.Querier()

	var (
		d            model.Discussion
		status       string
		participants []byte
		consensus    []byte
	)
	err := q.QueryRow(ctx, `
		SELECT id, topic, participants, status, consensus, start_time, end_time
		FROM discussions WHERE id = $1`, discussionID).
		Scan(&d.ID, &d.Topic, &participants, &status, &consensus, &d.StartTime, &d.EndTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading discussion: %w", err)
	}
	d.Status = model.DiscussionStatus(status)
	if err := json.Unmarshal(participants, &d.Participants); err != nil {
		return nil, fmt.Errorf("decoding participants: %w", err)
	}
	if len(consensus) > 0 {
		d.Consensus = &model.ConsensusResult{}
		if err := json.Unmarshal(consensus, d.Consensus); err != nil {
			return nil, fmt.Errorf("decoding consensus: %w", err)
		}
	}

	rows, err := q.Query(ctx, `
		SELECT id, round, type, from_agent, content, confidence, ts
		FROM discussion_events WHERE discussion_id = $1 ORDER BY seq`, discussionID)
	if err != nil {
		return nil, fmt.Errorf("loading discussion events: %w", err)
	}
	defer rows.Close()

	d.Events = []model.AgentEvent{}
	for rows.Next() {
		var (
			e         model.AgentEvent
			eventType string
			ts        time.Time
		)
		if err := rows.Scan(&e.ID, &e.Round, &eventType, &e.FromAgent, &e.Content, &e.Confidence, &ts); err != nil {
			return nil, fmt.Errorf("scanning discussion event: %w", err)
		}
		e.Type = model.EventType(eventType)
		e.Timestamp = ts.UTC()
		d.Events = append(d.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating discussion events: %w", err)
	}

	d.StartTime = d.StartTime.UTC()
	if d.EndTime != nil {
		end := d.EndTime.UTC()
		d.EndTime = &end
	}
	return &d, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *postgresArchive) Close() error {
	return nil
}
