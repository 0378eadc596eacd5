package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"basegraph.app/boardroom/internal/model"
)

type sqliteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive opens (or creates) an embedded archive at path. Used when
// no Postgres DSN is configured.
func NewSQLiteArchive(path string) (DiscussionArchive, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("discussion archive: open: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("discussion archive: wal: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("discussion archive: foreign keys: %w", err)
	}

	// One writer at a time; SQLite serializes writes anyway.
	conn.SetMaxOpenConns(1)

	s := &sqliteArchive{db: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteArchive) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS discussions (
			id           TEXT PRIMARY KEY,
			topic        TEXT NOT NULL,
			participants TEXT NOT NULL DEFAULT '[]',
			status       TEXT NOT NULL,
			plan         TEXT NOT NULL DEFAULT '{}',
			consensus    TEXT,
			start_time   TEXT NOT NULL,
			end_time     TEXT,
			archived_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS discussion_events (
			id            TEXT PRIMARY KEY,
			discussion_id TEXT NOT NULL REFERENCES discussions(id) ON DELETE CASCADE,
			seq           INTEGER NOT NULL,
			round         INTEGER NOT NULL,
			type          TEXT NOT NULL,
			from_agent    TEXT NOT NULL,
			content       TEXT NOT NULL,
			confidence    REAL,
			ts            TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_events_discussion_seq ON discussion_events(discussion_id, seq);
		CREATE INDEX IF NOT EXISTS idx_discussions_status ON discussions(status);
	`)
	if err != nil {
		return fmt.Errorf("discussion archive: migrate: %w", err)
	}
	return nil
}

func (s *sqliteArchive) Archive(ctx context.Context, d *model.Discussion, plan model.Plan) error {
	participants, _ := json.Marshal(d.Participants)
	planJSON, _ := json.Marshal(plan)
	var consensus *string
	if d.Consensus != nil {
		raw, err := json.Marshal(d.Consensus)
		if err != nil {
			return fmt.Errorf("discussion archive: marshal consensus: %w", err)
		}
		v := string(raw)
		consensus = &v
	}
	var endTime *string
	if d.EndTime != nil {
		v := formatTime(*d.EndTime)
		endTime = &v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("discussion archive: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO discussions (id, topic, participants, status, plan, consensus, start_time, end_time, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, consensus=excluded.consensus,
			end_time=excluded.end_time, archived_at=excluded.archived_at
	`, d.ID, d.Topic, string(participants), string(d.Status), string(planJSON), consensus,
		formatTime(d.StartTime), endTime, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("discussion archive: save discussion: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM discussion_events WHERE discussion_id = ?`, d.ID); err != nil {
		return fmt.Errorf("discussion archive: clear events: %w", err)
	}

	for i, e := range d.Events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO discussion_events (id, discussion_id, seq, round, type, from_agent, content, confidence, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, d.ID, i, e.Round, string(e.Type), e.FromAgent, e.Content, e.Confidence, formatTime(e.Timestamp))
		if err != nil {
			return fmt.Errorf("discussion archive: save event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("discussion archive: commit: %w", err)
	}
	return nil
}

func (s *sqliteArchive) Get(ctx context.Context, discussionID string) (*model.Discussion, error) {
	var (
		d            model.Discussion
		participants string
		status       string
		consensus    sql.NullString
		startTime    string
		endTime      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, topic, participants, status, consensus, start_time, end_time
		FROM discussions WHERE id = ?`, discussionID).
		Scan(&d.ID, &d.Topic, &participants, &status, &consensus, &startTime, &endTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("discussion archive: get: %w", err)
	}

	d.Status = model.DiscussionStatus(status)
	if err := json.Unmarshal([]byte(participants), &d.Participants); err != nil {
		return nil, fmt.Errorf("discussion archive: decode participants: %w", err)
	}
	if consensus.Valid {
		d.Consensus = &model.ConsensusResult{}
		if err := json.Unmarshal([]byte(consensus.String), d.Consensus); err != nil {
			return nil, fmt.Errorf("discussion archive: decode consensus: %w", err)
		}
	}
	if d.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if endTime.Valid {
		end, err := parseTime(endTime.String)
		if err != nil {
			return nil, err
		}
		d.EndTime = &end
	}

	events, err := s.loadEvents(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	d.Events = events
	return &d, nil
}

func (s *sqliteArchive) loadEvents(ctx context.Context, discussionID string) ([]model.AgentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round, type, from_agent, content, confidence, ts
		FROM discussion_events WHERE discussion_id = ? ORDER BY seq`, discussionID)
	if err != nil {
		return nil, fmt.Errorf("discussion archive: load events: %w", err)
	}
	defer rows.Close()

	events := []model.AgentEvent{}
	for rows.Next() {
		var (
			e          model.AgentEvent
			eventType  string
			confidence sql.NullFloat64
			ts         string
		)
		if err := rows.Scan(&e.ID, &e.Round, &eventType, &e.FromAgent, &e.Content, &confidence, &ts); err != nil {
			return nil, fmt.Errorf("discussion archive: scan event: %w", err)
		}
		e.Type = model.EventType(eventType)
		if confidence.Valid {
			c := confidence.Float64
			e.Confidence = &c
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *sqliteArchive) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("discussion archive: parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}
