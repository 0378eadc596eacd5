package client

import (
	"context"
	"errors"
	"time"

	"basegraph.app/boardroom/internal/model"
)

const (
	DefaultPollInterval    = time.Second
	DefaultPollMaxAttempts = 60
)

// ErrPollingExhausted means the discussion was still active when the poller
// ran out of attempts.
var ErrPollingExhausted = errors.New("discussion still active after the last poll")

type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// Getter is the part of Client the poller needs.
type Getter interface {
	Get(ctx context.Context, discussionID string) (*model.Discussion, error)
}

type Poller struct {
	getter Getter
	cfg    PollConfig
}

func NewPoller(getter Getter, cfg PollConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPollMaxAttempts
	}
	return &Poller{getter: getter, cfg: cfg}
}

// Poll fetches the discussion once per interval while it is active, calling
// onUpdate with every snapshot. It stops at the first terminal snapshot or
// after MaxAttempts fetches, whichever comes first. When attempts run out
// the last snapshot is returned with ErrPollingExhausted.
func (p *Poller) Poll(ctx context.Context, discussionID string, onUpdate func(*model.Discussion)) (*model.Discussion, error) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var last *model.Discussion
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}

		d, err := p.getter.Get(ctx, discussionID)
		if err != nil {
			return last, err
		}
		last = d
		if onUpdate != nil {
			onUpdate(d)
		}
		if d.Status.IsTerminal() {
			return d, nil
		}
	}
	return last, ErrPollingExhausted
}
