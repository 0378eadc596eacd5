package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/boardroom/common/id"
	"basegraph.app/boardroom/internal/agent"
	"basegraph.app/boardroom/internal/model"
)

type ManagerConfig struct {
	Responder agent.Responder
	Context   agent.ContextProvider

	CallTimeoutFloor    time.Duration
	CallTimeoutOverride time.Duration
	MaxParallel         int

	// Retention is how long a terminal discussion stays in the registry.
	// SweepInterval of zero disables background eviction.
	Retention     time.Duration
	SweepInterval time.Duration

	Archiver  Archiver
	Publisher Publisher

	Now func() time.Time
}

// Manager owns the controllers of this process.
type Manager struct {
	cfg ManagerConfig

	mu          sync.RWMutex
	controllers map[string]*Controller

	ctx    context.Context
	cancel context.CancelFunc

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:         cfg,
		controllers: make(map[string]*Controller),
		ctx:         ctx,
		cancel:      cancel,
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go m.sweepLoop()
	} else {
		close(m.stoppedCh)
	}
	return m
}

// Start validates plan, registers a new discussion and starts it. The
// returned snapshot is the initial active state.
func (m *Manager) Start(ctx context.Context, plan model.Plan, brief model.Brief) (*model.Discussion, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	select {
	case <-m.ctx.Done():
		return nil, ErrShuttingDown
	default:
	}

	timeout := m.cfg.CallTimeoutOverride
	if timeout <= 0 {
		timeout = agent.CallTimeout(plan, m.cfg.CallTimeoutFloor)
	}

	c := NewController(ControllerConfig{
		ID:    id.NewString(),
		Plan:  plan,
		Brief: brief,
		Invoker: agent.NewInvoker(m.cfg.Responder, agent.InvokerConfig{
			Timeout: timeout,
			Context: m.cfg.Context,
		}),
		MaxParallel: m.cfg.MaxParallel,
		Archiver:    m.cfg.Archiver,
		Publisher:   m.cfg.Publisher,
		Now:         m.cfg.Now,
	})

	m.mu.Lock()
	m.controllers[c.ID()] = c
	m.mu.Unlock()

	// Discussions outlive the request that started them; only Shutdown stops them.
	runCtx := context.WithoutCancel(ctx)
	runCtx, stop := context.WithCancel(runCtx)
	go func() {
		select {
		case <-m.ctx.Done():
			stop()
		case <-c.Done():
			stop()
		}
	}()

	if err := c.Run(runCtx); err != nil {
		stop()
		return nil, err
	}

	slog.InfoContext(ctx, "discussion registered",
		"discussion_id", c.ID(),
		"call_timeout", timeout.String())

	return c.Snapshot(), nil
}

// Get returns the latest snapshot of a discussion held by this process.
func (m *Manager) Get(discussionID string) (*model.Discussion, bool) {
	c := m.lookup(discussionID)
	if c == nil {
		return nil, false
	}
	return c.Snapshot(), true
}

// Cancel requests cancellation and returns the current snapshot.
func (m *Manager) Cancel(discussionID string) (*model.Discussion, bool) {
	c := m.lookup(discussionID)
	if c == nil {
		return nil, false
	}
	c.Cancel()
	return c.Snapshot(), true
}

// Controller exposes a registered controller, mainly so callers can wait on
// Done.
func (m *Manager) Controller(discussionID string) (*Controller, bool) {
	c := m.lookup(discussionID)
	return c, c != nil
}

func (m *Manager) lookup(discussionID string) *Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controllers[discussionID]
}

// Sweep evicts terminal discussions that ended more than Retention ago and
// returns how many were removed.
func (m *Manager) Sweep() int {
	if m.cfg.Retention <= 0 {
		return 0
	}
	cutoff := m.cfg.Now().Add(-m.cfg.Retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for discussionID, c := range m.controllers {
		d := c.snapshot.Load()
		if d.EndTime != nil && d.EndTime.Before(cutoff) {
			delete(m.controllers, discussionID)
			evicted++
		}
	}
	return evicted
}

func (m *Manager) sweepLoop() {
	defer close(m.stoppedCh)

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("evicted finished discussions", "count", n)
			}
		}
	}
}

// Shutdown cancels every discussion and waits for them to settle. When ctx
// expires first, in-flight agent calls are aborted.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.stoppedCh

	m.mu.RLock()
	running := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		running = append(running, c)
	}
	m.mu.RUnlock()

	for _, c := range running {
		c.Cancel()
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for _, c := range running {
			if c.started.Load() {
				<-c.Done()
			}
		}
	}()

	select {
	case <-drained:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-drained
		return fmt.Errorf("shutdown deadline exceeded: %w", ctx.Err())
	}
}
