package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/session"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

const DefaultInterval = time.Hour

// Coordinator is the single owner of the current snapshot and token.  It
// runs one refresh cycle at a time, on a schedule and on demand, and sends
// open-door commands.
type Coordinator struct {
	api      ufanetapi.Ufanet
	session  *session.Manager
	interval time.Duration
	metrics  *metrics

	// held for the whole of a cycle
	refreshMu sync.Mutex

	mu          sync.RWMutex
	snapshot    *Snapshot
	state       State
	lastErr     error
	lastAttempt time.Time
	subscribers map[string]func(Update)
}

func New(api ufanetapi.Ufanet, sess *session.Manager) *Coordinator {
	c := &Coordinator{
		api:         api,
		session:     sess,
		interval:    DefaultInterval,
		metrics:     newMetrics(),
		state:       StateUninitialized,
		subscribers: make(map[string]func(Update)),
	}

	sess.OnLogin(c.metrics.logins.Inc)
	return c
}

// WithInterval sets the scheduled refresh period
func (c *Coordinator) WithInterval(d time.Duration) *Coordinator {
	if d > 0 {
		c.interval = d
	}
	return c
}

// WithRegisterer registers the coordinator metrics with reg
func (c *Coordinator) WithRegisterer(reg prometheus.Registerer) *Coordinator {
	if reg != nil {
		reg.MustRegister(c.metrics.collectors()...)
	}
	return c
}

func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Snapshot returns the last published snapshot, or nil before the first
// successful cycle
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the error of the last cycle, nil if it succeeded
func (c *Coordinator) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		State:       c.state,
		Stale:       c.lastErr != nil,
		LastAttempt: c.lastAttempt,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
		st.AuthFailure = IsAuthFailure(c.lastErr)
	}
	if c.snapshot != nil {
		st.RefreshedAt = c.snapshot.RefreshedAt
	}

	return st
}

// Subscribe registers f to be called after every refresh cycle.  The
// returned function removes the subscription.
func (c *Coordinator) Subscribe(f func(Update)) func() {
	id := uuid.New().String()

	c.mu.Lock()
	c.subscribers[id] = f
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) notify(u Update) {
	c.mu.RLock()
	subs := make([]func(Update), 0, len(c.subscribers))
	for _, f := range c.subscribers {
		subs = append(subs, f)
	}
	c.mu.RUnlock()

	for _, f := range subs {
		f(u)
	}
}

// Run refreshes every interval until ctx is cancelled.  The eager startup
// refresh is the caller's job, see FirstRefresh.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logging.Logger(ctx).Infof("coordinator: refreshing every %s", c.interval)

	for {
		select {
		case <-ctx.Done():
			logging.Logger(ctx).Info("coordinator: shutting down")
			return nil
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				logging.Logger(ctx).WithError(err).Warn("coordinator: scheduled refresh failed, keeping stale data")
			}
		}
	}
}

// FirstRefresh runs the startup cycle.  The error tells the setup layer
// whether to ask for new credentials (IsAuthFailure) or just give up.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	return c.Refresh(ctx)
}

// Close releases the connection pool
func (c *Coordinator) Close() error {
	c.api.Close()
	return nil
}
