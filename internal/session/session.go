package session

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/graphres/internal/engine"
)

// Resolver is the engine surface a connection guards.
type Resolver interface {
	Resolve(ctx context.Context, req *engine.Request) (*engine.Result, error)
}

// State is the lifecycle state of a connection.
type State int

const (
	StateAlive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Manager creates connections to one resolver.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	resolver Resolver
	ids      engine.IDGenerator
	logger   *slog.Logger

	mu      sync.Mutex
	open    map[string]*Connection
	closing map[string]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator sets the generator of connection ids.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// WithLogger sets the manager logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a Manager. Connection ids default to UUIDv7.
func NewManager(r Resolver, opts ...Option) *Manager {
	m := &Manager{
		resolver: r,
		ids:      engine.UUIDv7Generator{},
		open:     make(map[string]*Connection),
		closing:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Connect opens a new connection. Fails with IllegalStateError while any
// connection of this manager is closing.
func (m *Manager) Connect() (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.closing) > 0 {
		ids := make([]string, 0, len(m.closing))
		for id := range m.closing {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return nil, &IllegalStateError{
			Message: "connection " + strings.Join(ids, ", ") + " is still closing",
		}
	}

	c := &Connection{
		id:    m.ids.Generate(),
		m:     m,
		state: StateAlive,
		done:  make(chan struct{}),
	}
	m.open[c.id] = c
	m.logger.Debug("connection opened", "connection", c.id)
	return c, nil
}

// Open returns the number of connections not yet closed.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Connection is one client connection. Resolve may be called concurrently
// until Close.
type Connection struct {
	id string
	m  *Manager

	mu       sync.Mutex
	state    State
	inflight sync.WaitGroup
	done     chan struct{}
}

// ID returns the connection id.
func (c *Connection) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resolve delegates to the engine while the connection is alive.
// Returns ConnectionClosedError once Close has been called.
func (c *Connection) Resolve(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	c.mu.Lock()
	if c.state != StateAlive {
		c.mu.Unlock()
		return nil, &ConnectionClosedError{ConnectionID: c.id}
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	return c.m.resolver.Resolve(ctx, req)
}

// Close stops accepting resolutions, waits for those in flight, then marks
// the connection closed. Calling Close again waits for the first call to
// finish and returns nil.
func (c *Connection) Close() error {
	c.m.mu.Lock()
	c.mu.Lock()
	if c.state != StateAlive {
		c.mu.Unlock()
		c.m.mu.Unlock()
		<-c.done
		return nil
	}
	c.state = StateClosing
	c.m.closing[c.id] = true
	c.mu.Unlock()
	c.m.mu.Unlock()

	c.m.logger.Debug("connection closing", "connection", c.id)
	c.inflight.Wait()

	c.m.mu.Lock()
	c.mu.Lock()
	c.state = StateClosed
	delete(c.m.closing, c.id)
	delete(c.m.open, c.id)
	c.mu.Unlock()
	c.m.mu.Unlock()
	close(c.done)

	c.m.logger.Debug("connection closed", "connection", c.id)
	return nil
}
