package syncengine

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Connection is anything a Pool can hand out and eventually close.
type Connection interface {
	io.Closer
}

// Pool is a simple stack of idle connections, created lazily by factory
// when the stack is empty. The lock is scoped strictly to pushing and
// popping the idle stack itself — never to the factory call or to any I/O
// done with a checked-out connection — so a slow dial or a slow request
// on one worker never blocks another worker's Get or Put.
type Pool struct {
	factory func() (Connection, error)

	mu   sync.Mutex
	idle []Connection
}

// NewPool creates a Pool that dials new connections with factory.
func NewPool(factory func() (Connection, error)) *Pool {
	return &Pool{factory: factory}
}

// Get returns an idle connection if one is available, or dials a new one.
func (p *Pool) Get() (Connection, error) {
	p.mu.Lock()
	n := len(p.idle)
	if n == 0 {
		p.mu.Unlock()
		conn, err := p.factory()
		if err != nil {
			return nil, errors.Wrap(err, "syncengine: dialing connection")
		}
		return conn, nil
	}
	conn := p.idle[n-1]
	p.idle = p.idle[:n-1]
	p.mu.Unlock()
	return conn, nil
}

// Put returns conn to the idle stack for reuse by a later Get.
func (p *Pool) Put(conn Connection) {
	p.mu.Lock()
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// Discard closes conn instead of returning it to the pool, for use when a
// worker observed conn to be broken.
func (p *Pool) Discard(conn Connection) error {
	return conn.Close()
}

// CloseAll closes every currently idle connection. Connections checked out
// at the time of the call are not affected; callers should finish their
// in-flight work and Discard or Put before shutdown.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, conn := range idle {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
