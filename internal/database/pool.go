package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var (
	// ErrPoolExhausted is returned when no connection frees up within
	// the acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrPoolClosed is returned by Acquire after the pool is torn down.
	ErrPoolClosed = errors.New("connection pool closed")
)

// Conn is a live database session. A Conn is owned exclusively by the
// caller that acquired it and must be handed back through Release or
// Discard, never shared.
type Conn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

// ConnFactory opens a new connection. Implementations perform network
// I/O; the pool calls it lazily as slots are first used and whenever a
// dead connection needs replacing.
type ConnFactory func(ctx context.Context) (Conn, error)

// Pool owns a fixed-size set of connections for one deployment
// environment. Slots are tracked on a channel: a nil entry is a free
// slot with no connection opened yet.
type Pool struct {
	factory        ConnFactory
	acquireTimeout time.Duration
	slots          chan Conn

	mu     sync.Mutex
	closed bool
}

// NewPool builds a pool of the given size. Connections are established
// lazily on first acquire of each slot.
func NewPool(factory ConnFactory, size int, acquireTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	p := &Pool{
		factory:        factory,
		acquireTimeout: acquireTimeout,
		slots:          make(chan Conn, size),
	}
	for i := 0; i < size; i++ {
		p.slots <- nil
	}
	return p
}

// Acquire checks a connection out of the pool, waiting up to the
// configured timeout for a free slot. Idle connections are validated
// before being handed out; a dead one is closed and transparently
// replaced by a fresh dial.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case conn := <-p.slots:
		return p.checkout(ctx, conn)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrPoolExhausted
	}
}

func (p *Pool) checkout(ctx context.Context, conn Conn) (Conn, error) {
	if conn != nil {
		if err := conn.PingContext(ctx); err == nil {
			return conn, nil
		}
		log.Printf("[POOL] discarding dead connection, dialing replacement")
		conn.Close()
	}
	fresh, err := p.factory(ctx)
	if err != nil {
		// Hand the slot back so the pool does not shrink.
		p.slots <- nil
		return nil, fmt.Errorf("open connection: %w", err)
	}
	return fresh, nil
}

// Release returns a healthy connection to the pool.
func (p *Pool) Release(conn Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		conn.Close()
		return
	}
	p.slots <- conn
}

// Discard closes a connection suspected to be broken and frees its
// slot; the next acquire on that slot dials a fresh connection.
func (p *Pool) Discard(conn Conn) {
	if conn != nil {
		conn.Close()
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.slots <- nil
}

// Close tears the pool down, closing every idle connection. Checked-out
// connections are closed as they come back.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.slots:
			if conn != nil {
				conn.Close()
			}
		default:
			return nil
		}
	}
}

// available reports how many slots are currently free. Used by tests to
// verify the release-exactly-once invariant.
func (p *Pool) available() int {
	return len(p.slots)
}
