package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ErrTransactionFailed wraps the last transport error once retries are
// exhausted.
var ErrTransactionFailed = errors.New("transaction failed after retries")

const defaultMaxBackoff = 5 * time.Second

// Manager runs units of work: it checks a connection out of the pool,
// opens a transaction, invokes the caller's function and commits,
// retrying transient transport failures with exponential backoff.
// Business-logic errors are never retried; retrying them would silently
// duplicate side effects.
type Manager struct {
	pool        *Pool
	maxRetries  int
	backoffBase time.Duration
	maxBackoff  time.Duration
}

// NewManager builds a transaction manager over the given pool.
func NewManager(pool *Pool, maxRetries int, backoffBase time.Duration) *Manager {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoffBase <= 0 {
		backoffBase = 100 * time.Millisecond
	}
	return &Manager{
		pool:        pool,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		maxBackoff:  defaultMaxBackoff,
	}
}

// Run executes fn inside a database transaction. On success the
// transaction is committed and Run returns nil. A transient transport
// failure rolls back, discards the connection and retries after a
// doubling, capped backoff, up to maxRetries times; exhaustion surfaces
// ErrTransactionFailed. Any other error rolls back and propagates
// immediately. The connection is handed back to the pool exactly once
// on every path.
func (m *Manager) Run(ctx context.Context, fn func(tx *sql.Tx) error) error {
	backoff := m.backoffBase
	var lastErr error

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		err := m.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt == m.maxRetries {
			break
		}
		log.Printf("[UNITOFWORK] transient failure on attempt %d/%d, retrying in %s: %v",
			attempt+1, m.maxRetries+1, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > m.maxBackoff {
			backoff = m.maxBackoff
		}
	}

	return fmt.Errorf("%w: %v", ErrTransactionFailed, lastErr)
}

func (m *Manager) runOnce(ctx context.Context, fn func(tx *sql.Tx) error) error {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		m.pool.Discard(conn)
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			log.Printf("[UNITOFWORK] rollback failed: %v", rbErr)
		}
		m.handBack(conn, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		m.handBack(conn, err)
		return fmt.Errorf("commit transaction: %w", err)
	}

	m.pool.Release(conn)
	return nil
}

// handBack returns a connection after a failure: broken transports are
// discarded so the slot redials, everything else goes back for reuse.
func (m *Manager) handBack(conn Conn, err error) {
	if IsTransient(err) {
		m.pool.Discard(conn)
		return
	}
	m.pool.Release(conn)
}

// IsTransient classifies an error as a transient transport failure:
// one originating in the network or connection layer that is expected
// to succeed on retry. Constraint violations and business errors are
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPoolExhausted) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 covers connection exceptions; 57P0x are server
		// shutdown codes; 53300 is too_many_connections.
		if strings.HasPrefix(string(pqErr.Code), "08") {
			return true
		}
		switch pqErr.Code {
		case "57P01", "57P02", "57P03", "53300":
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection refused")
}
