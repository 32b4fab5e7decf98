package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id      int
	pingErr error
	closed  atomic.Bool
}

func (c *fakeConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return nil, errors.New("fakeConn does not support transactions")
}

func (c *fakeConn) PingContext(ctx context.Context) error {
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	dials   int
	dialErr error
	conns   []*fakeConn
}

func (f *fakeFactory) dial(ctx context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	conn := &fakeConn{id: f.dials}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeFactory) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func TestPoolAcquireRelease(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory.dial, 2, time.Second)
	defer pool.Close()

	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, factory.dialCount())

	pool.Release(conn)
	assert.Equal(t, 2, pool.available())

	// A healthy released connection is reused, not redialed.
	again, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.Equal(t, 1, factory.dialCount())
	pool.Release(again)
}

func TestPoolExhaustedTimeout(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory.dial, 1, 50*time.Millisecond)
	defer pool.Close()

	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	pool.Release(conn)
}

func TestPoolReplacesDeadConn(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory.dial, 1, time.Second)
	defer pool.Close()

	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)

	dead := conn.(*fakeConn)
	dead.pingErr = errors.New("connection reset by peer")
	pool.Release(conn)

	fresh, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, dead, fresh)
	assert.True(t, dead.closed.Load())
	assert.Equal(t, 2, factory.dialCount())
	pool.Release(fresh)
}

func TestPoolDiscardFreesSlot(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory.dial, 1, time.Second)
	defer pool.Close()

	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Discard(conn)
	assert.True(t, conn.(*fakeConn).closed.Load())
	assert.Equal(t, 1, pool.available())

	fresh, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, factory.dialCount())
	pool.Release(fresh)
}

func TestPoolFactoryErrorKeepsSlot(t *testing.T) {
	factory := &fakeFactory{dialErr: errors.New("connection refused")}
	pool := NewPool(factory.dial, 1, time.Second)
	defer pool.Close()

	ctx := context.Background()

	_, err := pool.Acquire(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, pool.available())

	factory.mu.Lock()
	factory.dialErr = nil
	factory.mu.Unlock()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Release(conn)
}

func TestPoolClosed(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory.dial, 2, time.Second)

	ctx := context.Background()
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, pool.Close())

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)

	// Returning after close just closes the connection.
	pool.Release(conn)
	assert.True(t, conn.(*fakeConn).closed.Load())
}

func TestPoolSingleSlotSerializes(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory.dial, 1, 2*time.Second)
	defer pool.Close()

	ctx := context.Background()
	hold := 60 * time.Millisecond

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := pool.Acquire(ctx)
			assert.NoError(t, err)
			time.Sleep(hold)
			pool.Release(conn)
		}()
	}
	wg.Wait()

	// With one slot the two holders cannot overlap.
	assert.GreaterOrEqual(t, time.Since(start), 2*hold)
}
