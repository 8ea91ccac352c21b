package comm

import (
	"io"
	"sync"
	"time"
)

// Pool is a communication pool which holds one or more connections to a
// device.  Idle connections are closed after a timeout and re-opened as
// needed.  It is concurrent safe.  Pools must be created with NewPool.
//
// For a half-duplex servo bus the pool size is 1, which serializes
// transactions without the consumers holding a lock of their own.
type Pool struct {
	maxSize int                     // == cap(conns)
	onLease int                     // number of connections given out
	timeout time.Duration           // idle time before all connections are freed
	conns   chan io.ReadWriteCloser // the circular buffer of connections
	freed   chan struct{}           // wakes a waiter when Destroy opens a slot
	timer   *time.Timer             // destroys idle connections after all are returned
	maker   CreationFunc

	reclaiming bool // whether the reclaim goroutine is running
	mu         sync.Mutex
}

// NewPool creates a new pool of connections made by maker
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		freed:   make(chan struct{}, maxSize),
		timer:   time.NewTimer(timeout),
		maker:   maker,
	}
	p.timer.Stop() // nothing to close initially
	return p
}

// Get retrieves a connection from the pool, blocking until one is available
// if all are in use.  It is safe for concurrent callers; the lock is never
// held across the blocking wait, so Put and Destroy always make progress.
// When done, return the connection with Put, or discard it with Destroy if
// it has gone bad (e.g., all calls error).
//
// If the error from Get is not nil, the connection must not be returned
// to the pool.
func (p *Pool) Get() (io.ReadWriteCloser, error) {
	// stopping an expired timer can fail, but the reclaim goroutine drains
	// safely and a fresh connection is made on demand, so ignore it
	p.timer.Stop()

	for {
		p.mu.Lock()
		select {
		case ret := <-p.conns:
			p.onLease++
			p.mu.Unlock()
			return ret, nil
		default:
		}
		if p.onLease < p.maxSize {
			c, err := p.maker()
			if err == nil {
				p.onLease++
			}
			p.mu.Unlock()
			return c, err
		}
		p.mu.Unlock()
		// all given out; a freed signal means a slot opened with no
		// connection coming back, so loop around and make a fresh one
		select {
		case ret := <-p.conns:
			p.mu.Lock()
			p.onLease++
			p.mu.Unlock()
			return ret, nil
		case <-p.freed:
		}
	}
}

// Put restores a connection to the pool.  It may be reused, or freed after
// the pool sits idle for its timeout.
func (p *Pool) Put(c io.ReadWriteCloser) {
	// the connection stays counted as leased until it is in the channel,
	// so a concurrent Get cannot over-provision the pool
	p.conns <- c
	p.mu.Lock()
	p.onLease--
	if len(p.conns) == p.maxSize {
		p.startReclaim()
	}
	p.mu.Unlock()
}

// Destroy immediately frees a connection.  Use instead of Put when the
// connection has gone bad.
func (p *Pool) Destroy(c io.ReadWriteCloser) {
	c.Close()
	p.mu.Lock()
	p.onLease--
	p.mu.Unlock()
	// wake one waiter so the freed capacity is used
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// ReturnWithError calls Put if err is nil, otherwise Destroy.
func (p *Pool) ReturnWithError(c io.ReadWriteCloser, err error) {
	if err == nil {
		p.Put(c)
	} else {
		p.Destroy(c)
	}
}

// Size returns the number of connections owned by the pool, idle or leased
func (p *Pool) Size() int {
	return len(p.conns) + p.onLease
}

// Active returns the number of connections currently given out
func (p *Pool) Active() int {
	return p.onLease
}

// startReclaim spawns a goroutine which closes all idle connections after
// the timeout elapses.  The caller must hold p.mu.
func (p *Pool) startReclaim() {
	p.timer.Reset(p.timeout)
	if p.reclaiming {
		return
	}
	p.reclaiming = true
	go func() {
		<-p.timer.C
		p.mu.Lock()
		for len(p.conns) > 0 {
			c := <-p.conns
			c.Close()
		}
		p.reclaiming = false
		p.mu.Unlock()
	}()
}
