package qhash

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/metrics"

	"github.com/fourtytwo42/qhash/pkg/quantum"
)

var (
	poolHashMeter     = metrics.NewRegisteredMeter("qhash/pool/hashes", nil)
	poolOverrideMeter = metrics.NewRegisteredMeter("qhash/pool/overrides", nil)
	poolFinalizeTimer = metrics.NewRegisteredTimer("qhash/pool/finalize", nil)
)

// Pool hands out hashers, each with its own simulation session, to
// concurrent callers. A hasher is held by one goroutine between Get and Put.
type Pool struct {
	hashers chan *Hasher
	size    int

	mu       sync.Mutex
	isClosed bool
	closed   chan struct{}
}

// NewPool allocates size hashers on the given backend.
func NewPool(backend quantum.Backend, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		hashers: make(chan *Hasher, size),
		size:    size,
		closed:  make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		h, err := New(backend, 0)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.hashers <- h
	}
	return p, nil
}

// Size returns the number of hashers owned by the pool.
func (p *Pool) Size() int {
	return p.size
}

// Get blocks until a hasher is free, ctx is done or the pool is closed.
// The returned hasher is reset.
func (p *Pool) Get(ctx context.Context) (*Hasher, error) {
	select {
	case <-p.closed:
		return nil, errPoolClosed
	default:
	}
	select {
	case h := <-p.hashers:
		return h, nil
	case <-p.closed:
		return nil, errPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put resets h and returns it to the pool.
func (p *Pool) Put(h *Hasher) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed {
		h.Close()
		return
	}
	if err := h.Reset(); err != nil {
		// A session that cannot reset is not handed out again.
		h.Close()
		return
	}
	select {
	case p.hashers <- h:
	default:
		// Not one of ours, or returned twice.
		h.Close()
	}
}

// Sum computes QHash(data) at the given reference time on a pooled hasher.
func (p *Pool) Sum(ctx context.Context, data []byte, ref uint32) (*Result, error) {
	h, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Put(h)

	start := time.Now()
	h.SetTime(ref)
	if _, err := h.Write(data); err != nil {
		return nil, err
	}
	res, err := h.FinalizeDetailed()
	if err != nil {
		return nil, err
	}
	poolFinalizeTimer.UpdateSince(start)
	poolHashMeter.Mark(1)
	if res.Overridden {
		poolOverrideMeter.Mark(1)
	}
	return res, nil
}

// Close releases every idle session. Hashers still checked out are closed
// when they are returned with Put.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed {
		return nil
	}
	p.isClosed = true
	close(p.closed)

	var errs []error
	for {
		select {
		case h := <-p.hashers:
			if err := h.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}
