// Copyright 2025 Quantum-Geth Authors
// This file is part of the quantum-geth library.

// Package qpow implements QHash proof-of-work validation for Bitcoin-layout
// block headers.
package qpow

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/holiman/uint256"

	"github.com/fourtytwo42/qhash/crypto/qhash"
	"github.com/fourtytwo42/qhash/pkg/quantum"
)

var (
	verifiedMeter = metrics.NewRegisteredMeter("qpow/verify/valid", nil)
	rejectedMeter = metrics.NewRegisteredMeter("qpow/verify/invalid", nil)
	cacheHitMeter = metrics.NewRegisteredMeter("qpow/cache/hit", nil)
)

// Config contains the validation engine settings
type Config struct {
	PowLimit  *uint256.Int // Easiest acceptable target
	Workers   int          // Concurrent QHash instances
	CacheSize int          // Cached proof-of-work hashes
}

// DefaultConfig returns mainnet settings
func DefaultConfig() Config {
	return Config{
		PowLimit:  MainPowLimit,
		Workers:   runtime.NumCPU(),
		CacheSize: 4096,
	}
}

// Stats are cumulative verification counters
type Stats struct {
	Verified  uint64 `json:"verified"`
	Rejected  uint64 `json:"rejected"`
	CacheHits uint64 `json:"cacheHits"`
	Hashes    uint64 `json:"hashes"`
}

// Engine validates headers. It holds one QHash instance per worker; each
// instance owns its own simulation session.
type Engine struct {
	config Config
	pool   *qhash.Pool
	cache  *lru.Cache[common.Hash, common.Hash]
	log    log.Logger
	start  time.Time

	verified  atomic.Uint64
	rejected  atomic.Uint64
	cacheHits atomic.Uint64
	hashes    atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
}

// New creates a validation engine on the given simulation backend
func New(config Config, backend quantum.Backend) (*Engine, error) {
	if config.PowLimit == nil {
		config.PowLimit = MainPowLimit
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.CacheSize < 1 {
		config.CacheSize = 1
	}
	pool, err := qhash.NewPool(backend, config.Workers)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		config: config,
		pool:   pool,
		cache:  lru.NewCache[common.Hash, common.Hash](config.CacheSize),
		log:    log.New("module", "qpow"),
		start:  time.Now(),
	}
	e.log.Debug("QHash engine ready", "workers", config.Workers, "cache", config.CacheSize)
	return e, nil
}

// PowLimit returns the easiest acceptable target
func (e *Engine) PowLimit() *uint256.Int {
	return e.config.PowLimit
}

// Hash computes QHash(data) at the given reference time
func (e *Engine) Hash(ctx context.Context, data []byte, time uint32) (*qhash.Result, error) {
	if e.closed.Load() {
		return nil, errEngineClosed
	}
	res, err := e.pool.Sum(ctx, data, time)
	if err != nil {
		return nil, err
	}
	e.hashes.Add(1)
	return res, nil
}

// PowHash returns the proof-of-work hash of header. The header's own Time is
// the reference time of the override rules.
func (e *Engine) PowHash(ctx context.Context, header *Header) (common.Hash, error) {
	id := header.ID()
	if hash, ok := e.cache.Get(id); ok {
		e.cacheHits.Add(1)
		cacheHitMeter.Mark(1)
		return hash, nil
	}
	res, err := e.Hash(ctx, header.Bytes(), header.Time)
	if err != nil {
		return common.Hash{}, err
	}
	hash := common.Hash(res.Digest)
	e.cache.Add(id, hash)
	return hash, nil
}

// VerifyHeader checks the header's proof-of-work against its own bits
func (e *Engine) VerifyHeader(ctx context.Context, header *Header) error {
	hash, err := e.PowHash(ctx, header)
	if err != nil {
		return err
	}
	return e.checkPoW(header, hash)
}

// checkPoW checks an already computed hash against the header's bits and
// updates the verification counters.
func (e *Engine) checkPoW(header *Header, hash common.Hash) error {
	if err := CheckProofOfWork(hash, header.Bits, e.config.PowLimit); err != nil {
		e.rejected.Add(1)
		rejectedMeter.Mark(1)
		e.log.Debug("Rejected header", "id", header.ID(), "powHash", hash, "bits", header.Bits, "err", err)
		return err
	}
	e.verified.Add(1)
	verifiedMeter.Mark(1)
	return nil
}

// VerifyHeaders verifies headers concurrently on the engine's workers. The
// returned slice is index-aligned with headers.
func (e *Engine) VerifyHeaders(ctx context.Context, headers []*Header) []error {
	errs := make([]error, len(headers))
	sem := make(chan struct{}, e.config.Workers)

	var wg sync.WaitGroup
	for i, header := range headers {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		}
		wg.Add(1)
		go func(i int, header *Header) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = e.VerifyHeader(ctx, header)
		}(i, header)
	}
	wg.Wait()
	return errs
}

// Stats returns the cumulative counters
func (e *Engine) Stats() Stats {
	return Stats{
		Verified:  e.verified.Load(),
		Rejected:  e.rejected.Load(),
		CacheHits: e.cacheHits.Load(),
		Hashes:    e.hashes.Load(),
	}
}

// Hashrate returns the average QHash evaluations per second since the
// engine was created. Cache hits are not counted.
func (e *Engine) Hashrate() float64 {
	secs := time.Since(e.start).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(e.hashes.Load()) / secs
}

// Close releases every simulation session
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		err = e.pool.Close()
	})
	return err
}

// IsInvalidPoW reports whether err is a consensus rejection rather than an
// operational failure.
func IsInvalidPoW(err error) bool {
	return errors.Is(err, ErrHighHash) || errors.Is(err, ErrInvalidBits)
}
