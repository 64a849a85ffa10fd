package miner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/fourtytwo42/qhash/consensus/qpow"
	"github.com/fourtytwo42/qhash/crypto/qhash"
	"github.com/fourtytwo42/qhash/pkg/journal"
	"github.com/fourtytwo42/qhash/pkg/quantum"
	"github.com/fourtytwo42/qhash/pkg/utils"
)

// Contexts are checked every this many attempts per thread
const cancelCheckInterval = 16

var (
	// ErrNonceSpaceExhausted is returned when no nonce in the 32-bit range
	// satisfies the target
	ErrNonceSpaceExhausted = errors.New("nonce space exhausted")

	// ErrMinerClosed is returned by Mine after Close
	ErrMinerClosed = errors.New("miner closed")

	errNoWork = errors.New("no work")
)

var (
	hashMeter     = metrics.NewRegisteredMeter("miner/hashes", nil)
	solutionMeter = metrics.NewRegisteredMeter("miner/solutions", nil)
	errorMeter    = metrics.NewRegisteredMeter("miner/errors", nil)
)

// Work represents a unit of mining work
type Work struct {
	ID         uuid.UUID    `json:"id"`
	Header     qpow.Header  `json:"header"`
	Target     *uint256.Int `json:"target"` // Share target, defaults to the header bits
	ReceivedAt time.Time    `json:"received_at"`
}

// NewWork wraps a header template, decoding its bits against powLimit
func NewWork(header qpow.Header, powLimit *uint256.Int) (*Work, error) {
	target, err := qpow.TargetFromBits(header.Bits, powLimit)
	if err != nil {
		return nil, err
	}
	return &Work{
		ID:         uuid.New(),
		Header:     header,
		Target:     target,
		ReceivedAt: time.Now(),
	}, nil
}

// Solution represents a mining solution
type Solution struct {
	WorkID      uuid.UUID     `json:"work_id"`
	Header      qpow.Header   `json:"header"` // Header with the winning nonce
	Nonce       uint32        `json:"nonce"`
	PowHash     common.Hash   `json:"pow_hash"`
	Attempts    uint64        `json:"attempts"` // Hashes computed across all threads
	ComputeTime time.Duration `json:"compute_time"`
	FoundAt     time.Time     `json:"found_at"`
}

// Stats represents mining statistics
type Stats struct {
	Hashrate     float64       `json:"hashrate"` // Hashes per second since start
	Hashes       uint64        `json:"hashes"`
	Solutions    uint64        `json:"solutions"`
	Errors       uint64        `json:"errors"` // Simulation failures
	Threads      int           `json:"threads"`
	Uptime       time.Duration `json:"uptime"`
	LastSolution time.Time     `json:"last_solution"`
}

// Config contains miner settings
type Config struct {
	Threads       int              // Hashers run in parallel; one session each
	Backend       quantum.Backend  // nil selects the state-vector backend
	Journal       *journal.Journal // Optional solution store
	StatsInterval time.Duration    // Hashrate log period, zero disables
}

// CPUMiner searches the nonce space of a header with one QHash instance
// per thread. Mine calls are serialized.
type CPUMiner struct {
	config  Config
	hashers []*qhash.Hasher
	log     log.Logger
	started time.Time

	mu     sync.Mutex // held for the duration of Mine
	closed bool

	hashes       atomic.Uint64
	solutions    atomic.Uint64
	failures     atomic.Uint64
	lastSolution atomic.Int64
}

// NewCPUMiner allocates one hasher per thread
func NewCPUMiner(config Config) (*CPUMiner, error) {
	if config.Threads < 1 {
		config.Threads = utils.DefaultThreads()
	}
	m := &CPUMiner{
		config:  config,
		log:     log.New("module", "miner"),
		started: time.Now(),
	}
	for i := 0; i < config.Threads; i++ {
		h, err := qhash.New(config.Backend, 0)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to create hasher %d: %w", i, err)
		}
		m.hashers = append(m.hashers, h)
	}
	return m, nil
}

// Threads returns the number of mining threads
func (m *CPUMiner) Threads() int {
	return len(m.hashers)
}

type threadResult struct {
	nonce uint32
	hash  common.Hash
}

// Mine searches for a nonce whose QHash is at or below the work target.
// Thread i tries nonces i, i+T, i+2T, ... so the threads cover the whole
// 32-bit range without overlap.
func (m *CPUMiner) Mine(ctx context.Context, work *Work) (*Solution, error) {
	if work == nil {
		return nil, errNoWork
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMinerClosed
	}
	target := work.Target
	if target == nil {
		var err error
		if target, err = qpow.CompactToTarget(work.Header.Bits); err != nil {
			return nil, fmt.Errorf("%w: %w", qpow.ErrInvalidBits, err)
		}
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		start    = time.Now()
		attempts atomic.Uint64
		once     sync.Once
		found    *threadResult
		failure  error
		wg       sync.WaitGroup
	)
	finish := func(res *threadResult, err error) {
		once.Do(func() {
			found, failure = res, err
			cancel()
		})
	}

	logger := m.log.With("work", work.ID)
	logger.Debug("Mining started", "bits", fmt.Sprintf("%#08x", work.Header.Bits), "threads", len(m.hashers))

	if m.config.StatsInterval > 0 {
		go m.reportLoop(ctx, logger)
	}

	step := uint64(len(m.hashers))
	for i, h := range m.hashers {
		wg.Add(1)
		go func(first uint64, h *qhash.Hasher) {
			defer wg.Done()
			res, err := m.search(ctx, h, work.Header, target, first, step, &attempts)
			if res != nil || err != nil {
				finish(res, err)
			}
		}(uint64(i), h)
	}
	wg.Wait()

	switch {
	case failure != nil:
		return nil, failure
	case found != nil:
	case parent.Err() != nil:
		return nil, parent.Err()
	default:
		return nil, ErrNonceSpaceExhausted
	}

	header := work.Header
	header.Nonce = found.nonce
	sol := &Solution{
		WorkID:      work.ID,
		Header:      header,
		Nonce:       found.nonce,
		PowHash:     found.hash,
		Attempts:    attempts.Load(),
		ComputeTime: time.Since(start),
		FoundAt:     time.Now(),
	}
	m.solutions.Add(1)
	m.lastSolution.Store(sol.FoundAt.UnixNano())
	solutionMeter.Mark(1)

	logger.Info("🎉 Solution found", "nonce", sol.Nonce, "hash", sol.PowHash,
		"attempts", sol.Attempts, "elapsed", utils.FormatDuration(sol.ComputeTime))

	if m.config.Journal != nil {
		if err := m.config.Journal.Put(sol.Record()); err != nil {
			logger.Warn("Failed to journal solution", "err", err)
		}
	}
	return sol, nil
}

// search runs one thread's share of the nonce range. It returns a nil
// result and nil error when the range is done or ctx is cancelled.
func (m *CPUMiner) search(ctx context.Context, h *qhash.Hasher, header qpow.Header, target *uint256.Int, first, step uint64, attempts *atomic.Uint64) (*threadResult, error) {
	buf := header.Bytes()
	var n uint64
	for nonce := first; nonce <= math.MaxUint32; nonce += step {
		if n%cancelCheckInterval == 0 && ctx.Err() != nil {
			return nil, nil
		}
		n++

		qpow.SetNonce(buf, uint32(nonce))
		if err := h.Reset(); err != nil {
			m.failures.Add(1)
			errorMeter.Mark(1)
			return nil, err
		}
		h.SetTime(header.Time)
		if _, err := h.Write(buf); err != nil {
			m.failures.Add(1)
			errorMeter.Mark(1)
			return nil, err
		}
		digest, err := h.Finalize()
		if err != nil {
			m.failures.Add(1)
			errorMeter.Mark(1)
			return nil, err
		}
		attempts.Add(1)
		m.hashes.Add(1)
		hashMeter.Mark(1)

		if hash := common.Hash(digest); !qpow.HashToBig(hash).Gt(target) {
			return &threadResult{nonce: uint32(nonce), hash: hash}, nil
		}
	}
	return nil, nil
}

func (m *CPUMiner) reportLoop(ctx context.Context, logger log.Logger) {
	ticker := time.NewTicker(m.config.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats := m.Stats()
			logger.Info("⚡ Mining", "hashrate", utils.FormatHashrate(stats.Hashrate),
				"hashes", stats.Hashes, "solutions", stats.Solutions)
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns current mining statistics
func (m *CPUMiner) Stats() *Stats {
	uptime := time.Since(m.started)
	stats := &Stats{
		Hashes:    m.hashes.Load(),
		Solutions: m.solutions.Load(),
		Errors:    m.failures.Load(),
		Threads:   len(m.hashers),
		Uptime:    uptime,
	}
	if secs := uptime.Seconds(); secs > 0 {
		stats.Hashrate = float64(stats.Hashes) / secs
	}
	if ns := m.lastSolution.Load(); ns != 0 {
		stats.LastSolution = time.Unix(0, ns)
	}
	return stats
}

// Close releases every simulation session. It waits for a running Mine.
func (m *CPUMiner) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, h := range m.hashers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record converts a solution into its journal form
func (s *Solution) Record() *journal.Record {
	return &journal.Record{
		ID:       s.Header.ID(),
		PowHash:  s.PowHash,
		Header:   s.Header.Bytes(),
		Nonce:    s.Nonce,
		WorkID:   s.WorkID.String(),
		Attempts: s.Attempts,
		FoundAt:  s.FoundAt,
	}
}
