package miner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/fourtytwo42/qhash/consensus/qpow"
	"github.com/fourtytwo42/qhash/crypto/qhash"
	"github.com/fourtytwo42/qhash/pkg/journal"
	"github.com/fourtytwo42/qhash/pkg/quantum"
)

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }

func (failingBackend) NewSession(qubits int) (quantum.Session, error) {
	return failingSession{}, nil
}

type failingSession struct{}

func (failingSession) Run(*quantum.Program) ([]float64, error) {
	return nil, errors.New("device lost")
}
func (failingSession) Reset() error { return nil }
func (failingSession) Close() error { return nil }

func testWork(t *testing.T) *Work {
	t.Helper()
	header := qpow.Header{
		Version:    0x20000000,
		PrevBlock:  common.HexToHash("0x0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"),
		MerkleRoot: common.HexToHash("0xaa"),
		Time:       1754300000,
		Bits:       qpow.RegtestPowLimitBits,
	}
	work, err := NewWork(header, qpow.RegtestPowLimit)
	if err != nil {
		t.Fatalf("NewWork failed: %v", err)
	}
	return work
}

func TestNewWork(t *testing.T) {
	work := testWork(t)
	if work.Target.Cmp(qpow.RegtestPowLimit) != 0 {
		t.Errorf("Expected regtest target, got %s", work.Target.Hex())
	}

	header := work.Header
	header.Bits = qpow.RegtestPowLimitBits
	if _, err := NewWork(header, qpow.MainPowLimit); !errors.Is(err, qpow.ErrInvalidBits) {
		t.Errorf("Expected ErrInvalidBits for target above limit, got %v", err)
	}
	header.Bits = 0
	if _, err := NewWork(header, qpow.MainPowLimit); !errors.Is(err, qpow.ErrInvalidBits) {
		t.Errorf("Expected ErrInvalidBits for zero target, got %v", err)
	}
}

func TestCPUMiner_Mine(t *testing.T) {
	db, err := journal.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer db.Close()

	m, err := NewCPUMiner(Config{Threads: 2, Journal: db})
	if err != nil {
		t.Fatalf("NewCPUMiner failed: %v", err)
	}
	defer m.Close()

	work := testWork(t)
	sol, err := m.Mine(context.Background(), work)
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if sol.WorkID != work.ID {
		t.Errorf("Solution for work %s, want %s", sol.WorkID, work.ID)
	}
	if sol.Header.Nonce != sol.Nonce {
		t.Errorf("Header nonce %d, solution nonce %d", sol.Header.Nonce, sol.Nonce)
	}
	if err := qpow.CheckProofOfWork(sol.PowHash, sol.Header.Bits, qpow.RegtestPowLimit); err != nil {
		t.Errorf("Solution does not meet target: %v", err)
	}

	// The reported hash is reproducible by an independent hasher.
	digest, err := qhash.Sum(nil, sol.Header.Bytes(), sol.Header.Time)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if common.Hash(digest) != sol.PowHash {
		t.Errorf("Recomputed %x, miner reported %x", digest, sol.PowHash)
	}

	rec, err := db.Get(sol.Header.ID())
	if err != nil {
		t.Fatalf("Solution not journaled: %v", err)
	}
	if rec.Nonce != sol.Nonce || rec.WorkID != work.ID.String() {
		t.Errorf("Journal record mismatch: %+v", rec)
	}

	stats := m.Stats()
	if stats.Solutions != 1 || stats.Hashes < 1 || stats.Threads != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.Hashes < sol.Attempts {
		t.Errorf("Stats hashes %d below attempts %d", stats.Hashes, sol.Attempts)
	}
}

func TestCPUMiner_Cancel(t *testing.T) {
	m, err := NewCPUMiner(Config{Threads: 1})
	if err != nil {
		t.Fatalf("NewCPUMiner failed: %v", err)
	}
	defer m.Close()

	// A zero target is never met.
	work := testWork(t)
	work.Target = new(uint256.Int)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := m.Mine(ctx, work); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if m.Stats().Solutions != 0 {
		t.Error("No solution may be recorded")
	}
}

func TestCPUMiner_BackendFailure(t *testing.T) {
	m, err := NewCPUMiner(Config{Threads: 3, Backend: failingBackend{}})
	if err != nil {
		t.Fatalf("NewCPUMiner failed: %v", err)
	}
	defer m.Close()

	if _, err := m.Mine(context.Background(), testWork(t)); !errors.Is(err, qhash.ErrBackend) {
		t.Errorf("Expected ErrBackend, got %v", err)
	}
	if m.Stats().Errors == 0 {
		t.Error("Backend failures should be counted")
	}
}

func TestCPUMiner_Closed(t *testing.T) {
	m, err := NewCPUMiner(Config{Threads: 1})
	if err != nil {
		t.Fatalf("NewCPUMiner failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if _, err := m.Mine(context.Background(), testWork(t)); err != ErrMinerClosed {
		t.Errorf("Expected ErrMinerClosed, got %v", err)
	}
}
