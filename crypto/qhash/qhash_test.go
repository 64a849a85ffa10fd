package qhash

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/fourtytwo42/qhash/pkg/quantum"
)

const (
	activationAll     = 1753105444
	activationQuarter = 1753305380
	activationMost    = 1754220531
)

// fixedBackend returns the same expectation vector for every program.
type fixedBackend struct {
	exps    []float64
	runErr  error
	openErr error
}

func (b *fixedBackend) Name() string { return "fixed" }

func (b *fixedBackend) NewSession(qubits int) (quantum.Session, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	return &fixedSession{backend: b}, nil
}

type fixedSession struct {
	backend *fixedBackend
	runs    int
	resets  int
	closed  bool
}

func (s *fixedSession) Run(p *quantum.Program) ([]float64, error) {
	s.runs++
	if s.backend.runErr != nil {
		return nil, s.backend.runErr
	}
	return append([]float64(nil), s.backend.exps...), nil
}

func (s *fixedSession) Reset() error { s.resets++; return nil }
func (s *fixedSession) Close() error { s.closed = true; return nil }

// vectorWithZeroes builds 16 expectations whose encoding has exactly n zero bytes.
func vectorWithZeroes(t *testing.T, n int) []float64 {
	t.Helper()
	const (
		bothZero = 0.0
		oneZero  = 256.0 / fixedOne // raw 0x0100 -> 00 01
		noZero   = 257.0 / fixedOne // raw 0x0101 -> 01 01
	)
	exps := make([]float64, NumQubits)
	for i := range exps {
		switch {
		case n >= 2:
			exps[i] = bothZero
			n -= 2
		case n == 1:
			exps[i] = oneZero
			n--
		default:
			exps[i] = noZero
		}
	}
	if n != 0 {
		t.Fatalf("Cannot build vector, %d zeroes left over", n)
	}
	return exps
}

func expectedDigest(data []byte, exps []float64) [Size]byte {
	d1 := sha256.Sum256(data)
	encoded, _ := EncodeExpectations(exps)
	return sha256.Sum256(append(d1[:], encoded...))
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("Bad hex %q: %v", s, err)
	}
	return b
}

func TestQHash_GoldenVectors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		encoded string
		zeroes  int
		digest  string
	}{
		{
			name:    "empty",
			input:   nil,
			encoded: "a166d0cde6ec7600000039fb56ffabff0000d2ff3c000900f9ff01000000f8ff",
			zeroes:  10,
			digest:  "6691664c42c1036745233c7f976b75d0eb5155e0f21edda9c5c6ddebba6f972c",
		},
		{
			name:    "abc",
			input:   []byte("abc"),
			encoded: "bf121305afee0ffe540484ff8a01e2ff7e002000b2ffd9ff0d00e9ff03000100",
			zeroes:  5,
			digest:  "2a4f1b9ca124234e5f791ed912d99306a608a48d42ac430a29c30361030eb37f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(nil, 0)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer h.Close()

			mustWrite(t, h, tt.input)
			res, err := h.FinalizeDetailed()
			if err != nil {
				t.Fatalf("Finalize failed: %v", err)
			}
			if got := hex.EncodeToString(res.Encoded); got != tt.encoded {
				t.Errorf("Encoded expectations mismatch\n got %s\nwant %s", got, tt.encoded)
			}
			if res.Zeroes != tt.zeroes {
				t.Errorf("Expected %d zero bytes, got %d", tt.zeroes, res.Zeroes)
			}
			if res.Overridden {
				t.Error("Override must not fire before the first activation time")
			}
			if got := hex.EncodeToString(res.Digest[:]); got != tt.digest {
				t.Errorf("Digest mismatch\n got %s\nwant %s", got, tt.digest)
			}
		})
	}
}

func TestQHash_EmptyInputOverriddenAfterLastTightening(t *testing.T) {
	// The empty input encodes 10 zero bytes, which trips the 1/4 rule.
	before, err := Sum(nil, nil, activationMost-1)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if !bytes.Equal(before[:], mustHex(t, "6691664c42c1036745233c7f976b75d0eb5155e0f21edda9c5c6ddebba6f972c")) {
		t.Errorf("Unexpected digest before activation: %x", before)
	}

	after, err := Sum(nil, nil, activationMost)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if after != allOnes() {
		t.Errorf("Expected all-0xFF override at activation, got %x", after)
	}
}

func TestQHash_Determinism(t *testing.T) {
	input := []byte("the quick brown fox jumps over the lazy dog")

	first, err := Sum(nil, input, 1700000000)
	if err != nil {
		t.Fatalf("First sum failed: %v", err)
	}
	second, err := Sum(nil, input, 1700000000)
	if err != nil {
		t.Fatalf("Second sum failed: %v", err)
	}
	if first != second {
		t.Errorf("Same input produced different digests: %x vs %x", first, second)
	}
}

func TestQHash_ChunkedWrites(t *testing.T) {
	input := bytes.Repeat([]byte{0xA5, 0x5A, 0x01}, 100)

	whole, err := Sum(nil, input, 0)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}

	h, err := New(nil, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer h.Close()
	for i := 0; i < len(input); i += 7 {
		end := min(i+7, len(input))
		if _, err := h.Write(input[i:end]); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	chunked, err := h.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if whole != chunked {
		t.Errorf("Chunked writes changed the digest: %x vs %x", chunked, whole)
	}
}

func allOnes() [Size]byte {
	var out [Size]byte
	for i := range out {
		out[i] = 0xFF
	}
	return out
}

func TestQHash_OverrideThresholds(t *testing.T) {
	tests := []struct {
		name     string
		zeroes   int
		time     uint32
		override bool
	}{
		{"all zero at first activation", 32, activationAll, true},
		{"all zero before first activation", 32, activationAll - 1, false},
		{"31 zero at first activation", 31, activationAll, false},
		{"24 zero at second activation", 24, activationQuarter, true},
		{"23 zero at second activation", 23, activationQuarter, false},
		{"24 zero before second activation", 24, activationQuarter - 1, false},
		{"8 zero at third activation", 8, activationMost, true},
		{"7 zero at third activation", 7, activationMost, false},
		{"8 zero before third activation", 8, activationMost - 1, false},
		{"32 zero long after", 32, activationMost + 1000, true},
		{"0 zero long after", 0, activationMost + 1000, false},
	}

	input := []byte("candidate block header")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exps := vectorWithZeroes(t, tt.zeroes)
			backend := &fixedBackend{exps: exps}

			h, err := New(backend, tt.time)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer h.Close()

			mustWrite(t, h, input)
			res, err := h.FinalizeDetailed()
			if err != nil {
				t.Fatalf("Finalize failed: %v", err)
			}
			if res.Zeroes != tt.zeroes {
				t.Fatalf("Engineered %d zero bytes, encoder counted %d", tt.zeroes, res.Zeroes)
			}
			if res.Overridden != tt.override {
				t.Errorf("Expected overridden=%v, got %v", tt.override, res.Overridden)
			}

			want := expectedDigest(input, exps)
			if tt.override {
				want = allOnes()
			}
			if res.Digest != want {
				t.Errorf("Digest mismatch\n got %x\nwant %x", res.Digest, want)
			}
		})
	}
}

func TestQHash_ProtocolMisuse(t *testing.T) {
	h, err := New(nil, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer h.Close()

	mustWrite(t, h, []byte("payload"))
	first, err := h.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if _, err := h.Finalize(); !errors.Is(err, ErrProtocolMisuse) {
		t.Errorf("Expected ErrProtocolMisuse on second finalize, got %v", err)
	}
	if _, err := h.Write([]byte("more")); !errors.Is(err, ErrProtocolMisuse) {
		t.Errorf("Expected ErrProtocolMisuse on write after finalize, got %v", err)
	}

	if err := h.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	mustWrite(t, h, []byte("payload"))
	again, err := h.Finalize()
	if err != nil {
		t.Fatalf("Finalize after reset failed: %v", err)
	}
	if again != first {
		t.Errorf("Reset did not restore the empty state: %x vs %x", again, first)
	}
}

func TestQHash_ResetDiscardsInput(t *testing.T) {
	want, err := Sum(nil, []byte("b"), 0)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}

	h, err := New(nil, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer h.Close()

	mustWrite(t, h, []byte("a"))
	if err := h.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	mustWrite(t, h, []byte("b"))
	got, err := h.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if got != want {
		t.Errorf("Bytes written before Reset leaked into the digest")
	}
}

func TestQHash_UseAfterClose(t *testing.T) {
	h, err := New(nil, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := h.Write(nil); !errors.Is(err, ErrProtocolMisuse) {
		t.Errorf("Expected ErrProtocolMisuse on write after close, got %v", err)
	}
	if _, err := h.Finalize(); !errors.Is(err, ErrProtocolMisuse) {
		t.Errorf("Expected ErrProtocolMisuse on finalize after close, got %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}

func TestQHash_BackendErrors(t *testing.T) {
	if _, err := New(&fixedBackend{openErr: quantum.ErrResource}, 0); !errors.Is(err, ErrResource) {
		t.Errorf("Expected ErrResource from New, got %v", err)
	}

	backend := &fixedBackend{runErr: errors.New("device lost")}
	h, err := New(backend, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer h.Close()

	out := bytes.Repeat([]byte{0xAA}, Size)
	if err := h.FinalizeInto(out); !errors.Is(err, ErrBackend) {
		t.Errorf("Expected ErrBackend, got %v", err)
	}
	if !bytes.Equal(out, bytes.Repeat([]byte{0xAA}, Size)) {
		t.Error("Failed finalize must not write partial output")
	}

	short := &fixedBackend{exps: []float64{0, 0}}
	h2, err := New(short, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer h2.Close()
	if _, err := h2.Finalize(); !errors.Is(err, ErrBackend) {
		t.Errorf("Expected ErrBackend for short expectation vector, got %v", err)
	}
}

func TestQHash_FinalizeIntoShortBuffer(t *testing.T) {
	h, err := New(nil, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer h.Close()

	if err := h.FinalizeInto(make([]byte, Size-1)); err == nil {
		t.Error("Expected error for short output buffer")
	}
	// The short buffer is rejected before the state machine advances.
	if err := h.FinalizeInto(make([]byte, Size)); err != nil {
		t.Errorf("Finalize after rejected buffer failed: %v", err)
	}
}

func TestQHash_SessionLifecycle(t *testing.T) {
	backend := &fixedBackend{exps: make([]float64, NumQubits)}
	h, err := New(backend, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	session := h.session.(*fixedSession)

	for i := 0; i < 3; i++ {
		if _, err := h.Finalize(); err != nil {
			t.Fatalf("Finalize %d failed: %v", i, err)
		}
		if err := h.Reset(); err != nil {
			t.Fatalf("Reset %d failed: %v", i, err)
		}
	}
	if session.runs != 3 || session.resets != 3 {
		t.Errorf("Expected 3 runs and 3 resets, got %d and %d", session.runs, session.resets)
	}
	h.Close()
	if !session.closed {
		t.Error("Close did not release the session")
	}
}

func TestPool(t *testing.T) {
	pool, err := NewPool(nil, 2)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	ctx := context.Background()
	res, err := pool.Sum(ctx, []byte("abc"), 0)
	if err != nil {
		t.Fatalf("Pool sum failed: %v", err)
	}
	if got := hex.EncodeToString(res.Digest[:]); got != "2a4f1b9ca124234e5f791ed912d99306a608a48d42ac430a29c30361030eb37f" {
		t.Errorf("Pool digest mismatch: %s", got)
	}

	// Drain the pool and check Get honours context cancellation.
	a, _ := pool.Get(ctx)
	b, _ := pool.Get(ctx)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := pool.Get(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from empty pool, got %v", err)
	}
	pool.Put(a)
	pool.Put(b)

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := pool.Get(ctx); !errors.Is(err, errPoolClosed) {
		t.Errorf("Expected errPoolClosed, got %v", err)
	}
}

func mustWrite(t *testing.T, h *Hasher, p []byte) {
	t.Helper()
	if _, err := h.Write(p); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestPool_ReusesFinalizedHashers(t *testing.T) {
	pool, err := NewPool(nil, 1)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Close()

	// Hand the only hasher back in the finalized state; Put must make it
	// writable again for the next Sum.
	ctx := context.Background()
	h, err := pool.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	mustWrite(t, h, []byte("xyz"))
	if _, err := h.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	pool.Put(h)

	for i := 0; i < 2; i++ {
		res, err := pool.Sum(ctx, []byte("abc"), 0)
		if err != nil {
			t.Fatalf("Sum %d failed: %v", i, err)
		}
		if got := hex.EncodeToString(res.Digest[:]); got != "2a4f1b9ca124234e5f791ed912d99306a608a48d42ac430a29c30361030eb37f" {
			t.Errorf("Sum %d digest mismatch: %s", i, got)
		}
	}
}
