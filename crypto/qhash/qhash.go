// Copyright 2025 Quantum-Geth Authors
// This file is part of the quantum-geth library.

package qhash

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"github.com/fourtytwo42/qhash/pkg/quantum"
)

type hasherState uint8

const (
	stateEmpty hasherState = iota
	stateAccumulating
	stateFinalized
)

// Result carries a finalized digest together with its intermediate values.
type Result struct {
	Digest       [Size]byte // final output, all 0xFF when Overridden
	Input        [Size]byte // first-pass SHA-256 of the written bytes
	Expectations []float64  // per-qubit Pauli-Z expectations
	Encoded      []byte     // Q0.15 little-endian encodings, qubit order
	Zeroes       int        // zero bytes in Encoded
	Overridden   bool
	Rule         OverrideRule // rule that forced the override, if any
}

// Hasher is one QHash instance. It owns a SHA-256 accumulator and a
// simulation session; it is not safe for concurrent use.
//
// The protocol is Write* -> Finalize -> Reset. Write or Finalize after
// Finalize fails with ErrProtocolMisuse until Reset is called.
type Hasher struct {
	time    uint32
	rules   []OverrideRule
	ctx     hash.Hash
	session quantum.Session
	state   hasherState
}

// New creates a hasher that evaluates the override rules at the given
// reference time. A nil backend selects the dense state-vector backend.
func New(backend quantum.Backend, time uint32) (*Hasher, error) {
	if backend == nil {
		backend = quantum.NewStateVectorBackend()
	}
	session, err := backend.NewSession(NumQubits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	return &Hasher{
		time:    time,
		rules:   DefaultOverrideRules(),
		ctx:     sha256.New(),
		session: session,
	}, nil
}

// Sum computes QHash(data) with a throwaway hasher.
func Sum(backend quantum.Backend, data []byte, time uint32) ([Size]byte, error) {
	h, err := New(backend, time)
	if err != nil {
		return [Size]byte{}, err
	}
	defer h.Close()

	if _, err := h.Write(data); err != nil {
		return [Size]byte{}, err
	}
	return h.Finalize()
}

// Time returns the reference time used by the override rules.
func (h *Hasher) Time() uint32 {
	return h.time
}

// SetTime changes the reference time for the next Finalize.
func (h *Hasher) SetTime(time uint32) {
	h.time = time
}

// SetOverrideRules replaces the override rule table.
func (h *Hasher) SetOverrideRules(rules []OverrideRule) {
	h.rules = rules
}

// Write absorbs p into the first-pass digest.
func (h *Hasher) Write(p []byte) (int, error) {
	if h.session == nil {
		return 0, fmt.Errorf("%w: write after close", ErrProtocolMisuse)
	}
	if h.state == stateFinalized {
		return 0, fmt.Errorf("%w: write after finalize", ErrProtocolMisuse)
	}
	h.state = stateAccumulating
	return h.ctx.Write(p)
}

// Finalize returns the QHash digest of everything written since the last Reset.
func (h *Hasher) Finalize() ([Size]byte, error) {
	res, err := h.FinalizeDetailed()
	if err != nil {
		return [Size]byte{}, err
	}
	return res.Digest, nil
}

// FinalizeInto writes the digest into out, which must hold at least Size
// bytes. Nothing is written on error.
func (h *Hasher) FinalizeInto(out []byte) error {
	if len(out) < Size {
		return fmt.Errorf("qhash: output buffer too small (%d < %d)", len(out), Size)
	}
	res, err := h.FinalizeDetailed()
	if err != nil {
		return err
	}
	copy(out, res.Digest[:])
	return nil
}

// FinalizeDetailed finalizes the hasher and returns the digest along with
// every intermediate value.
func (h *Hasher) FinalizeDetailed() (*Result, error) {
	if h.session == nil {
		return nil, fmt.Errorf("%w: finalize after close", ErrProtocolMisuse)
	}
	if h.state == stateFinalized {
		return nil, fmt.Errorf("%w: finalize called twice without reset", ErrProtocolMisuse)
	}
	h.state = stateFinalized

	res := new(Result)
	h.ctx.Sum(res.Input[:0])

	program, err := BuildCircuit(SplitNibbles(res.Input[:]), NumQubits, NumLayers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	exps, err := h.session.Run(program)
	if err != nil {
		if errors.Is(err, quantum.ErrResource) {
			return nil, fmt.Errorf("%w: %w", ErrResource, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if len(exps) != NumQubits {
		return nil, fmt.Errorf("%w: backend returned %d expectations, want %d", ErrBackend, len(exps), NumQubits)
	}
	res.Expectations = exps
	res.Encoded, res.Zeroes = EncodeExpectations(exps)

	if rule, ok := matchOverride(h.rules, res.Zeroes, EncodedSize, h.time); ok {
		for i := range res.Digest {
			res.Digest[i] = 0xFF
		}
		res.Overridden = true
		res.Rule = rule
		return res, nil
	}

	second := sha256.New()
	second.Write(res.Input[:])
	second.Write(res.Encoded)
	second.Sum(res.Digest[:0])
	return res, nil
}

// Reset discards all written bytes and returns the session to the zero state.
func (h *Hasher) Reset() error {
	if h.session == nil {
		return fmt.Errorf("%w: reset after close", ErrProtocolMisuse)
	}
	h.ctx.Reset()
	h.state = stateEmpty
	if err := h.session.Reset(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return nil
}

// Close releases the simulation session. The hasher is unusable afterwards.
func (h *Hasher) Close() error {
	if h.session == nil {
		return nil
	}
	err := h.session.Close()
	h.session = nil
	return err
}
