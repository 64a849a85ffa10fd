// Copyright 2025 Quantum-Geth Authors
// This file is part of the quantum-geth library.

// Package qhash implements the QHash proof-of-work digest: a SHA-256 digest
// whose nibbles parameterize a fixed 16-qubit circuit, the circuit's Pauli-Z
// expectations quantized to Q0.15 fixed point and re-absorbed into a second
// SHA-256 pass seeded with the first digest.
package qhash

import (
	"crypto/sha256"
	"errors"
)

const (
	// Size is the QHash output width in bytes
	Size = sha256.Size

	// NumQubits is the fixed circuit width
	NumQubits = 16

	// NumLayers is the number of rotation/entangling layers
	NumLayers = 2

	// EncodedSize is the number of fixed-point bytes absorbed by the second pass
	EncodedSize = NumQubits * FixedSize
)

var (
	// ErrResource is returned when the simulation session cannot be acquired
	ErrResource = errors.New("qhash: simulation resource error")

	// ErrBackend is returned when the simulation backend fails during finalize
	ErrBackend = errors.New("qhash: simulation backend error")

	// ErrProtocolMisuse is returned for Write/Finalize after Finalize without
	// Reset, or for any use after Close
	ErrProtocolMisuse = errors.New("qhash: protocol misuse")

	// ErrEmptyNibbles is returned when a circuit is built from no data
	ErrEmptyNibbles = errors.New("qhash: empty nibble sequence")

	// errPoolClosed is returned by Pool.Get after Close
	errPoolClosed = errors.New("qhash: pool closed")
)
