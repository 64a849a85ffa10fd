package qpow

import "errors"

var (
	// ErrInvalidHeader is returned for headers that cannot be decoded
	ErrInvalidHeader = errors.New("invalid block header")

	// ErrInvalidBits is returned when the compact target is out of range
	ErrInvalidBits = errors.New("invalid proof-of-work bits")

	// ErrNegativeTarget is returned when compact bits encode a negative target
	ErrNegativeTarget = errors.New("negative target")

	// ErrTargetOverflow is returned when compact bits exceed 256 bits
	ErrTargetOverflow = errors.New("target overflows 256 bits")

	// ErrHighHash is returned when the proof-of-work hash is above target
	ErrHighHash = errors.New("proof-of-work hash above target")

	// errEngineClosed is returned after Close
	errEngineClosed = errors.New("qpow engine closed")
)
