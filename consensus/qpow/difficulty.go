// Copyright 2025 Quantum-Geth Authors
// This file is part of the quantum-geth library.

// Bitcoin-style compact targets and retargeting for QHash proof-of-work

package qpow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

const (
	// TargetAdjustmentFactor bounds a single retarget step (like Bitcoin)
	TargetAdjustmentFactor = 4

	// MainPowLimitBits is the compact form of the easiest mainnet target
	MainPowLimitBits = 0x1d00ffff

	// RegtestPowLimitBits is the compact form of the easiest regtest target
	RegtestPowLimitBits = 0x207fffff
)

var (
	// MainPowLimit is 0x00000000ffff0000...0000
	MainPowLimit = new(uint256.Int).Lsh(uint256.NewInt(0xffff), 208)

	// RegtestPowLimit is 0x7fffff0000...0000
	RegtestPowLimit = new(uint256.Int).Lsh(uint256.NewInt(0x7fffff), 232)
)

// CompactToTarget expands compact bits into a 256-bit target
func CompactToTarget(bits uint32) (*uint256.Int, error) {
	size := bits >> 24
	word := uint64(bits & 0x007fffff)

	target := new(uint256.Int)
	if size <= 3 {
		word >>= 8 * (3 - size)
		target.SetUint64(word)
	} else {
		if word != 0 && (size > 34 || (word > 0xff && size > 33) || (word > 0xffff && size > 32)) {
			return nil, fmt.Errorf("%w: bits %#08x", ErrTargetOverflow, bits)
		}
		target.SetUint64(word)
		target.Lsh(target, uint(8*(size-3)))
	}
	if word != 0 && bits&0x00800000 != 0 {
		return nil, fmt.Errorf("%w: bits %#08x", ErrNegativeTarget, bits)
	}
	return target, nil
}

// TargetToCompact encodes a target in compact form
func TargetToCompact(target *uint256.Int) uint32 {
	size := uint32((target.BitLen() + 7) / 8)

	var compact uint64
	if size <= 3 {
		compact = target.Uint64() << (8 * (3 - size))
	} else {
		compact = new(uint256.Int).Rsh(target, uint(8*(size-3))).Uint64()
	}
	// The sign bit is set; move one byte into the exponent.
	if compact&0x00800000 != 0 {
		compact >>= 8
		size++
	}
	return uint32(compact) | size<<24
}

// HashToBig interprets a proof-of-work hash as a little-endian integer
func HashToBig(hash common.Hash) *uint256.Int {
	var be [32]byte
	for i := range hash {
		be[31-i] = hash[i]
	}
	return new(uint256.Int).SetBytes32(be[:])
}

// TargetFromBits decodes bits and checks the target is non-zero and no
// easier than powLimit.
func TargetFromBits(bits uint32, powLimit *uint256.Int) (*uint256.Int, error) {
	target, err := CompactToTarget(bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBits, err)
	}
	if target.IsZero() {
		return nil, fmt.Errorf("%w: zero target", ErrInvalidBits)
	}
	if target.Gt(powLimit) {
		return nil, fmt.Errorf("%w: target above pow limit", ErrInvalidBits)
	}
	return target, nil
}

// CheckProofOfWork verifies that powHash satisfies the target encoded in bits
func CheckProofOfWork(powHash common.Hash, bits uint32, powLimit *uint256.Int) error {
	target, err := TargetFromBits(bits, powLimit)
	if err != nil {
		return err
	}
	if HashToBig(powHash).Gt(target) {
		return ErrHighHash
	}
	return nil
}

// Difficulty returns the floating-point difficulty of bits relative to 0x1d00ffff
func Difficulty(bits uint32) float64 {
	shift := (bits >> 24) & 0xff
	mantissa := bits & 0x00ffffff
	if mantissa == 0 {
		return 0
	}

	diff := float64(0x0000ffff) / float64(mantissa)
	for ; shift < 29; shift++ {
		diff *= 256.0
	}
	for ; shift > 29; shift-- {
		diff /= 256.0
	}
	return diff
}

// NextWorkRequired implements Bitcoin-style retargeting: the previous target
// is scaled by actualSpan/targetSpan, clamped to a factor of 4 either way and
// capped at powLimit.
func NextWorkRequired(lastBits uint32, actualSpan, targetSpan int64, powLimit *uint256.Int) (uint32, error) {
	if targetSpan <= 0 {
		return 0, fmt.Errorf("invalid target timespan %d", targetSpan)
	}
	if actualSpan < targetSpan/TargetAdjustmentFactor {
		actualSpan = targetSpan / TargetAdjustmentFactor
	}
	if actualSpan > targetSpan*TargetAdjustmentFactor {
		actualSpan = targetSpan * TargetAdjustmentFactor
	}

	target, err := CompactToTarget(lastBits)
	if err != nil {
		return 0, err
	}
	next, overflow := new(uint256.Int).MulDivOverflow(target,
		uint256.NewInt(uint64(actualSpan)), uint256.NewInt(uint64(targetSpan)))
	if overflow || next.Gt(powLimit) {
		next.Set(powLimit)
	}
	nextBits := TargetToCompact(next)

	log.Debug("Retargeted proof-of-work",
		"oldBits", fmt.Sprintf("%#08x", lastBits),
		"newBits", fmt.Sprintf("%#08x", nextBits),
		"ratio", float64(actualSpan)/float64(targetSpan))

	return nextBits, nil
}
