// Copyright 2025 Quantum-Geth Authors
// This file is part of the quantum-geth library.

package qpow

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// HeaderSize is the serialized block header length
const HeaderSize = 80

// Offsets of the mutable fields inside a serialized header
const (
	timeOffset  = 68
	bitsOffset  = 72
	nonceOffset = 76
)

// Header is a Bitcoin-layout block header. The proof-of-work hash is QHash of
// the 80 serialized bytes, evaluated at reference time Time.
type Header struct {
	Version    int32       `json:"version"`
	PrevBlock  common.Hash `json:"prevBlock"`
	MerkleRoot common.Hash `json:"merkleRoot"`
	Time       uint32      `json:"time"`
	Bits       uint32      `json:"bits"`
	Nonce      uint32      `json:"nonce"`
}

// Bytes returns the 80-byte little-endian serialization
func (h *Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(h.Version))
	copy(buf[4:36], h.PrevBlock[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[timeOffset:], h.Time)
	binary.LittleEndian.PutUint32(buf[bitsOffset:], h.Bits)
	binary.LittleEndian.PutUint32(buf[nonceOffset:], h.Nonce)
	return buf
}

// MarshalBinary implements encoding.BinaryMarshaler
func (h *Header) MarshalBinary() ([]byte, error) {
	return h.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidHeader, len(data), HeaderSize)
	}
	h.Version = int32(binary.LittleEndian.Uint32(data[0:]))
	copy(h.PrevBlock[:], data[4:36])
	copy(h.MerkleRoot[:], data[36:68])
	h.Time = binary.LittleEndian.Uint32(data[timeOffset:])
	h.Bits = binary.LittleEndian.Uint32(data[bitsOffset:])
	h.Nonce = binary.LittleEndian.Uint32(data[nonceOffset:])
	return nil
}

// ParseHeader decodes a serialized header
func ParseHeader(data []byte) (*Header, error) {
	h := new(Header)
	if err := h.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return h, nil
}

// ParseHeaderHex decodes a hex-encoded header, with or without 0x prefix
func ParseHeaderHex(s string) (*Header, error) {
	return ParseHeader(common.FromHex(s))
}

// ID returns the double SHA-256 of the serialized header. It identifies the
// header independently of its proof-of-work hash.
func (h *Header) ID() common.Hash {
	first := sha256.Sum256(h.Bytes())
	return sha256.Sum256(first[:])
}

// SetNonce patches the nonce of a serialized header in place
func SetNonce(header []byte, nonce uint32) {
	binary.LittleEndian.PutUint32(header[nonceOffset:], nonce)
}
