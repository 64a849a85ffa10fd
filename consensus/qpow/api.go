package qpow

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// APIs returns the RPC services offered by the engine
func (e *Engine) APIs() []rpc.API {
	return []rpc.API{
		{
			Namespace: "qhash",
			Version:   "1.0",
			Service:   &API{e},
			Public:    true,
		},
	}
}

// RegisterAPIs registers the engine's services on an RPC server
func (e *Engine) RegisterAPIs(srv *rpc.Server) error {
	for _, api := range e.APIs() {
		if err := srv.RegisterName(api.Namespace, api.Service); err != nil {
			return err
		}
	}
	return nil
}

// API exposes QHash computation and header validation over JSON-RPC
type API struct {
	engine *Engine
}

// HashResult is the JSON form of a QHash evaluation
type HashResult struct {
	Digest       common.Hash   `json:"digest"`
	Input        common.Hash   `json:"input"`
	Expectations []float64     `json:"expectations"`
	Encoded      hexutil.Bytes `json:"encoded"`
	Zeroes       int           `json:"zeroes"`
	Overridden   bool          `json:"overridden"`
}

// VerifyResult is the outcome of qhash_verifyHeader
type VerifyResult struct {
	ID      common.Hash `json:"id"`
	PowHash common.Hash `json:"powHash"`
	Valid   bool        `json:"valid"`
	Reason  string      `json:"reason,omitempty"`
}

// Hash computes QHash(data) at the given reference time
func (api *API) Hash(ctx context.Context, data hexutil.Bytes, time hexutil.Uint64) (*HashResult, error) {
	ref, err := toUint32(time, "reference time")
	if err != nil {
		return nil, err
	}
	res, err := api.engine.Hash(ctx, data, ref)
	if err != nil {
		return nil, err
	}
	return &HashResult{
		Digest:       common.Hash(res.Digest),
		Input:        common.Hash(res.Input),
		Expectations: res.Expectations,
		Encoded:      res.Encoded,
		Zeroes:       res.Zeroes,
		Overridden:   res.Overridden,
	}, nil
}

// PowHash returns the proof-of-work hash of a serialized header
func (api *API) PowHash(ctx context.Context, header hexutil.Bytes) (common.Hash, error) {
	h, err := ParseHeader(header)
	if err != nil {
		return common.Hash{}, err
	}
	return api.engine.PowHash(ctx, h)
}

// VerifyHeader checks a serialized header's proof-of-work. Consensus
// rejections are reported in the result; operational failures as errors.
func (api *API) VerifyHeader(ctx context.Context, header hexutil.Bytes) (*VerifyResult, error) {
	h, err := ParseHeader(header)
	if err != nil {
		return nil, err
	}
	hash, err := api.engine.PowHash(ctx, h)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{ID: h.ID(), PowHash: hash, Valid: true}
	if err := api.engine.checkPoW(h, hash); err != nil {
		res.Valid = false
		res.Reason = err.Error()
	}
	return res, nil
}

// Difficulty returns the difficulty encoded by compact bits
func (api *API) Difficulty(bits hexutil.Uint64) (float64, error) {
	b, err := toUint32(bits, "bits")
	if err != nil {
		return 0, err
	}
	return Difficulty(b), nil
}

// Target returns the 256-bit target encoded by compact bits
func (api *API) Target(bits hexutil.Uint64) (string, error) {
	b, err := toUint32(bits, "bits")
	if err != nil {
		return "", err
	}
	target, err := CompactToTarget(b)
	if err != nil {
		return "", err
	}
	return target.Hex(), nil
}

// Hashrate returns the engine's average QHash evaluations per second
func (api *API) Hashrate() float64 {
	return api.engine.Hashrate()
}

// Stats returns the engine's verification counters
func (api *API) Stats() Stats {
	return api.engine.Stats()
}

// toUint32 narrows a JSON quantity that must fit a header field
func toUint32(v hexutil.Uint64, what string) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%s %d overflows uint32", what, uint64(v))
	}
	return uint32(v), nil
}
