// Package solo submits locally mined solutions to a qhash node, which
// checks them with its own engine before they are reported as accepted.
package solo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fourtytwo42/qhash/consensus/qpow"
	"github.com/fourtytwo42/qhash/pkg/miner"
)

// Client talks to the qhash RPC namespace of a node
type Client struct {
	rpc *rpc.Client
	log log.Logger

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// Dial connects to a node over HTTP, WebSocket or IPC
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node %s: %w", url, err)
	}
	return NewClient(c), nil
}

// NewClient wraps an existing RPC connection
func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c, log: log.New("module", "solo")}
}

// Hash asks the node for QHash(data) at the given reference time
func (c *Client) Hash(ctx context.Context, data []byte, time uint32) (*qpow.HashResult, error) {
	var res qpow.HashResult
	if err := c.rpc.CallContext(ctx, &res, "qhash_hash", hexutil.Bytes(data), hexutil.Uint64(time)); err != nil {
		return nil, err
	}
	return &res, nil
}

// PowHash asks the node for the proof-of-work hash of a header
func (c *Client) PowHash(ctx context.Context, header *qpow.Header) (common.Hash, error) {
	var hash common.Hash
	err := c.rpc.CallContext(ctx, &hash, "qhash_powHash", hexutil.Bytes(header.Bytes()))
	return hash, err
}

// VerifyHeader asks the node to validate a header
func (c *Client) VerifyHeader(ctx context.Context, header *qpow.Header) (*qpow.VerifyResult, error) {
	var res qpow.VerifyResult
	if err := c.rpc.CallContext(ctx, &res, "qhash_verifyHeader", hexutil.Bytes(header.Bytes())); err != nil {
		return nil, err
	}
	return &res, nil
}

// Submit sends a solution to the node. It returns whether the node accepted
// it; a mismatch between the local and remote hash is logged as an error.
func (c *Client) Submit(ctx context.Context, sol *miner.Solution) (bool, error) {
	res, err := c.VerifyHeader(ctx, &sol.Header)
	if err != nil {
		return false, fmt.Errorf("failed to submit solution: %w", err)
	}
	if res.PowHash != sol.PowHash {
		c.log.Error("Node computed a different hash", "nonce", sol.Nonce, "local", sol.PowHash, "remote", res.PowHash)
	}
	if !res.Valid {
		c.rejected.Add(1)
		c.log.Warn("❌ Solution rejected", "nonce", sol.Nonce, "reason", res.Reason)
		return false, nil
	}
	c.accepted.Add(1)
	c.log.Info("✅ Solution accepted", "id", res.ID, "nonce", sol.Nonce)
	return true, nil
}

// Accepted returns the number of accepted submissions
func (c *Client) Accepted() uint64 {
	return c.accepted.Load()
}

// Rejected returns the number of rejected submissions
func (c *Client) Rejected() uint64 {
	return c.rejected.Load()
}

// AcceptanceRate returns the share acceptance rate as a percentage
func (c *Client) AcceptanceRate() float64 {
	accepted, rejected := c.accepted.Load(), c.rejected.Load()
	if accepted+rejected == 0 {
		return 0.0
	}
	return float64(accepted) / float64(accepted+rejected) * 100.0
}

// Close closes the connection
func (c *Client) Close() {
	c.rpc.Close()
}
