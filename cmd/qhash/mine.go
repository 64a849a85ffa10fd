package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/fourtytwo42/qhash/consensus/qpow"
	"github.com/fourtytwo42/qhash/crypto/qhash"
	"github.com/fourtytwo42/qhash/pkg/journal"
	"github.com/fourtytwo42/qhash/pkg/miner"
	"github.com/fourtytwo42/qhash/pkg/solo"
	"github.com/fourtytwo42/qhash/pkg/utils"
)

func newMineCommand(c *cli) *cobra.Command {
	var (
		headerHex string
		prevBlock string
		merkle    string
		bits      string
		threads   int
		blocks    int
		submitURL string
	)
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Search for block header nonces that satisfy the target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var header qpow.Header
			if headerHex != "" {
				h, err := qpow.ParseHeaderHex(headerHex)
				if err != nil {
					return err
				}
				header = *h
			} else {
				header = qpow.Header{
					Version:    0x20000000,
					PrevBlock:  common.HexToHash(prevBlock),
					MerkleRoot: common.HexToHash(merkle),
					Time:       uint32(time.Now().Unix()),
					Bits:       c.cfg.PowLimitBits(),
				}
			}
			if bits != "" {
				b, err := utils.ParseUint32(bits)
				if err != nil {
					return err
				}
				header.Bits = b
			}
			if threads > 0 {
				c.cfg.Mining.Threads = threads
			}

			backend, err := c.backend()
			if err != nil {
				return err
			}
			var db *journal.Journal
			if c.cfg.Journal.Path != "" {
				if err := utils.EnsureDirectoryExists(filepath.Dir(c.cfg.Journal.Path)); err != nil {
					return err
				}
				if db, err = journal.Open(c.cfg.Journal.Path); err != nil {
					return err
				}
				defer db.Close()
			}

			m, err := miner.NewCPUMiner(miner.Config{
				Threads:       c.cfg.Mining.Threads,
				Backend:       backend,
				Journal:       db,
				StatsInterval: c.cfg.StatsInterval(),
			})
			if err != nil {
				return err
			}
			defer m.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var node *solo.Client
			if submitURL != "" {
				if node, err = solo.Dial(ctx, submitURL); err != nil {
					return err
				}
				defer node.Close()
			}

			fmt.Println("🚀 QHash Miner v" + VERSION)
			fmt.Printf("⚛️  %d-qubit, %d-layer circuit on %s\n", qhash.NumQubits, qhash.NumLayers, backend.Name())
			fmt.Printf("🧵 Threads: %d\n", m.Threads())
			fmt.Printf("🎯 Bits: %#08x (difficulty %.4f)\n", header.Bits, qpow.Difficulty(header.Bits))
			if node != nil {
				fmt.Printf("🔗 Submitting to %s\n", submitURL)
			}
			fmt.Println("")

			for i := 0; blocks <= 0 || i < blocks; i++ {
				work, err := miner.NewWork(header, c.cfg.PowLimit())
				if err != nil {
					return err
				}
				sol, err := m.Mine(ctx, work)
				if err != nil {
					if ctx.Err() != nil {
						log.Info("🛑 Mining stopped")
						return nil
					}
					return err
				}
				fmt.Printf("✅ Block %d: nonce=%d hash=%s id=%s\n", i+1, sol.Nonce, sol.PowHash.Hex(), sol.Header.ID().Hex())
				if node != nil {
					if _, err := node.Submit(ctx, sol); err != nil {
						return err
					}
				}

				// Chain the next template onto the solved header.
				header.PrevBlock = sol.Header.ID()
				header.Time = uint32(time.Now().Unix())
				header.Nonce = 0
			}

			stats := m.Stats()
			fmt.Printf("📊 %d solutions, %d hashes, %s over %s\n", stats.Solutions, stats.Hashes,
				utils.FormatHashrate(stats.Hashrate), utils.FormatDuration(stats.Uptime))
			if node != nil {
				fmt.Printf("🔗 Node accepted %d, rejected %d (%.1f%%)\n", node.Accepted(), node.Rejected(), node.AcceptanceRate())
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&headerHex, "header", "", "80-byte header template in hex")
	flags.StringVar(&prevBlock, "prev", "", "Previous block hash for a generated template")
	flags.StringVar(&merkle, "merkle", "", "Merkle root for a generated template")
	flags.StringVar(&bits, "bits", "", "Compact target override")
	flags.IntVar(&threads, "threads", 0, "Mining threads (default from config)")
	flags.IntVar(&blocks, "blocks", 1, "Blocks to mine, 0 runs until interrupted")
	flags.StringVar(&submitURL, "submit", "", "Node RPC URL to submit solutions to")
	return cmd
}

func newBenchCommand(c *cli) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure single-thread QHash throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := c.backend()
			if err != nil {
				return err
			}
			h, err := qhash.New(backend, 0)
			if err != nil {
				return err
			}
			defer h.Close()

			buf := make([]byte, qpow.HeaderSize)
			overrides := 0
			start := time.Now()
			for i := 0; i < count; i++ {
				qpow.SetNonce(buf, uint32(i))
				if err := h.Reset(); err != nil {
					return err
				}
				if _, err := h.Write(buf); err != nil {
					return err
				}
				res, err := h.FinalizeDetailed()
				if err != nil {
					return err
				}
				if res.Overridden {
					overrides++
				}
			}
			elapsed := time.Since(start)

			fmt.Printf("⚡ %d hashes in %s on %s\n", count, utils.FormatDuration(elapsed), backend.Name())
			fmt.Printf("   %s per thread\n", utils.FormatHashrate(float64(count)/elapsed.Seconds()))
			if overrides > 0 {
				fmt.Printf("   %d overridden digests\n", overrides)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 256, "Number of hashes")
	return cmd
}
