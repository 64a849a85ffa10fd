package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/fourtytwo42/qhash/consensus/qpow"
	"github.com/fourtytwo42/qhash/crypto/qhash"
	"github.com/fourtytwo42/qhash/pkg/utils"
)

func newHashCommand(c *cli) *cobra.Command {
	var (
		refTime string
		isHex   bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "hash [data]",
		Short: "Compute QHash of data (stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 1 {
				data = []byte(args[0])
			} else {
				var err error
				if data, err = io.ReadAll(os.Stdin); err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
			}
			if isHex {
				decoded, err := hexutil.Decode(ensureHexPrefix(strings.TrimSpace(string(data))))
				if err != nil {
					return fmt.Errorf("invalid hex input: %w", err)
				}
				data = decoded
			}

			ref := uint32(time.Now().Unix())
			if refTime != "" {
				var err error
				if ref, err = utils.ParseUint32(refTime); err != nil {
					return err
				}
			}

			backend, err := c.backend()
			if err != nil {
				return err
			}
			h, err := qhash.New(backend, ref)
			if err != nil {
				return err
			}
			defer h.Close()

			if _, err := h.Write(data); err != nil {
				return err
			}
			res, err := h.FinalizeDetailed()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, hex.EncodeToString(res.Digest[:]))

			if verbose {
				fmt.Fprintf(out, "  Time:       %d\n", ref)
				fmt.Fprintf(out, "  SHA-256:    %x\n", res.Input)
				for i, e := range res.Expectations {
					fmt.Fprintf(out, "  <Z%-2d>      %+.6f\n", i, e)
				}
				fmt.Fprintf(out, "  Encoded:    %x\n", res.Encoded)
				fmt.Fprintf(out, "  Zero bytes: %d/%d\n", res.Zeroes, qhash.EncodedSize)
				if res.Overridden {
					fmt.Fprintf(out, "  ⚠️  Overridden by rule active since %d\n", res.Rule.Activation)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refTime, "time", "", "Reference time for the override rules (default now)")
	cmd.Flags().BoolVar(&isHex, "hex", false, "Treat the input as hex")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print intermediate values")
	return cmd
}

func newPowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "pow <header-hex>",
		Short: "Verify the proof-of-work of an 80-byte block header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, err := qpow.ParseHeaderHex(args[0])
			if err != nil {
				return err
			}
			backend, err := c.backend()
			if err != nil {
				return err
			}
			engine, err := qpow.New(c.cfg.EngineConfig(), backend)
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := context.Background()
			powHash, err := engine.PowHash(ctx, header)
			if err != nil {
				return err
			}
			fmt.Printf("🔗 Header:     %s\n", header.ID().Hex())
			fmt.Printf("⚛️  PoW hash:   %s\n", powHash.Hex())
			fmt.Printf("🎯 Difficulty: %.4f\n", qpow.Difficulty(header.Bits))

			if err := engine.VerifyHeader(ctx, header); err != nil {
				fmt.Printf("❌ Invalid: %v\n", err)
				return err
			}
			fmt.Println("✅ Valid proof-of-work")
			return nil
		},
	}
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
