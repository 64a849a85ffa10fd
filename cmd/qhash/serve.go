package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/spf13/cobra"

	"github.com/fourtytwo42/qhash/consensus/qpow"
	"github.com/fourtytwo42/qhash/pkg/utils"
)

func newServeCommand(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the qhash JSON-RPC namespace over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.RPC.HTTPAddr = addr
			}
			if c.cfg.RPC.HTTPAddr == "" {
				return errors.New("no rpc.http_addr configured")
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

			srv := rpc.NewServer()
			defer srv.Stop()
			if err := engine.RegisterAPIs(srv); err != nil {
				return fmt.Errorf("failed to register APIs: %w", err)
			}

			httpSrv := &http.Server{
				Addr:              c.cfg.RPC.HTTPAddr,
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() { errc <- httpSrv.ListenAndServe() }()

			log.Info("🌐 RPC server started", "url", "http://"+c.cfg.RPC.HTTPAddr, "network", c.cfg.Network,
				"workers", c.cfg.Consensus.Workers)

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigc)

			start := time.Now()
			select {
			case err := <-errc:
				return err
			case <-sigc:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			stats := engine.Stats()
			log.Info("🛑 Shutting down", "uptime", utils.FormatDuration(time.Since(start)),
				"verified", stats.Verified, "rejected", stats.Rejected, "hashes", stats.Hashes)
			return httpSrv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Run: func(cmd *cobra.Command, _ []string) {
			c.cfg.Print()
		},
	}, &cobra.Command{
		Use:   "init <file>",
		Short: "Write the effective configuration as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := c.cfg.Save(args[0]); err != nil {
				return err
			}
			fmt.Printf("✅ Configuration written to %s\n", args[0])
			return nil
		},
	}, &cobra.Command{
		Use:   "sysinfo",
		Short: "Print host information used for thread defaults",
		Run: func(cmd *cobra.Command, _ []string) {
			for k, v := range utils.GetSystemInfo() {
				fmt.Printf("  %s: %v\n", k, v)
			}
		},
	})
	return cmd
}
