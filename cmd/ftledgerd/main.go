// FT ledger daemon.
//
// Usage:
//
//	ftledgerd [--datadir=... --nats --rpc-port=...] Run the ledger
//	ftledgerd --help                                Show help
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/ftledger/config"
	klog "github.com/Klingon-tech/ftledger/internal/log"
	"github.com/Klingon-tech/ftledger/internal/node"
)

func main() {
	cfg, _, err := config.Load(os.Args[1:])
	switch {
	case errors.Is(err, flag.ErrHelp):
		config.PrintUsage(os.Stdout)
		return
	case errors.Is(err, config.ErrVersion):
		fmt.Printf("ftledgerd %s\n", config.Version)
		return
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := klog.WithComponent("daemon")
	if err := n.Start(); err != nil {
		n.Stop()
		klog.Fatal().Err(err).Msg("Failed to start node")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	n.Stop()
}
