// Command anchor runs the L2→L1 operation anchor as a standalone process:
// it recovers any in-flight operations from durable storage, then drives
// the FIFO queue of commit/verify operations onto the settlement chain
// until terminated.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/providenetwork/zksync/internal/anchor"
	"github.com/providenetwork/zksync/internal/config"
	"github.com/providenetwork/zksync/internal/ethchain"
	"github.com/providenetwork/zksync/internal/metrics"
	"github.com/providenetwork/zksync/internal/store"
)

func main() {
	handler := log.NewTerminalHandler(os.Stderr, false)
	logger := log.NewLogger(handler)
	log.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Crit("anchor exited with error", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger) error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parsing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	privKeyHex, err := os.ReadFile(cfg.Chain.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("reading signing key: %w", err)
	}
	privKey, err := crypto.HexToECDSA(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(privKeyHex)), "0x")))
	if err != nil {
		return fmt.Errorf("parsing signing key: %w", err)
	}

	chain, err := ethchain.Dial(ctx, ethchain.Config{
		RPCURL:                cfg.Chain.RPCURL,
		ContractAddr:          common.HexToAddress(cfg.Chain.ContractAddr),
		PrivateKey:            privKey,
		ChainID:               cfg.Chain.ChainIDBig(),
		MaxWithdrawalsPerCall: cfg.Chain.MaxWithdrawalsPerCall,
	})
	if err != nil {
		return fmt.Errorf("connecting to settlement chain: %w", err)
	}
	defer chain.Close()
	logger.Info("connected to settlement chain", "rpc_url", cfg.Chain.RPCURL, "contract", chain.Contract())

	opStore, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening operation store: %w", err)
	}
	defer closeStore()

	reg := metrics.New(cfg.Namespace)

	anchorCfg := anchor.DefaultConfig()
	anchorCfg.TxPollPeriod = cfg.TxPollPeriod
	anchorCfg.MaxWithdrawalsToCompleteInACall = cfg.Chain.MaxWithdrawalsPerCall
	anchorCfg.Lifecycle.ExpectedWaitTimeBlocks = cfg.Lifecycle.ExpectedWaitTimeBlocks
	anchorCfg.Lifecycle.WaitConfirmations = cfg.Lifecycle.WaitConfirmations
	anchorCfg.Lifecycle.GasPriceScaleNum = cfg.Lifecycle.GasPriceScaleNum
	anchorCfg.Lifecycle.GasPriceScaleDen = cfg.Lifecycle.GasPriceScaleDen

	inbound := make(chan anchor.Operation, 64)
	outbound := make(chan anchor.Operation, 64)

	a := anchor.New(anchorCfg, chain, opStore, inbound, outbound, logger, reg)
	if err := a.Recover(ctx); err != nil {
		return fmt.Errorf("recovering pending operations: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	stopAnchor := runSupervised(ctx, logger, "anchor", a.Run)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	httpServer.Close()
	stopAnchor()
	return nil
}

func openStore(cfg config.Store) (anchor.OperationStore, func() error, error) {
	switch cfg.Driver {
	case "memory":
		s := store.NewMemStore()
		return s, func() error { return nil }, nil
	case "sqlite", "":
		s, err := store.OpenSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// runSupervised runs fn on its own named goroutine, mirroring the
// named-thread-plus-panic-sentinel pattern used to supervise the eth sender
// in the original implementation: a recovered panic is logged and then
// treated as fatal, since by the time anything panics out of the anchor
// loop (see internal/anchor.driveHead's ErrInvariantViolation handling) the
// process is in a state spec.md §7 says must not be allowed to keep
// running. os.Exit here bypasses the caller's signal-triggered shutdown
// path entirely, which is the point: there is no graceful shutdown for a
// programming-level bug.
func runSupervised(ctx context.Context, logger log.Logger, name string, fn func(ctx context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Crit("supervised goroutine panicked, aborting process", "name", name, "panic", r)
				os.Exit(1)
			}
		}()
		fn(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
