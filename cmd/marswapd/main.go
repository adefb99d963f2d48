// marswapd is the Bitcoin/Marscoin atomic swap daemon. It recovers
// journaled swaps on startup and drives them against both chain nodes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/marswap-exchange/marswapd/internal/backend"
	"github.com/marswap-exchange/marswapd/internal/chain"
	"github.com/marswap-exchange/marswapd/internal/config"
	"github.com/marswap-exchange/marswapd/internal/storage"
	"github.com/marswap-exchange/marswapd/internal/swap"
	"github.com/marswap-exchange/marswapd/internal/wallet"
	"github.com/marswap-exchange/marswapd/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "marswapd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dataDir    = flag.String("datadir", "~/.marswap", "data directory")
		configPath = flag.String("config", "", "config file (default <datadir>/config.yaml)")
	)
	flag.Parse()

	path := *configPath
	if path == "" {
		path = filepath.Join(*dataDir, config.ConfigFileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}

	log := logging.New(&logging.Config{Level: cfg.Logging.Level})
	logging.SetDefault(log)

	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		return err
	}
	defer store.Close()

	primaryParams, err := chainParams(cfg, "BTC", cfg.PrimaryNetwork())
	if err != nil {
		return err
	}
	altParams, err := chainParams(cfg, "MARS", cfg.AltNetwork())
	if err != nil {
		return err
	}

	clients := make(map[string]backend.Client)
	for _, params := range []*chain.Params{primaryParams, altParams} {
		node, ok := cfg.Nodes[params.Symbol]
		if !ok {
			return fmt.Errorf("no node configured for %s", params.Symbol)
		}
		client := backend.NewJSONRPCClient(node.URL, node.User, node.Pass, node.RPCTimeout())
		clients[params.Symbol] = client
		defer client.Close()
	}

	coordinator, err := swap.NewCoordinator(&swap.Config{
		PrimaryChain: primaryParams,
		AltChain:     altParams,
		Clients:      clients,
		Journal:      store,
		Log:          log.Component("swap"),
	})
	if err != nil {
		return err
	}

	watcher := swap.NewWatcher(coordinator, cfg.PollInterval())
	defer watcher.Stop()

	// Resume swaps that were in flight when the daemon last stopped.
	pending, err := store.GetPendingSwaps()
	if err != nil {
		return err
	}
	for _, rec := range pending {
		coordinator.Track(rec)
		switch rec.Status {
		case swap.StatusInitialized:
			watcher.WatchFunding(rec)
		case swap.StatusFunded:
			watcher.WatchPreimage(rec)
		}
		log.Info("recovered swap", "swap_id", rec.ID, "status", rec.Status)
	}

	go func() {
		for event := range watcher.Events() {
			log.Info("preimage revealed", "swap_id", event.SwapID)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Wallet.MnemonicFile != "" {
		if err := startAutoRefund(ctx, cfg, coordinator, primaryParams, altParams, pending, log); err != nil {
			return err
		}
	}

	log.Info("marswapd started",
		"network", cfg.Network,
		"primary", primaryParams.Name,
		"alt", altParams.Name,
		"pending_swaps", len(pending),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())
	return nil
}

// startAutoRefund derives the daemon's swap keys from the configured
// mnemonic and periodically attempts refunds for expired swaps. Swaps whose
// contracts use other keys are skipped; the chain-side timelock check keeps
// premature refunds off the wire.
func startAutoRefund(ctx context.Context, cfg *config.Config, coordinator *swap.Coordinator, primaryParams, altParams *chain.Params, swaps []*swap.Record, log *logging.Logger) error {
	data, err := os.ReadFile(cfg.Wallet.MnemonicFile)
	if err != nil {
		return fmt.Errorf("failed to read mnemonic file: %w", err)
	}
	mnemonic := strings.TrimSpace(string(data))

	primaryKey, err := wallet.DeriveSwapKey(mnemonic, "", primaryParams, 0)
	if err != nil {
		return fmt.Errorf("primary swap key: %w", err)
	}
	altKey, err := wallet.DeriveSwapKey(mnemonic, "", altParams, 0)
	if err != nil {
		return fmt.Errorf("alt swap key: %w", err)
	}

	primaryWIF, err := primaryKey.WIF()
	if err != nil {
		return err
	}
	altWIF, err := altKey.WIF()
	if err != nil {
		return err
	}
	primaryAddr, _ := primaryKey.Address()
	altAddr, _ := altKey.Address()
	log.Info("wallet keys loaded", "primary_address", primaryAddr, "alt_address", altAddr)

	keys := swap.RefundKeys{PrimaryWIF: primaryWIF, AltWIF: altWIF}
	fees := swap.Fees{Primary: cfg.FeeFor(primaryParams.Symbol), Alt: cfg.FeeFor(altParams.Symbol)}

	go func() {
		ticker := time.NewTicker(cfg.PollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for _, rec := range swaps {
				if rec.Status != swap.StatusFunded && rec.Status != swap.StatusRefunded {
					continue
				}
				hadPrimary := rec.RefundTx.Primary != ""
				hadAlt := rec.RefundTx.Alt != ""
				if hadPrimary && hadAlt {
					continue
				}
				report, err := coordinator.HandleTimeout(ctx, rec, keys, fees)
				if err != nil {
					// Expected for swaps keyed elsewhere or flaky nodes.
					log.Debug("refund attempt failed", "swap_id", rec.ID, "error", err)
					continue
				}
				if (report.PrimaryTxID != "" && !hadPrimary) || (report.AltTxID != "" && !hadAlt) {
					log.Info("refund broadcast", "swap_id", rec.ID,
						"primary_txid", report.PrimaryTxID, "alt_txid", report.AltTxID)
				}
			}
		}
	}()
	return nil
}

// chainParams resolves chain parameters, applying any confirmation
// override from the config without touching the global registry.
func chainParams(cfg *config.Config, symbol string, network chain.Network) (*chain.Params, error) {
	base, ok := chain.Get(symbol, network)
	if !ok {
		return nil, fmt.Errorf("unsupported chain %s/%s", symbol, network)
	}
	params := *base
	if confs := cfg.Swap.Confirmations[symbol]; confs > 0 {
		params.Confirmations = confs
	}
	return &params, nil
}
