package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/nextprice-keeper/params"
	"github.com/uhyunpark/nextprice-keeper/pkg/api"
	"github.com/uhyunpark/nextprice-keeper/pkg/chain"
	"github.com/uhyunpark/nextprice-keeper/pkg/crypto"
	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
	"github.com/uhyunpark/nextprice-keeper/pkg/metrics"
	"github.com/uhyunpark/nextprice-keeper/pkg/storage"
	"github.com/uhyunpark/nextprice-keeper/pkg/util"
)

// In-memory journal cap when JOURNAL_PATH is unset.
const memoryJournalEntries = 10_000

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Service.LogFile, cfg.Service.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Service.LogFile, "level", cfg.Service.LogLevel)

	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("invalid_config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("keeper_stopped", "err", err)
	}
	sugar.Info("shutdown complete")
}

func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) error {
	signer, err := crypto.FromPrivateKeyHex(cfg.Chain.PrivateKey)
	if err != nil {
		return err
	}

	// ---- Chain ----
	rpc, err := ethclient.DialContext(ctx, cfg.Chain.Endpoint())
	if err != nil {
		return err
	}
	defer rpc.Close()

	client, err := chain.NewClient(ctx, rpc, cfg.Chain.RateLimit, cfg.Chain.RateBurst)
	if err != nil {
		return err
	}
	sugar.Infow("chain_connected",
		"network", cfg.Chain.Network,
		"chain_id", client.ChainID.String(),
		"keeper", signer.Address().Hex())

	addrs := cfg.Chain.Markets
	if len(addrs) == 0 {
		addrs, err = chain.DiscoverMarkets(ctx, client, cfg.Chain.MarketManager)
		if err != nil {
			return err
		}
		sugar.Infow("markets_discovered", "manager", cfg.Chain.MarketManager.Hex(), "count", len(addrs))
	}
	markets := make([]keeper.Market, 0, len(addrs))
	for _, addr := range addrs {
		markets = append(markets, chain.NewFuturesMarket(addr, client, signer))
	}

	// ---- Journal ----
	var journal storage.Journal
	if cfg.Service.JournalPath != "" {
		journal, err = storage.NewPebbleJournal(cfg.Service.JournalPath)
		if err != nil {
			return err
		}
		sugar.Infow("journal_opened", "path", cfg.Service.JournalPath)
	} else {
		journal = storage.NewInMemoryJournal(memoryJournalEntries)
	}
	defer journal.Close()

	// ---- Keeper ----
	k := keeper.New(chain.NewExchangeRates(cfg.Chain.ExchangeRates, client), sugar)
	k.QueryTimeout = cfg.Keeper.QueryTimeout
	k.Dispatcher.ConfirmTimeout = cfg.Keeper.ConfirmTimeout
	k.Journal = journal

	m := metrics.New()
	server := api.NewServer(k, journal, m.Handler(), sugar)

	k.OnOrderUpdate = func(u keeper.OrderUpdate) {
		m.ObserveUpdate(u)
		if err := journal.RecordUpdate(u); err != nil {
			sugar.Warnw("journal_update_failed", "account", u.Account.Hex(), "err", err)
		}
		server.PublishOrderUpdate(u)
	}
	k.OnExecution = func(exec keeper.Execution) {
		m.ObserveExecution(exec)
		server.PublishExecution(exec)
	}
	k.OnPass = func(stats keeper.PassStats) {
		m.ObservePass(stats, k.Registry.Len())
	}

	watcher := chain.NewWatcher(rpc, markets, sugar)
	watcher.ReconnectBase = cfg.Keeper.ReconnectBase
	watcher.ReconnectMax = cfg.Keeper.ReconnectMax

	events := make(chan keeper.Event, cfg.Keeper.EventBuffer)
	blocks := make(chan uint64, cfg.Keeper.BlockBuffer)

	sugar.Infow("keeper_starting",
		"markets", marketList(addrs),
		"exchange_rates", cfg.Chain.ExchangeRates.Hex(),
		"query_timeout", cfg.Keeper.QueryTimeout.String(),
		"confirm_timeout", cfg.Keeper.ConfirmTimeout.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx, events, blocks) })
	g.Go(func() error { return k.Run(gctx, events, blocks) })
	if cfg.Service.APIAddr != "" {
		g.Go(func() error { return server.Start(gctx, cfg.Service.APIAddr) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func marketList(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}
