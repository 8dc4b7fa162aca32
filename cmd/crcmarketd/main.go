package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crcmarket/config"
	"crcmarket/core/state"
	"crcmarket/crypto"
	"crcmarket/gateway"
	"crcmarket/gateway/middleware"
	"crcmarket/native/factory"
	"crcmarket/native/payments"
	"crcmarket/native/token"
	"crcmarket/native/trust"
	"crcmarket/native/weights"
	"crcmarket/observability/logging"
	"crcmarket/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "crcmarketd.toml", "path to daemon config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup("crcmarketd", cfg.Environment)

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	manager, err := state.NewManager(db)
	if err != nil {
		log.Fatalf("state manager: %v", err)
	}

	admin, configured, err := cfg.Admin()
	if err != nil {
		log.Fatalf("admin address: %v", err)
	}
	if !configured {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			log.Fatalf("generate admin key: %v", err)
		}
		admin = key.PubKey().Address()
		logger.Warn("no admin configured, generated ephemeral admin", "address", admin.String())
	}

	tok := token.NewLedger(cfg.TokenSymbol, cfg.TokenDecimals)
	hub := payments.NewHub()
	registry := trust.NewRegistry()

	fac, err := factory.New(factory.Config{
		Address:   crypto.DeriveContractAddress(admin, 1),
		Token:     tok,
		Transport: hub,
		Receivers: hub,
		Registry:  registry,
		State:     manager,
	})
	if err != nil {
		log.Fatalf("factory: %v", err)
	}

	var ledger weights.Ledger
	switch cfg.Strategy {
	case config.StrategyBinary:
		ledger, err = fac.CreateBinaryLedger(admin, cfg.OfferNamePrefix)
	default:
		ledger, err = fac.CreateGradedLedger(admin)
	}
	if err != nil {
		log.Fatalf("weight ledger: %v", err)
	}

	start := cfg.CycleStart
	if start == 0 {
		start = time.Now().Unix()
	}
	cyc, err := fac.CreateCycle(factory.CycleParams{
		Admin:      admin,
		Start:      start,
		Duration:   cfg.WindowDuration,
		SoftLock:   cfg.SoftLock,
		Ledger:     ledger,
		NamePrefix: cfg.OfferNamePrefix,
	})
	if err != nil {
		log.Fatalf("cycle: %v", err)
	}

	// Local mode: seed the admin with token inventory and pre-approve the
	// cycle so deposits can pull without an external wallet.
	supply := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.TokenDecimals)+9), nil)
	if err := tok.Mint(admin, supply); err != nil {
		log.Fatalf("seed admin supply: %v", err)
	}
	if err := tok.Approve(admin, cyc.Address(), supply); err != nil {
		log.Fatalf("approve cycle: %v", err)
	}

	server := gateway.NewServer(logger, cyc, tok, hub, middleware.RateLimit{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening",
			"address", cfg.ListenAddress,
			"cycle", cyc.Address().String(),
			"strategy", cfg.Strategy,
			"softLock", cfg.SoftLock,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err.Error())
	}
	logger.Info("stopped")
}

func openDatabase(dataDir string) (storage.Database, error) {
	trimmed := strings.TrimSpace(dataDir)
	if trimmed == "" || trimmed == ":memory:" {
		return storage.NewMemDB(), nil
	}
	return storage.NewLevelDB(trimmed)
}
