package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flywheel/config"
	"flywheel/core/events"
	"flywheel/crypto"
	"flywheel/native/buildercodes"
	"flywheel/native/flywheel"
	"flywheel/native/flywheel/hooks"
	"flywheel/observability/logging"
	"flywheel/rpc"
	"flywheel/state"
	"flywheel/storage"
)

// registrarAddress is the well-known principal the built-in random registrar
// acts as. It receives the registrar role at boot.
func registrarAddress() [20]byte {
	digest := ethcrypto.Keccak256([]byte("flywheel/registrar"))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	ephemeral := flag.Bool("ephemeral", false, "run against an in-memory store instead of LevelDB")
	flag.Parse()

	logger := logging.Setup("flywheeld", os.Getenv("FLYWHEEL_ENV"))

	if err := run(*configPath, *ephemeral, logger); err != nil {
		logger.Error("daemon exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string, ephemeral bool, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var db storage.Database
	if ephemeral {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		db = ldb
	}
	defer db.Close()

	manager := state.NewManager(db)
	emitter := events.NewBroadcaster(events.LogEmitter{Logger: logger})

	registry := buildercodes.NewRegistry(manager, cfg.ChainID)
	registry.SetEmitter(emitter)
	registry.SetPauses(manager)
	registry.SetBaseURI(cfg.CodeMetadataBaseURI)

	regSelf := registrarAddress()
	if err := manager.GrantRole(buildercodes.RoleRegistrar, regSelf[:]); err != nil {
		return fmt.Errorf("grant registrar role: %w", err)
	}
	for _, raw := range cfg.Registrars {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return fmt.Errorf("invalid registrar address %q: %w", raw, err)
		}
		bytes := addr.Bytes()
		if err := manager.GrantRole(buildercodes.RoleRegistrar, bytes[:]); err != nil {
			return fmt.Errorf("grant registrar role: %w", err)
		}
	}
	registrar := buildercodes.NewRandomRegistrar(registry, manager, regSelf)

	engine := flywheel.NewEngine()
	engine.SetState(manager)
	engine.SetBank(manager)
	engine.SetPauses(manager)
	engine.SetEmitter(emitter)
	engine.RegisterHook(hooks.SimpleRewardsAddress, hooks.NewSimpleRewards(manager))
	engine.RegisterHook(hooks.CashbackRewardsAddress, hooks.NewCashbackRewards(manager))
	engine.RegisterHook(hooks.AdvertisementConversionAddress, hooks.NewAdvertisementConversion(manager))
	engine.RegisterHook(hooks.BridgeReferralFeesAddress, hooks.NewBridgeReferralFees(manager, registry))

	server := rpc.NewServer(rpc.ServerConfig{
		Engine:             engine,
		State:              manager,
		Registry:           registry,
		Registrar:          registrar,
		Events:             emitter,
		AuthToken:          cfg.RPCAuthToken,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	rpcSrv := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("rpc server listening", slog.String("address", cfg.RPCAddress))
		if err := rpcSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.MetricsAddress))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown", slog.String("error", err.Error()))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", slog.String("error", err.Error()))
		}
	}
	return nil
}
