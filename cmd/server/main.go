package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/tokenstream/internal/api"
	"github.com/gyaneshwarpardhi/tokenstream/internal/auth"
	"github.com/gyaneshwarpardhi/tokenstream/internal/config"
	"github.com/gyaneshwarpardhi/tokenstream/internal/engine"
	"github.com/gyaneshwarpardhi/tokenstream/internal/events"
	"github.com/gyaneshwarpardhi/tokenstream/internal/ledger"
	"github.com/gyaneshwarpardhi/tokenstream/internal/oracle"
	"github.com/gyaneshwarpardhi/tokenstream/internal/store"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
	"github.com/gyaneshwarpardhi/tokenstream/internal/vault"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/config.yaml", "Path to YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Record store ─────────────────────────────────────────────────────────
	kv, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer kv.Close()
	slog.Info("store opened", "driver", cfg.Store.Driver)

	// ── Ledger, vaults and price feeds ───────────────────────────────────────
	custody := stream.Address(cfg.Engine.Custody)
	led := ledger.NewMemory()

	vaults := vault.NewRegistry()
	devVaults := make(map[stream.Address]*vault.Memory, len(cfg.Vaults))
	for _, vc := range cfg.Vaults {
		v := vault.NewMemory(stream.Address(vc.ID), vc.Token, custody, led, vc.YieldBps)
		vaults.Register(v.ID(), v)
		devVaults[v.ID()] = v
	}

	oracles := oracle.NewRegistry()
	feeds := make(map[string]*oracle.Static, len(cfg.Oracles))
	for _, fc := range cfg.Oracles {
		f, err := oracle.NewStatic(fc.Price)
		if err != nil {
			slog.Error("invalid oracle price", "oracle", fc.ID, "err", err)
			os.Exit(1)
		}
		oracles.Register(fc.ID, f)
		feeds[fc.ID] = f
	}
	slog.Info("collaborators ready", "vaults", len(cfg.Vaults), "oracles", len(cfg.Oracles))

	grants := auth.NewGrants()
	grants.Replace(auth.ComplianceOfficer, addresses(cfg.Policy.ComplianceOfficers))

	// ── Event dispatch ───────────────────────────────────────────────────────
	rdb, err := events.NewRedisClient(ctx, events.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		slog.Warn("redis unavailable, events stay in-process", "err", err)
	}
	bus := events.NewBus(events.BusOptions{Client: rdb, Channel: cfg.Redis.Channel})
	dispatcher := events.NewDispatcher(ctx, cfg.Engine.EventWorkers, cfg.Engine.QueueDepth, bus)

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(engine.Deps{
		Store:    store.NewRecords(kv),
		Ledger:   led,
		Auth:     grants,
		Vaults:   vaults,
		Oracles:  oracles,
		Notifier: dispatcher,
		Custody:  custody,
	}, policyFrom(cfg))

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		eng.SwapPolicy(policyFrom(newCfg))
		grants.Replace(auth.ComplianceOfficer, addresses(newCfg.Policy.ComplianceOfficers))
		slog.Info("policy hot-reloaded",
			"fee_bps", newCfg.Engine.FeeBps,
			"halted", newCfg.Engine.Halted,
			"restricted", len(newCfg.Policy.Restricted))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	opts := api.Options{
		Engine:  eng,
		Loader:  loader,
		Queue:   dispatcher,
		Limiter: rate.NewLimiter(rate.Limit(cfg.API.RateRPS), cfg.API.RateBurst),
	}
	if cfg.API.DevMint {
		opts.Dev = &api.Dev{Ledger: led, Vaults: devVaults, Feeds: feeds}
		slog.Warn("dev routes enabled")
	}
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.New(opts),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	dispatcher.Shutdown() // flush queued events before cancelling the pool context
	cancel()
	if rdb != nil {
		_ = rdb.Close()
	}
	slog.Info("goodbye")
}

func policyFrom(cfg *config.Config) engine.Policy {
	return engine.Policy{
		Treasury:      stream.Address(cfg.Engine.Treasury),
		FeeBps:        cfg.Engine.FeeBps,
		Halted:        cfg.Engine.Halted,
		AllowedTokens: cfg.Policy.AllowedTokens,
		Restricted:    addresses(cfg.Policy.Restricted),
	}
}

func addresses(in []string) []stream.Address {
	out := make([]stream.Address, len(in))
	for i, a := range in {
		out[i] = stream.Address(a)
	}
	return out
}
