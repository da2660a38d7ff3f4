package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/efreitasn/crossmargin/internal/clock"
	"github.com/efreitasn/crossmargin/internal/config"
	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/handler"
	"github.com/efreitasn/crossmargin/internal/listing"
	"github.com/efreitasn/crossmargin/internal/oracle"
	"github.com/efreitasn/crossmargin/internal/spot"
	"github.com/efreitasn/crossmargin/internal/store"
	"github.com/efreitasn/crossmargin/internal/venue"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, syncLogs, err := newLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to build logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer syncLogs()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("venue stopped with error", slog.String("error", err.Error()))
		syncLogs()
		os.Exit(1)
	}
}

// newLogger builds a JSON zap logger at level and exposes it through slog.
func newLogger(level string) (*slog.Logger, func() error, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zapLogger, err := zc.Build()
	if err != nil {
		return nil, nil, err
	}
	return slog.New(zapslog.NewHandler(zapLogger.Core())), zapLogger.Sync, nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	kv, err := store.OpenKV(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening data dir: %w", err)
	}
	defer kv.Close()

	feed := oracle.NewStub()
	ledger := spot.NewLedger()
	clk := clock.New(0)
	v := venue.New(venue.Config{
		Admin:          cfg.AdminKey,
		QuoteMint:      cfg.QuoteMint,
		QuoteDecimals:  cfg.QuoteDecimals,
		StalenessBound: cfg.StalenessBound,
		MaxBookOrders:  cfg.MaxBookOrders,
		StepBudget:     cfg.StepBudget,
	}, feed, ledger, clk, logger)

	restored, err := v.Restore(kv)
	if err != nil {
		return fmt.Errorf("restoring venue: %w", err)
	}
	switch {
	case restored:
		logger.Info("venue restored", slog.String("data_dir", cfg.DataDir), slog.Uint64("sequence", v.Now()))
	case cfg.ListingFile != "":
		f, err := listing.Load(cfg.ListingFile)
		if err != nil {
			return err
		}
		res, err := listing.Apply(context.Background(), v, cfg.AdminKey, f, feed)
		if err != nil {
			return fmt.Errorf("applying listing: %w", err)
		}
		logger.Info("venue listed",
			slog.String("file", cfg.ListingFile),
			slog.Int("assets", len(res.Assets)),
			slog.Int("perp_markets", len(res.PerpMarkets)),
		)
	default:
		logger.Info("starting with an empty venue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	k := &keeper{venue: v, log: logger}
	clock.NewTicker(cfg.SequenceInterval, v.AdvanceSequence, k.tick).Start(ctx)

	router := handler.NewRouter(v, logger)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serveErr:
		logger.Error("server error", slog.String("error", err.Error()))
	}

	// Stop taking requests and ticking before the final save so the saved
	// state is the last state any caller saw.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	if err := v.Save(shutdownCtx, kv); err != nil {
		return fmt.Errorf("saving venue: %w", err)
	}
	logger.Info("server stopped", slog.Uint64("sequence", v.Now()))
	return nil
}

// keeper refreshes every listed price and accrues funding on every perp
// market once per sequence step, standing in for the external cranks that
// keep the cache fresh.
type keeper struct {
	venue *venue.Venue
	log   *slog.Logger
}

func (k *keeper) tick(seq uint64) {
	reg := k.venue.Registry()
	assets := make([]domain.AssetID, reg.NumAssets)
	for i := range assets {
		assets[i] = domain.AssetID(i)
	}
	perps := make([]domain.MarketID, reg.NumPerpMarkets)
	for i := range perps {
		perps[i] = domain.MarketID(i)
	}

	ctx := context.Background()
	if err := k.venue.RefreshPrices(ctx, assets, perps); err != nil {
		k.log.Warn("price refresh failed", slog.Uint64("sequence", seq), slog.String("error", err.Error()))
		return
	}
	for _, id := range perps {
		if _, err := k.venue.UpdateFunding(ctx, id); err != nil {
			k.log.Warn("funding update failed",
				slog.Uint64("sequence", seq), slog.Int("market", int(id)), slog.String("error", err.Error()))
		}
	}
}
