package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	checkout "github.com/vitwit/checkout"
	"github.com/vitwit/checkout/clients"
	"github.com/vitwit/checkout/ledger"
	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/metrics"
	"github.com/vitwit/checkout/server"
	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/utils"
	"github.com/vitwit/checkout/wallet"
)

func main() {
	cfg, err := utils.LoadConfig(os.Getenv("CHECKOUT_CONFIG"))
	if err != nil {
		panic(err)
	}

	log, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	if z, ok := log.(*logger.ZapLogger); ok {
		defer func() { _ = z.Sync() }()
	}

	if err := run(cfg, log); err != nil {
		log.Error("checkout daemon stopped", map[string]any{"error": err})
		os.Exit(1)
	}
}

func run(cfg *types.CheckoutConfig, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cart, err := loadCart(cfg.CartFile)
	if err != nil {
		return err
	}

	store, err := ledger.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []checkout.Option{
		checkout.WithLogger(log),
		checkout.WithStore(store),
	}
	if !cart.CreatedAt.IsZero() {
		opts = append(opts, checkout.WithOrderTime(cart.CreatedAt))
	}

	var metricsSrv *http.Server
	if cfg.EnableMetrics {
		reg := prometheus.NewRegistry()
		rec, err := metrics.NewPrometheusRecorder(reg)
		if err != nil {
			return err
		}
		opts = append(opts, checkout.WithMetrics(rec))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go serve(metricsSrv, log)
	}

	for name, url := range cfg.RPCURLs {
		network := types.Network(name)
		client, err := clients.NewEVMClient(ctx, network, url)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, checkout.WithChainClient(network, client))
	}

	if cfg.WalletRPCURL != "" {
		provider, err := wallet.DialRPCProvider(ctx, cfg.WalletRPCURL, cfg.Intervals.AccountPoll, log)
		if err != nil {
			return err
		}
		defer provider.Close()
		opts = append(opts, checkout.WithWalletProvider(provider))
	}

	session, err := checkout.New(cfg, cart.Items, opts...)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return err
	}

	apiSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(session, cfg.JWTSecret, log).Router(),
	}
	go serve(apiSrv, log)
	log.Info("checkout started", map[string]any{
		"version": checkout.Version, "addr": cfg.HTTPAddr, "order_key": session.Order().Key(), "total": session.Order().Total.String(),
	})

	<-ctx.Done()
	log.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api server forced to shutdown", map[string]any{"error": err})
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server forced to shutdown", map[string]any{"error": err})
		}
	}
	return nil
}

func serve(srv *http.Server, log logger.Logger) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("listen", map[string]any{"addr": srv.Addr, "error": err})
	}
}
