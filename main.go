package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"market-gateway/internal/api"
	"market-gateway/internal/gateway"
	"market-gateway/internal/health"
	"market-gateway/internal/persistence"
	"market-gateway/internal/wsclient"
	"market-gateway/pkg/config"
	"market-gateway/pkg/db"
	"market-gateway/pkg/i18n"
	"market-gateway/pkg/license"
	"market-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}
	lang, _ := i18n.ParseLanguage(cfg.Language)
	i18n.SetLanguage(lang)

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(cfg); err != nil {
			log.Fatalf("issue token: %v", err)
		}
		return
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("gateway exited", zap.Error(err))
	}
}

func printToken(cfg *config.Config) error {
	token, expires, err := license.NewManager(cfg.AdminJWTSecret).Issue("admin", license.DefaultTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}

func run(cfg *config.Config, zl *zap.Logger) error {
	zl.Info(i18n.Get("Starting"))
	zl.Info(fmt.Sprintf(i18n.Get("ConfigLoaded"), cfg.AdminAddr, cfg.GRPCAddr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		return fmt.Errorf(i18n.Get("DBInitFailed"), err)
	}
	journal := persistence.NewJournal(database, time.Second, zl)
	defer journal.Close()

	mgr := gateway.NewManager(cfg, journal, gateway.DefaultFactory(), zl)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf(i18n.Get("ConnectFailed"), err)
	}
	defer mgr.Stop()
	zl.Info(i18n.Get("QuoteConnected"))
	zl.Info(i18n.Get("TradeConnected"))
	zl.Info(fmt.Sprintf(i18n.Get("Subscribed"), len(mgr.Subscriptions()), gateway.DefaultFlags))

	// gRPC health
	hs := health.New([]string{"quote", "trade"}, zl)
	hs.Watch(ctx, mgr.Bus())
	for name, st := range mgr.States() {
		hs.SetReady(name, st == wsclient.StateReady)
	}
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		zl.Info(fmt.Sprintf(i18n.Get("GRPCListening"), cfg.GRPCAddr))
		if err := hs.Serve(lis); err != nil {
			zl.Error("grpc health stopped", zap.Error(err))
		}
	}()
	defer hs.Stop()

	// Admin API
	srv := api.NewServer(mgr, mgr.Bus(), license.NewManager(cfg.AdminJWTSecret), zl)
	defer srv.Close()
	httpSrv := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zl.Info(fmt.Sprintf(i18n.Get("ServerListening"), cfg.AdminAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf(i18n.Get("APIServerError"), err)
	}

	zl.Info(i18n.Get("ShuttingDown"))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
