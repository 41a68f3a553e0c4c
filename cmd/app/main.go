package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watermarkd/internal/config"
	"watermarkd/internal/server"
	"watermarkd/pkg/logger"
)

func main() {
	log, err := logger.New()
	if err != nil {
		os.Stderr.WriteString("CRITICAL: Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatal("Failed to load config: ", err)
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		sugar.Fatal("Failed to create server: ", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		sugar.Infof("Starting server on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Run(); err != nil && err != http.ErrServerClosed {
			sugar.Fatal("Server failed: ", err)
		}
	}()

	sig := <-quit
	sugar.Infof("Received signal: %v. Shutting down gracefully...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("Server forced to shutdown: %v", err)
	}

	sugar.Info("Server exited")
}
