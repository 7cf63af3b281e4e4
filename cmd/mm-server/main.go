package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediamanifest/pkg/app"
	"mediamanifest/pkg/config"
	"mediamanifest/pkg/pinsync"
	"mediamanifest/pkg/server"

	"github.com/spf13/viper"
)

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is ./.mm/config.yaml or $HOME/.mm/config.yaml)")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	if *addr != "" {
		viper.Set("server.addr", *addr)
	}
	// 兼容托管平台注入的 PORT
	if port := os.Getenv("PORT"); port != "" && *addr == "" {
		viper.Set("server.addr", ":"+port)
	}

	// 2. Init Core Application
	ctx := context.Background()
	application, err := app.NewApp(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to initialize app: %v", err)
	}
	defer application.Close()
	fmt.Printf("✅ mediamanifest initialized (manifest: %s)\n", application.PipelineConfig.ManifestPath)

	// 3. Setup HTTP Server
	handler := pinsync.NewHandler(application.Syncer(), application.Logger)
	srv := &http.Server{
		Addr:              viper.GetString("server.addr"),
		Handler:           server.Wrap(application.Logger, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 4. Start Server (Async)
	go func() {
		fmt.Printf("🚀 Pin sync server listening on %s...\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Failed to serve: %v", err)
		}
	}()

	// 5. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n⚠️  Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("⚠️  Forced shutdown: %v\n", err)
	}
	fmt.Println("👋 Server stopped.")
}
