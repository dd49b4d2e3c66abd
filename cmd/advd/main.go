// advd publica el advertisement de claves firmado del key server.
// Pensado para desarrollo, smoke-tests de ops e integración; el protocolo
// que sirve es el mismo que consume rebind.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/rebind/internal/config"
	"github.com/dropDatabas3/rebind/internal/http/router"
	"github.com/dropDatabas3/rebind/internal/metrics"
	"github.com/dropDatabas3/rebind/internal/observability/logger"
	"github.com/dropDatabas3/rebind/internal/tang"
)

func main() {
	var (
		flagConfig  = flag.String("config", "", "ruta a config.yaml (opcional)")
		flagEnvFile = flag.String("env-file", "", "ruta a .env (opcional)")
		flagAddr    = flag.String("addr", "", "listen addr (override de server.addr)")
		flagRotate  = flag.Bool("rotate", false, "genera un par de claves nuevo y sale")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		_ = godotenv.Load(*flagEnvFile)
	}
	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fatal("config", err)
	}
	if *flagAddr != "" {
		cfg.Server.Addr = *flagAddr
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "advd",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("advd")

	keys, err := tang.Bootstrap(cfg.Server.KeysDir, cfg.AdvCacheTTL())
	if err != nil {
		fatal("keystore", err)
	}

	if *flagRotate {
		if err := keys.Rotate(); err != nil {
			fatal("rotate", err)
		}
		log.Info("key pair rotated", logger.String("keys_dir", cfg.Server.KeysDir))
		return
	}

	if err := metrics.Register(nil); err != nil {
		fatal("metrics", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.New(keys),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("serve", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown", logger.Err(err))
	}
	log.Info("stopped")
}

func fatal(op string, err error) {
	logger.L().Error(op, logger.Err(err))
	os.Exit(1)
}
