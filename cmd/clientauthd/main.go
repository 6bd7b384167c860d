// Command clientauthd serves private_key_jwt client authentication over HTTP.
//
// Configuration comes from the environment:
//
//	CLIENTAUTH_ADDR              listen address (default :8080)
//	CLIENTAUTH_BASE_URL          public base URL; derived per request when empty
//	CLIENTAUTH_PROVIDER          default provider ID (default client-jwt)
//	CLIENTAUTH_CLIENTS_FILE      JSON client registry, reloaded on change
//	CLIENTAUTH_CLIENTS_DB        SQLite client registry, used when no file is set
//	CLIENTAUTH_REPLAY_CACHE_SIZE in-memory replay cache capacity (default 100000)
//	CLIENTAUTH_LOG_LEVEL         debug, info, warn or error (default info)
//	CLIENTAUTH_METRICS           "stdout" to print metrics periodically
//	REDIS_ADDR                   share the replay cache through Redis when set
//	CLIENTAUTH_REPLAY_PREFIX     Redis key prefix
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/clientauth-go"
	"github.com/ggoodman/clientauth-go/clients"
	"github.com/ggoodman/clientauth-go/clients/file"
	clientsmem "github.com/ggoodman/clientauth-go/clients/memory"
	"github.com/ggoodman/clientauth-go/clients/sqlite"
	"github.com/ggoodman/clientauth-go/internal/server"
	"github.com/ggoodman/clientauth-go/jwtclient"
	"github.com/ggoodman/clientauth-go/keys"
	"github.com/ggoodman/clientauth-go/keys/remote"
	"github.com/ggoodman/clientauth-go/keys/static"
	"github.com/ggoodman/clientauth-go/singleuse"
	replaymem "github.com/ggoodman/clientauth-go/singleuse/memory"
	replayredis "github.com/ggoodman/clientauth-go/singleuse/redis"
	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type config struct {
	Addr            string `env:"CLIENTAUTH_ADDR,default=:8080"`
	BaseURL         string `env:"CLIENTAUTH_BASE_URL"`
	Provider        string `env:"CLIENTAUTH_PROVIDER,default=client-jwt"`
	ClientsFile     string `env:"CLIENTAUTH_CLIENTS_FILE"`
	ClientsDB       string `env:"CLIENTAUTH_CLIENTS_DB"`
	ReplayCacheSize int    `env:"CLIENTAUTH_REPLAY_CACHE_SIZE,default=100000"`
	LogLevel        string `env:"CLIENTAUTH_LOG_LEVEL,default=info"`
	Metrics         string `env:"CLIENTAUTH_METRICS"`
	RedisAddr       string `env:"REDIS_ADDR"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "clientauthd: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config, error) {
	var cfg config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})
	log := slog.New(logHandler)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	registry, err := openClients(ctx, cfg, logHandler)
	if err != nil {
		return err
	}
	if c, ok := registry.(io.Closer); ok {
		closers = append(closers, c)
	}

	replay, err := openReplayCache(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := replay.(io.Closer); ok {
		closers = append(closers, c)
	}

	jwks := remote.New(ctx, remote.WithLogHandler(logHandler))
	closers = append(closers, jwks)
	resolver := keys.Chain{static.New(), jwks}

	mp, shutdownMetrics, err := meterProvider(cfg)
	if err != nil {
		return err
	}
	defer shutdownMetrics()

	providers, err := clientauth.NewRegistry(
		clientauth.WithLogHandler(logHandler),
		clientauth.WithMeterProvider(mp),
	)
	if err != nil {
		return err
	}
	if err := providers.Register(jwtclient.New(registry, resolver, replay, jwtclient.WithLogHandler(logHandler))); err != nil {
		return err
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		if base, err = url.Parse(cfg.BaseURL); err != nil {
			return fmt.Errorf("parse CLIENTAUTH_BASE_URL: %w", err)
		}
	}

	handler, err := server.New(server.Config{
		Providers:       providers,
		Clients:         registry,
		DefaultProvider: cfg.Provider,
		BaseURI:         base,
		Events:          clientauth.NewSlogEvents(logHandler),
		LogHandler:      logHandler,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("http.listen", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("http.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openClients(ctx context.Context, cfg config, h slog.Handler) (clients.Registry, error) {
	switch {
	case cfg.ClientsFile != "":
		return file.Open(cfg.ClientsFile, file.WithLogHandler(h))
	case cfg.ClientsDB != "":
		return sqlite.Open(ctx, cfg.ClientsDB)
	default:
		slog.New(h).Warn("clients.empty_registry")
		return clientsmem.New(), nil
	}
}

func openReplayCache(ctx context.Context, cfg config) (singleuse.Cache, error) {
	if cfg.RedisAddr != "" {
		return replayredis.NewFromEnv(ctx)
	}
	return replaymem.New(cfg.ReplayCacheSize)
}

func meterProvider(cfg config) (metric.MeterProvider, func(), error) {
	if cfg.Metrics != "stdout" {
		return nil, func() {}, nil
	}
	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	return mp, func() { _ = mp.Shutdown(context.Background()) }, nil
}
