package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/52poke/kabuka/internal/cache"
	"github.com/52poke/kabuka/internal/config"
	"github.com/52poke/kabuka/internal/http"
	"github.com/52poke/kabuka/internal/lock"
	"github.com/52poke/kabuka/internal/logging"
	"github.com/52poke/kabuka/internal/market"
	"github.com/52poke/kabuka/internal/metrics"
	"github.com/52poke/kabuka/internal/purge"
	"github.com/52poke/kabuka/internal/research"
	"github.com/52poke/kabuka/internal/upstream"
	"github.com/spf13/cobra"
)

const methodPurge = "PURGE"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kabuka",
		Short:         "Financial research API with a cache-aside layer in front of paid providers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newPurgeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newPurgeCmd() *cobra.Command {
	var key, category string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Invalidate one cache entry in the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c, err := cache.ParseCategory(category)
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			rdb := newRedisClient(cfg)
			if rdb != nil {
				defer rdb.Close()
			}
			store, closeStore, err := openStore(cmd.Context(), cfg, rdb, log)
			if err != nil {
				return err
			}
			defer closeStore()

			aside := cache.NewAside(store, cache.WithLogger(log))
			if err := aside.Invalidate(cmd.Context(), key, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s/%s\n", c, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "cache key, e.g. aapl")
	cmd.Flags().StringVar(&category, "category", "", "cache category (quote, research, market, crypto, news)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the cache_entries table",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("KABUKA_POSTGRES_DSN")
			store, err := cache.NewPostgresStore(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.EnsureSchema(cmd.Context())
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	m := metrics.New("kabuka")

	rdb := newRedisClient(cfg)
	if rdb != nil {
		defer rdb.Close()
	}
	store, closeStore, err := openStore(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []cache.Option{
		cache.WithTTLs(cfg.TTLs),
		cache.WithMetrics(m),
		cache.WithLogger(log),
	}
	if cfg.LocalTier {
		opts = append(opts, cache.WithLocalTier(cache.NewMemory()))
	}
	if rdb != nil {
		opts = append(opts, cache.WithLocker(&lock.Locker{Client: rdb, Prefix: "kabuka:"},
			time.Duration(cfg.LockTTLSeconds)*time.Second,
			time.Duration(cfg.MaxLockWaitSeconds)*time.Second,
		))
	}
	aside := cache.NewAside(store, opts...)

	marketClient := market.NewClient(
		upstream.NewClient("market", cfg.MarketBaseURL, cfg.UpstreamTimeout, m),
		cfg.MarketAPIKey,
	)
	researchClient := research.NewClient(
		upstream.NewClient("llm", cfg.LLMBaseURL, cfg.UpstreamTimeout, m),
		cfg.LLMAPIKey,
		cfg.LLMModel,
	)

	handler := httpx.NewHandler(aside, marketClient, researchClient, cfg.NewsLimit)
	purgeHandler := &purge.Handler{Cache: aside, Token: cfg.PurgeToken}

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle(methodPurge+" /api/cache", purgeHandler)
	mux.Handle("DELETE /api/cache", purgeHandler)
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpx.WithLogging(log, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("backend", cfg.CacheBackend).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
