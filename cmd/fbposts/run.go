package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"fbposts/internal/config"
	"fbposts/internal/database"
	"fbposts/internal/logger"
	"fbposts/pkg/checker"
	"fbposts/pkg/dedup"
	"fbposts/pkg/engine"
	"fbposts/pkg/fetch"
	"fbposts/pkg/metrics"
	"fbposts/pkg/pagination"
	"fbposts/pkg/pool"
	"fbposts/pkg/proxysource"
	"fbposts/pkg/retry"
	"fbposts/pkg/sink"
)

type runOptions struct {
	targetsFile string
	resume      bool
	output      string
	format      string
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [target...]",
		Short: "Extract posts from the given targets",
		Long: `Extract posts from each target (page or profile name, or URL).
Targets come from the arguments and from --targets, one per line;
blank lines and lines starting with # are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.targetsFile, "targets", "t", "", "file with one target per line")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "resume targets from their last checkpoint (needs database.enabled)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output path (overrides output.path)")
	cmd.Flags().StringVar(&opts.format, "format", "", "output format json|ndjson (overrides output.format)")

	return cmd
}

func run(ctx context.Context, args []string, opts runOptions) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.output != "" {
		cfg.Output.Path = opts.output
	}
	if opts.format != "" {
		cfg.Output.Format = opts.format
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.New("main")

	fmt.Fprintf(os.Stderr, Banner, Version)
	config.PrintConfig(cfg)

	targets, err := loadTargets(args, opts.targetsFile)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return engine.ErrNoTargets
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *database.Store
	if cfg.Database.Enabled {
		db, err := database.NewDB(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()
		store = database.NewStore(db)
	} else if opts.resume {
		return errors.New("--resume needs database.enabled")
	}

	identities, stopRefresh, err := buildPool(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer stopRefresh()

	engineOpts := []engine.Option{}
	if store != nil {
		engineOpts = append(engineOpts, engine.WithCheckpoints(store, opts.resume))
	}

	if cfg.Redis.Enabled {
		client, err := dedup.NewRedisClient(dedup.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		engineOpts = append(engineOpts, engine.WithIndexFactory(func(namespace string) dedup.Index {
			return dedup.NewRedisIndex(client, cfg.Redis.KeyPrefix, namespace, cfg.Redis.TTL)
		}))
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		engineOpts = append(engineOpts, engine.WithMetrics(metrics.New(reg)))

		shutdown := serveMetrics(cfg.Metrics.ListenAddr, reg)
		defer shutdown()
	}

	// Opened last so every earlier failure leaves no partial output.
	fileSink, err := sink.NewFile(cfg.Output.Path, sink.Format(cfg.Output.Format))
	if err != nil {
		return err
	}
	out := sink.Multi{fileSink}
	if store != nil {
		out = append(out, store)
	}

	fetcher := fetch.NewHTTPFetcher(fetch.HTTPConfig{
		BaseURL:           cfg.Scraper.BaseURL,
		Timeout:           cfg.Scraper.Timeout,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		Burst:             cfg.Scraper.Concurrency,
		MaxBodyBytes:      cfg.Scraper.MaxBodyBytes,
	})

	eng := engine.New(engineConfig(cfg), fetcher, identities, out, engineOpts...)
	report, runErr := eng.Run(ctx, targets)

	if err := out.Close(); err != nil {
		log.ErrorBg("Failed to close output: %v", err)
		if runErr == nil {
			runErr = err
		}
	}

	renderReport(os.Stdout, report)
	return runErr
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Retry: retry.Config{
			MaxRetries:  cfg.Engine.MaxRetries,
			BaseBackoff: cfg.Engine.BaseBackoff,
			MaxBackoff:  cfg.Engine.MaxBackoff,
			RotateEvery: cfg.Engine.RotateEveryNFailures,
		},
		Limits: pagination.Limits{
			MaxPages: cfg.Engine.MaxPagesPerTarget,
			MaxPosts: cfg.Engine.MaxPostsPerTarget,
		},
		DedupScope:  cfg.Engine.DedupScope,
		Concurrency: cfg.Scraper.Concurrency,
	}
}

// buildPool loads and checks the configured proxies. With no proxy sources
// the pool hands out direct identities.
func buildPool(ctx context.Context, cfg *config.Config, store *database.Store) (*pool.Pool, func(), error) {
	noop := func() {}
	if len(cfg.Proxy.Sources) == 0 {
		return pool.New(nil, cfg.Scraper.UserAgents, cfg.Proxy.MaxFailures), noop, nil
	}

	source := proxysource.NewMultiSourceWithConfig(proxysource.SourceConfig{
		Timeout:    cfg.Proxy.CheckTimeout,
		UserAgent:  firstOr(cfg.Scraper.UserAgents, pool.DefaultUserAgent),
		Sources:    cfg.Proxy.Sources,
		List:       cfg.Proxy.List,
		File:       cfg.Proxy.File,
		URLs:       cfg.Proxy.URLs,
		GeonodeURL: cfg.Proxy.GeonodeURL,
	})

	if slices.Contains(cfg.Proxy.Sources, "cache") {
		if store == nil {
			return nil, noop, errors.New("proxy source cache needs database.enabled")
		}
		source.Add(store.ProxySource())
	}

	var filter engine.ProxyFilter
	if cfg.Proxy.CheckEnabled {
		chk := checker.New(checker.Config{
			TestURL:    cfg.Proxy.CheckURL,
			Timeout:    cfg.Proxy.CheckTimeout,
			MaxWorkers: cfg.Proxy.CheckWorkers,
			UserAgent:  firstOr(cfg.Scraper.UserAgents, pool.DefaultUserAgent),
		})
		filter = chk.Healthy
		if store != nil {
			cleanupProxyCache(ctx, store, cfg.Database.MaxAge)
			filter = checker.NewCachedChecker(chk, store, cfg.Proxy.CheckInterval).Healthy
		}
	}

	proxies, err := engine.LoadProxies(ctx, source, filter)
	if err != nil {
		return nil, noop, err
	}
	if len(proxies) == 0 {
		return nil, noop, errors.New("proxy sources are configured but yielded no proxies")
	}
	if store != nil {
		logProxyCache(ctx, store)
	}

	p := pool.New(proxies, cfg.Scraper.UserAgents, cfg.Proxy.MaxFailures)
	if cfg.Proxy.RefreshInterval <= 0 {
		return p, noop, nil
	}

	refresher := engine.NewRefresher(source, filter, p)
	refresher.Start(cfg.Proxy.RefreshInterval)
	return p, refresher.Stop, nil
}

func cleanupProxyCache(ctx context.Context, store *database.Store, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	log := logger.New("main")
	removed, err := store.CleanupOldProxies(ctx, maxAge)
	if err != nil {
		log.WarnBg("Proxy cache cleanup failed: %v", err)
		return
	}
	if removed > 0 {
		log.InfoBg("Removed %d stale proxies from cache", removed)
	}
}

func logProxyCache(ctx context.Context, store *database.Store) {
	log := logger.New("main")
	stats, err := store.GetProxyStats(ctx)
	if err != nil {
		log.WarnBg("Proxy cache stats unavailable: %v", err)
		return
	}
	log.InfoBg("Proxy cache: %d known, %d healthy, by type %v", stats.Total, stats.Healthy, stats.ByType)
}

func serveMetrics(addr string, reg *prometheus.Registry) func() {
	log := logger.New("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorBg("Metrics server error: %v", err)
		}
	}()
	log.InfoBg("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WarnBg("Metrics server shutdown error: %v", err)
		}
	}
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
