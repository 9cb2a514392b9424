package main

import (
	"context"
	"log/slog"

	"github.com/BearBump/SpotBox/config"
	"github.com/BearBump/SpotBox/internal/api/httpapi"
	"github.com/BearBump/SpotBox/internal/broker/kafka"
	"github.com/BearBump/SpotBox/internal/cache"
	"github.com/BearBump/SpotBox/internal/cache/rediscache"
	"github.com/BearBump/SpotBox/internal/integrations/feed"
	"github.com/BearBump/SpotBox/internal/integrations/feed/fake"
	"github.com/BearBump/SpotBox/internal/integrations/feed/spothttp"
	"github.com/BearBump/SpotBox/internal/services/collector"
	"github.com/BearBump/SpotBox/internal/services/positions"
	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/BearBump/SpotBox/internal/storage/pgpositions"
	"github.com/BearBump/SpotBox/internal/storage/sqlitepos"
	"github.com/pkg/errors"
)

// collectorFactories builds the external dependencies. Optional ones
// (producer, rate limiter, cache) return nil when not configured.
type collectorFactories struct {
	newStorage     func(cfg *config.Config) (repo storage.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) (p collector.Producer, closeFn func())
	newRateLimiter func(cfg *config.Config) (rl collector.RateLimiter, closeFn func())
	newCache       func(cfg *config.Config) (c cache.BytesCache, closeFn func())
	newFeedClient  func(cfg *config.Config) feed.Client
}

func defaultCollectorFactories() collectorFactories {
	return collectorFactories{
		newStorage: func(cfg *config.Config) (storage.Repository, func(), error) {
			var (
				st  storage.Repository
				err error
			)
			switch cfg.Storage.Driver {
			case config.DriverPostgres:
				st, err = pgpositions.New(cfg.Storage.DSN)
			default:
				st, err = sqlitepos.New(cfg.Storage.Path)
			}
			if err != nil {
				return nil, nil, err
			}
			return st, func() { _ = st.Close() }, nil
		},
		newProducer: func(cfg *config.Config) (collector.Producer, func()) {
			if len(cfg.Kafka.Brokers) == 0 {
				return nil, nil
			}
			p := kafka.NewProducer(cfg.Kafka.Brokers)
			return p, func() { _ = p.Close() }
		},
		newRateLimiter: func(cfg *config.Config) (collector.RateLimiter, func()) {
			if cfg.Redis.Addr == "" || cfg.Collector.RateLimitPerMinute <= 0 {
				return nil, nil
			}
			rl := rediscache.NewRateLimiter(redisOptions(cfg))
			return rl, func() { _ = rl.Close() }
		},
		newCache: func(cfg *config.Config) (cache.BytesCache, func()) {
			if cfg.Redis.Addr == "" {
				return nil, nil
			}
			c := rediscache.New(redisOptions(cfg))
			return c, func() { _ = c.Close() }
		},
		newFeedClient: func(cfg *config.Config) feed.Client {
			if cfg.Demo() {
				slog.Warn("spot.feed_id is not set, using the demo feed")
				return fake.New(cfg.Spot.DemoAssets...)
			}
			return spothttp.New(cfg.Spot.BaseURL, cfg.Spot.FeedID, cfg.Spot.FeedPassword, cfg.FeedTimeout())
		},
	}
}

func redisOptions(cfg *config.Config) rediscache.Options {
	return rediscache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	}
}

type app struct {
	cfg       *config.Config
	store     storage.Repository
	feed      feed.Client
	collector *collector.Collector
	positions *positions.Service
	closers   []func()
}

func newApp(cfg *config.Config, f collectorFactories) (*app, error) {
	a := &app{cfg: cfg}

	store, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}
	a.store = store
	a.addCloser(closeFn)

	producer, closeFn := f.newProducer(cfg)
	a.addCloser(closeFn)
	rl, closeFn := f.newRateLimiter(cfg)
	a.addCloser(closeFn)
	c, closeFn := f.newCache(cfg)
	a.addCloser(closeFn)

	a.positions = positions.New(store, c, cfg.LatestTTL())
	a.feed = f.newFeedClient(cfg)
	a.collector = collector.New(a.feed, store, producer, rl, cfg.Kafka.Topic).
		WithSettings(cfg.Collector.FetchCount, int64(cfg.Collector.RateLimitPerMinute)).
		WithCleanup(cfg.Collector.CleanupDays, cfg.Collector.CleanupHour).
		OnStored(a.positions.Invalidate).
		OnDeleted(a.positions.Invalidate)

	return a, nil
}

func (a *app) addCloser(fn func()) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) httpServer() *httpapi.Server {
	return httpapi.New(httpapi.Options{
		Collector:          a.collector,
		Positions:          a.positions,
		Settings:           a.cfg.Public(),
		DefaultCleanupDays: a.cfg.Collector.CleanupDays,
	})
}

type runOptions struct {
	httpAddr string // empty disables the HTTP API
	onListen func(addr string)
}

// RunCollector runs the scheduler and, when enabled, the HTTP API until ctx
// is done. A failing HTTP listener stops the collector.
func RunCollector(ctx context.Context, cfg *config.Config, f collectorFactories, opts runOptions) error {
	a, err := newApp(cfg, f)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var httpErr chan error
	if opts.httpAddr != "" {
		httpErr = make(chan error, 1)
		h := a.httpServer().Routes()
		go func() {
			err := httpapi.Run(ctx, opts.httpAddr, h, opts.onListen)
			if err != nil {
				slog.Error("http server failed", "error", err.Error())
				cancel()
			}
			httpErr <- err
		}()
	}

	err = a.collector.Start(ctx, cfg.Interval())
	if httpErr != nil {
		cancel()
		if herr := <-httpErr; herr != nil {
			return herr
		}
	}
	return err
}
