package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"

	"market-feed/internal/api"
	"market-feed/internal/aptos"
	"market-feed/internal/config"
	"market-feed/internal/cursor"
	"market-feed/internal/ingestion"
	"market-feed/internal/publish"
	"market-feed/internal/push"
	"market-feed/internal/storage"
	chstore "market-feed/internal/storage/clickhouse"
	"market-feed/internal/storage/memory"
	"market-feed/internal/storage/migrations"
	pgstore "market-feed/internal/storage/postgres"
	redisstore "market-feed/internal/storage/redis"
	"market-feed/internal/venue"
	"market-feed/internal/window"
)

func main() {
	envFile := flag.String("env-file", ".env", "Environment file loaded before reading FEED_* variables")
	pipelines := flag.String("pipelines", "", "Comma-separated pipelines to run (clob, amm); overrides FEED_PIPELINES")
	useMemory := flag.Bool("use-memory", false, "Keep cursors, windows and history in memory")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *pipelines != "" {
		cfg.Pipelines = *pipelines
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}
	if *debug {
		cfg.Debug = true
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.PyroscopeURL != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "market-feed.ingest",
			ServerAddress:   cfg.PyroscopeURL,
			Logger:          logger.Sugar(),
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logger.Fatal("pyroscope start failed", zap.Error(err))
		}
		defer func() { _ = profiler.Stop() }()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, *useMemory, logger)

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("ingest failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// stores holds the storage backends chosen by configuration.
type stores struct {
	cursors storage.CursorRepository
	windows storage.WindowStore
	bars    storage.BarStore // nil disables history
	trades  storage.TradeStore

	redis   *redisstore.Client
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores picks a backend per concern. Cursors go to Postgres, else Redis.
// Windows go to Redis. History goes to ClickHouse. Anything unconfigured, or
// everything with useMemory, stays in memory.
func openStores(ctx context.Context, cfg *config.Config, useMemory bool, logger *zap.Logger) (*stores, error) {
	s := &stores{
		cursors: memory.NewCursorRepository(),
		windows: memory.NewWindowStore(),
	}
	if useMemory {
		s.bars = memory.NewBarStore()
		s.trades = memory.NewTradeStore()
		logger.Info("using in-memory storage")
		return s, nil
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.redis = client
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.cursors = redisstore.NewCursorRepository(client)
		s.windows = redisstore.NewWindowStore(client)
		logger.Info("using redis for cursors and windows", zap.String("addr", cfg.RedisAddr))
	} else {
		logger.Warn("FEED_REDIS_ADDR not set, windows are kept in memory")
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.cursors = pgstore.NewCursorRepository(pool)
		logger.Info("using postgres for cursors")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.bars = chstore.NewBarStore(conn)
		s.trades = chstore.NewTradeStore(conn)
		logger.Info("using clickhouse for bar and trade history")
	}

	return s, nil
}

// subscribe attaches every configured sink to the broker.
func subscribe(broker *publish.Broker, cfg *config.Config, st *stores, gateway *push.Gateway, logger *zap.Logger) (func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	subs := []publish.Subscriber{gateway}
	if st.bars != nil {
		subs = append(subs, publish.NewStoreSink(st.bars, st.trades))
	}
	if st.redis != nil && cfg.RedisChannelPrefix != "" {
		subs = append(subs, publish.NewRedisSink(st.redis.Client, cfg.RedisChannelPrefix))
	}
	if cfg.NATSURL != "" {
		nc, js, err := publish.ConnectNATS(cfg.NATSURL, cfg.NATSStream, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			return cleanup, fmt.Errorf("connect nats: %w", err)
		}
		closers = append(closers, func() { _ = nc.Drain() })
		subs = append(subs, publish.NewNATSSink(js, cfg.NATSSubjectPrefix))
	}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		sink := publish.NewKafkaSink(publish.KafkaConfig{Brokers: brokers, Topic: cfg.KafkaTopic})
		closers = append(closers, func() { _ = sink.Close() })
		subs = append(subs, sink)
	}

	for _, sub := range subs {
		id, err := broker.Subscribe(sub)
		if err != nil {
			return cleanup, fmt.Errorf("subscribe %s: %w", sub.Name(), err)
		}
		logger.Info("sink subscribed", zap.String("sink", sub.Name()), zap.String("id", id))
	}
	return cleanup, nil
}

func run(ctx context.Context, cfg *config.Config, useMemory bool, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, useMemory, logger)
	if err != nil {
		return err
	}
	defer st.close()

	client := aptos.NewHTTPClient(cfg.NodeURL)
	source := venue.NewAptosSource(venue.AptosOptions{
		Client:        client,
		ModuleAddress: cfg.ModuleAddress,
		Logger:        logger.Named("venue"),
	})

	broker := publish.NewBroker(publish.BrokerOptions{
		QueueSize: cfg.QueueSize,
		Logger:    logger.Named("broker"),
	})
	gateway := push.NewGateway(logger.Named("push"))

	closeSinks, err := subscribe(broker, cfg, st, gateway, logger)
	// Sinks close after the broker has drained into them.
	defer closeSinks()
	defer broker.Close()
	if err != nil {
		return err
	}

	windows := window.NewBuffer(st.windows)
	opts := ingestion.RunnerOptions{
		Source:               source,
		VenueRefreshInterval: cfg.VenueRefreshInterval,
		Logger:               logger.Named("runner"),
	}
	if cfg.HasPipeline(config.PipelineClob) {
		opts.Clob = ingestion.NewClobPipeline(ingestion.ClobOptions{
			Source:    source,
			Cursors:   cursor.NewStore(st.cursors),
			Windows:   windows,
			Publisher: broker,
			PageLimit: cfg.PageLimit,
			Interval:  cfg.ClobInterval,
			Logger:    logger.Named("clob"),
		})
	}
	if cfg.HasPipeline(config.PipelineAmm) {
		opts.Amm = ingestion.NewAmmPipeline(ingestion.AmmOptions{
			Source:    source,
			Publisher: broker,
			PageLimit: cfg.PageLimit,
			Interval:  cfg.AmmInterval,
			Logger:    logger.Named("amm"),
		})
	}
	runner := ingestion.NewRunner(opts)

	apiOpts := api.Options{
		Venues:  runner,
		Windows: windows,
		Bars:    st.bars,
		Trades:  st.trades,
		Gateway: gateway,
		Logger:  logger.Named("api"),
	}
	var server *api.Server
	if cfg.HTTPAddr != "" {
		server = api.NewServer(cfg.HTTPAddr, apiOpts)
		server.Start()
	}

	logger.Info("starting ingest",
		zap.String("node", cfg.NodeURL),
		zap.String("module", cfg.ModuleAddress),
		zap.Strings("pipelines", cfg.PipelineList()),
	)
	err = runner.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("http server shutdown", zap.Error(serr))
		}
		cancel()
	}
	return err
}
