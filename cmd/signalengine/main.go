package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"trading-signalsv1/internal/api"
	"trading-signalsv1/internal/bus"
	"trading-signalsv1/internal/config"
	"trading-signalsv1/internal/engine"
	"trading-signalsv1/internal/feed"
	"trading-signalsv1/internal/gateway"
	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/notification"
	redisstore "trading-signalsv1/internal/store/redis"
	sqlitestore "trading-signalsv1/internal/store/sqlite"
	"trading-signalsv1/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	_ = godotenv.Load() // best-effort

	cmd := &cli.Command{
		Name:  "signalengine",
		Usage: "Single-instrument RSI/EMA/levels signal engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file (env vars override it)",
			},
			&cli.StringFlag{
				Name:    "instrument",
				Aliases: []string{"i"},
				Usage:   "Instrument symbol, e.g. XAUUSD",
			},
			&cli.StringFlag{
				Name:  "http-addr",
				Usage: "HTTP API listen address",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Prometheus metrics listen address",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "feed",
				Usage: "Price feed mode: none, http, ws or redis",
			},
			&cli.DurationFlag{
				Name:  "granularity",
				Usage: "Signal timestamp granularity (0 disables truncation)",
			},
			&cli.BoolFlag{
				Name:  "redis",
				Usage: "Enable the Redis signal publisher",
			},
			&cli.StringFlag{
				Name:  "sqlite",
				Usage: "Signal journal path (empty string disables it)",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("[signalengine] %v", err)
	}
}

// applyFlags overrides config values with explicitly set flags.
func applyFlags(cfg *config.Config, cmd *cli.Command) {
	if cmd.IsSet("instrument") {
		cfg.Instrument = cmd.String("instrument")
	}
	if cmd.IsSet("http-addr") {
		cfg.HTTPAddr = cmd.String("http-addr")
	}
	if cmd.IsSet("metrics-addr") {
		cfg.MetricsAddr = cmd.String("metrics-addr")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("feed") {
		cfg.FeedMode = cmd.String("feed")
	}
	if cmd.IsSet("granularity") {
		cfg.SignalGranularityMs = int(cmd.Duration("granularity") / time.Millisecond)
	}
	if cmd.IsSet("redis") {
		cfg.RedisEnabled = cmd.Bool("redis")
	}
	if cmd.IsSet("sqlite") {
		cfg.SQLitePath = cmd.String("sqlite")
	}
}

// trackedEngine records sample arrival on the health status.
type trackedEngine struct {
	*engine.Engine
	health *metrics.HealthStatus
}

func (t trackedEngine) SubmitSample(price float64) error {
	return t.SubmitSampleAt(price, time.Now())
}

func (t trackedEngine) SubmitSampleAt(price float64, ts time.Time) error {
	if err := t.Engine.SubmitSampleAt(price, ts); err != nil {
		return err
	}
	t.health.SetLastSampleTime(ts)
	return nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	applyFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	lg := logger.Init("signalengine", logger.ParseLevel(cfg.LogLevel))
	lg.Info("starting",
		slog.String("instrument", cfg.Instrument),
		slog.String("feed", cfg.FeedMode),
		slog.Bool("redis", cfg.RedisEnabled),
		slog.String("sqlite", cfg.SQLitePath),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		lg.Info("shutdown requested", slog.String("signal", s.String()))
		cancel()
	}()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(cfg.Instrument, cfg.FeedMode)

	// ---- Engine ----
	eng := engine.New(
		engine.WithCapacity(cfg.WindowCapacity),
		engine.WithHistorySize(cfg.SignalHistorySize),
		engine.WithGranularity(cfg.SignalGranularity()),
		engine.WithSignalBuffer(cfg.SignalBuffer),
		engine.WithLogger(lg.With(slog.String("instrument", cfg.Instrument))),
		engine.WithMetrics(prom),
	)
	tracked := trackedEngine{Engine: eng, health: health}

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// Best-effort sinks read from the fan-out; a full subscriber loses signals.
	fan := bus.New(cfg.SignalBuffer)
	fan.OnDrop = func(name string) { prom.FanoutDropsTotal.WithLabelValues(name).Inc() }
	spawn(func() {
		fan.ReportDepth(ctx, 5*time.Second, func(st bus.ChannelStat) {
			prom.FanoutQueueDepth.WithLabelValues(st.Name).Set(float64(st.Len))
		})
	})

	// State snapshots are conflated and pushed on every sample, not only on signals.
	states := bus.NewLatest[engine.State]()
	eng.OnSample(states.Offer)
	var stateSinks []func(engine.State)

	hub := gateway.NewHub(100)
	hub.OnClientCount = func(n int) { prom.WSClients.Set(float64(n)) }
	hubCh := fan.Subscribe("gateway")
	spawn(func() { hub.Run(ctx, hubCh) })
	stateSinks = append(stateSinks, func(st engine.State) { hub.PublishState(st) })

	var journal *sqlitestore.Journal
	if cfg.SQLitePath != "" {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		journal, err = sqlitestore.Open(cfg.SQLitePath, cfg.Instrument)
		if err != nil {
			return err
		}
		defer journal.Close()
		health.CheckSQLite(ctx, journal.DB())

		// The journal is the audit trail: it must see every accepted signal.
		journalCh := make(chan strategy.Signal, cfg.AlertBuffer)
		eng.OnSignal(bus.Handoff(ctx, journalCh))
		spawn(func() {
			journal.Run(ctx, journalCh, func(error) { prom.SinkErrors.WithLabelValues("journal").Inc() })
		})
	}

	var rdb *goredis.Client
	if cfg.RedisEnabled {
		rdb, err = redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		health.CheckRedis(ctx, rdb)

		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			log.Printf("[redis] circuit breaker %s -> %s", from, to)
		}
		pub := redisstore.NewPublisher(rdb, cb, cfg.Instrument, 0)
		pub.OnError = func(error) { prom.SinkErrors.WithLabelValues("redis").Inc() }

		redisCh := fan.Subscribe("redis")
		spawn(func() { pub.Run(ctx, redisCh) })
		stateSinks = append(stateSinks, func(st engine.State) {
			if err := pub.WriteState(ctx, st); err != nil && !errors.Is(err, redisstore.ErrCircuitOpen) {
				lg.Warn("redis state write failed", slog.Any("error", err))
			}
		})
	}

	spawn(func() {
		states.Run(ctx, cfg.StatePublishInterval(), func(st engine.State) {
			for _, sink := range stateSinks {
				sink(st)
			}
		})
	})

	dispatcher := notification.NewDispatcher(cfg.Instrument, 10*time.Second)
	dispatcher.Add("log", notification.NewLogNotifier())
	if cfg.WebhookURL != "" {
		dispatcher.Add("webhook", notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		dispatcher.Add("telegram", notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	dispatcher.OnError = func(name string, err error) { prom.SinkErrors.WithLabelValues(name).Inc() }
	notifyCh := make(chan strategy.Signal, cfg.AlertBuffer)
	eng.OnSignal(bus.Handoff(ctx, notifyCh))
	spawn(func() { dispatcher.Run(ctx, notifyCh) })

	// Subscribers are registered; start fanning out.
	spawn(func() { fan.Run(ctx, eng.Signals()) })

	var sqlDB *sql.DB
	if journal != nil {
		sqlDB = journal.DB()
	}
	health.StartLivenessChecker(ctx, rdb, sqlDB, 10*time.Second)

	// ---- Price feed ----
	switch cfg.FeedMode {
	case config.FeedHTTP:
		poller := feed.NewHTTPPoller(feed.Config{
			URL:        cfg.FeedURL,
			Field:      cfg.FeedJSONField,
			Interval:   cfg.FeedPollInterval(),
			MaxBackoff: cfg.FeedMaxBackoff(),
		}, tracked.SubmitSampleAt)
		poller.OnError = func(error) { prom.FeedErrors.Inc() }
		spawn(func() { poller.Run(ctx) })

	case config.FeedWS:
		wsFeed, err := feed.NewWSFeed(feed.WSConfig{
			URL:               cfg.FeedURL,
			ReconnectDelay:    cfg.FeedPollInterval(),
			MaxReconnectDelay: cfg.FeedMaxBackoff(),
		}, tracked.SubmitSampleAt)
		if err != nil {
			return err
		}
		wsFeed.OnError = func(error) { prom.FeedErrors.Inc() }
		spawn(func() { wsFeed.Run(ctx) })

	case config.FeedRedis:
		sub := redisstore.NewSubscriber(rdb, cfg.Instrument)
		sub.OnError = func(error) { prom.FeedErrors.Inc() }
		spawn(func() {
			if err := sub.Run(ctx, tracked.SubmitSampleAt); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("redis price subscriber stopped", slog.Any("error", err))
			}
		})
	}

	// ---- Servers ----
	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
		metricsSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Stop(shutdownCtx)
		}()
	}

	deps := api.Deps{Engine: tracked, Health: health, WS: hub.ServeWS}
	if journal != nil {
		deps.Journal = journal
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("http api listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server failed", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", slog.Any("error", err))
	}
	hub.Close()
	wg.Wait()

	lg.Info("stopped", slog.Int("samples", len(eng.Samples())))
	return nil
}
