package main

import (
	"context"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signalbot/config"
	"signalbot/internal/aggregator"
	"signalbot/internal/api"
	"signalbot/internal/bus"
	"signalbot/internal/feed"
	"signalbot/internal/logger"
	"signalbot/internal/metrics"
	"signalbot/internal/ml"
	"signalbot/internal/model"
	"signalbot/internal/pricecache"
	"signalbot/internal/session"
	"signalbot/internal/signalengine"
	"signalbot/internal/snapshot"
	"signalbot/internal/threshold"
	"signalbot/internal/volatility"
	"signalbot/internal/winloss"
)

const snapshotInterval = 30 * time.Second

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalengine] starting...")

	logger.Init("signalengine", slog.LevelInfo)

	cfg := config.Load()
	symbols := cfg.ParseSymbols()
	enabledTFs := cfg.ParseTFs()
	if len(enabledTFs) == 0 {
		log.Fatalf("[signalengine] no enabled timeframes configured")
	}
	defaultTF := enabledTFs[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Snapshot store: restore calibration from the last checkpoint ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[signalengine] mkdir for sqlite path failed: %v", err)
	}
	snapStore, err := snapshot.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[signalengine] snapshot store init failed: %v", err)
	}
	defer snapStore.Close()

	ensemble := ml.NewEnsemble(ml.NewGradientBoostedStumps(rand.New(rand.NewSource(cfg.FeedSeed))))
	thresholds := threshold.New()

	prior, err := snapStore.Load()
	if err != nil {
		log.Printf("[signalengine] WARNING: snapshot load failed, starting cold: %v", err)
	} else if prior != nil {
		if err := ensemble.RestoreFromSnapshot(prior.Ensemble); err != nil {
			log.Printf("[signalengine] WARNING: ensemble restore failed: %v", err)
		}
		if err := thresholds.RestoreFromSnapshot(prior.Thresholds); err != nil {
			log.Printf("[signalengine] WARNING: threshold restore failed: %v", err)
		}
		log.Println("[signalengine] restored calibration from last checkpoint")
	}

	// ---- Process-wide singletons (spec §3 Ownership) ----
	volCache := volatility.NewCache()
	priceCache := pricecache.New()
	hub := bus.NewHub()
	hub.Ticks.OnDrop = func(int) { prom().FanoutDropsTotal.WithLabelValues("ticks").Inc() }
	hub.Forming.OnDrop = func(int) { prom().FanoutDropsTotal.WithLabelValues("forming").Inc() }
	hub.Closed.OnDrop = func(int) { prom().FanoutDropsTotal.WithLabelValues("closed").Inc() }
	hub.Signals.OnDrop = func(int) { prom().FanoutDropsTotal.WithLabelValues("signals").Inc() }
	hub.Outcomes.OnDrop = func(int) { prom().FanoutDropsTotal.WithLabelValues("outcomes").Inc() }
	hub.Warnings.OnDrop = func(int) { prom().FanoutDropsTotal.WithLabelValues("warnings").Inc() }

	// ---- Metrics & health ----
	initMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Feed adapter ----
	var feedAdapter session.Feed
	if cfg.FeedMode == "live" {
		wsFeed := feed.NewWSFeed(feed.WSConfig{
			WSURL:      cfg.FeedWSURL,
			HistoryURL: cfg.FeedHistURL,
		})
		wsFeed.OnConnected = func() {
			health.SetFeedConnected(true)
			slog.Info("feed connected", "url", cfg.FeedWSURL)
		}
		wsFeed.OnDisconnected = func() {
			health.SetFeedConnected(false)
			prom().FeedReconnectsTotal.Inc()
			slog.Warn("feed disconnected, will reconnect", "url", cfg.FeedWSURL)
		}
		wsFeed.OnTerminal = func() {
			health.SetFeedConnected(false)
			prom().FeedTerminalTotal.Inc()
			slog.Error("feed connection terminal, giving up", "url", cfg.FeedWSURL)
		}
		feedAdapter = wsFeed
		log.Printf("[signalengine] feed mode: live (%s)", cfg.FeedWSURL)
	} else {
		feedAdapter = feed.NewSimFeed(cfg.FeedSeed)
		health.SetFeedConnected(true)
		log.Println("[signalengine] feed mode: simulated")
	}

	// ---- Core pipeline: aggregator -> session manager -> signal engine ----
	agg := aggregator.New()
	engine := signalengine.New(cfg.FeedSeed)
	engineDeps := signalengine.Deps{
		Ensemble:   ensemble,
		Thresholds: thresholds,
		VolCache:   volCache,
	}
	sessions := session.New(agg, engine, engineDeps, hub, feedAdapter)

	// ---- Win/loss tracker (C13), restored from the same checkpoint ----
	winlossTracker := winloss.New(priceCache, volCache, ensemble, thresholds, hub, sessions)
	if prior != nil {
		winlossTracker.RestoreStats(prior.SessionStats)
	}
	sessions.OnPendingSignal = winlossTracker.AddPending
	go winlossTracker.Run(ctx)

	// ---- Event-driven metric/health updates ----
	go func() {
		ticks := hub.Ticks.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ticks:
				if !ok {
					return
				}
				priceCache.Set(e.Tick.Symbol, e.Tick.Price)
				health.SetLastTickTime(time.Now())
				prom().TicksTotal.Inc()
			}
		}
	}()
	stats := api.NewStats()
	go func() {
		signals := hub.Signals.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-signals:
				if !ok {
					return
				}
				stats.IncrementSignals()
				prom().SignalsGeneratedTotal.WithLabelValues(string(e.Result.Direction)).Inc()
				if e.Result.Direction == model.SignalNoTrade {
					prom().SignalsNoTradeTotal.Inc()
				}
			}
		}
	}()
	go func() {
		outcomes := hub.Outcomes.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-outcomes:
				if !ok {
					return
				}
				prom().WinLossResolvedTotal.WithLabelValues(string(e.Outcome)).Inc()
			}
		}
	}()
	go func() {
		warnings := hub.Warnings.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-warnings:
				if !ok {
					return
				}
				prom().VolatilityWarningsTotal.Inc()
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := len(sessions.ActiveSessions())
				prom().ActiveSessions.Set(float64(n))
				health.SetActiveSessions(n)
			}
		}
	}()

	// ---- Periodic checkpointing ----
	go snapStore.Run(ctx, snapshotInterval, func() snapshot.State {
		start := time.Now()
		state := snapshot.State{
			Ensemble:     ensemble.Snapshot(),
			Thresholds:   thresholds.Snapshot(),
			SessionStats: winlossTracker.AllStats(),
		}
		prom().SnapshotSaveDur.Observe(time.Since(start).Seconds())
		return state
	})
	health.SetSnapshotDBOK(true)

	// ---- Optional Redis relay for cross-process UI consumers ----
	if redisClient, err := dialRedis(ctx, cfg); err != nil {
		log.Printf("[signalengine] redis unavailable, UI events stay in-process: %v", err)
	} else {
		publisher := bus.NewRedisPublisher(redisClient)
		go publisher.Relay(ctx, hub)
		log.Printf("[signalengine] relaying signal/outcome/warning events to redis at %s", cfg.RedisAddr)
	}

	// ---- HTTP status API ----
	apiSrv := startAPIServer(cfg.APIAddr, api.Deps{
		Health:     health,
		Sessions:   sessions,
		Volatility: volCache,
		Stats:      stats,
		StartedAt:  time.Now(),
	})

	// ---- Bootstrap a default session per configured symbol ----
	// There is no external chat/command front-end in this build (spec §1
	// Non-goals); sessions are started here instead of by a user command,
	// the way cmd/mdengine autonomously runs its pipeline for configured
	// instruments rather than waiting on an operator.
	for _, symbol := range symbols {
		if _, err := sessions.Start(ctx, "system", symbol, defaultTF, model.Preferences{
			Timezone:         "UTC",
			ConfidenceFilter: 80,
		}, model.SignalOptions{}, time.Now()); err != nil {
			log.Printf("[signalengine] WARNING: failed to start default session for %s: %v", symbol, err)
			continue
		}
		log.Printf("[signalengine] session started: %s @ %ds", symbol, defaultTF)
	}

	log.Println("[signalengine] pipeline ready")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[signalengine] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	apiSrv.Shutdown(shutdownCtx)

	log.Println("[signalengine] shutdown complete.")
}

// metricsSingleton lazily holds the process-wide Metrics instance so the
// small closures above (defined before NewMetrics registers them) can
// reference it without reordering every wiring step.
var metricsSingleton *metrics.Metrics

func initMetrics() {
	metricsSingleton = metrics.NewMetrics()
}

func prom() *metrics.Metrics {
	return metricsSingleton
}

// startAPIServer launches the HTTP status API (spec §6) in the
// background and returns the server for graceful shutdown.
func startAPIServer(addr string, deps api.Deps) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewRouter(deps),
	}
	go func() {
		log.Printf("[signalengine] status API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[signalengine] status API error: %v", err)
		}
	}()
	return srv
}

// dialRedis connects to Redis for the cross-process event relay
// (internal/bus.RedisPublisher). Absence of Redis is not fatal: the
// pipeline runs fully in-process either way.
func dialRedis(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
