package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/predikt-markets/engine/internal/adapters/direct"
	"github.com/predikt-markets/engine/internal/adapters/discovery"
	"github.com/predikt-markets/engine/internal/adapters/eventprovider"
	"github.com/predikt-markets/engine/internal/adapters/proxied"
	"github.com/predikt-markets/engine/internal/adapters/repository"
	"github.com/predikt-markets/engine/internal/adapters/venue"
	"github.com/predikt-markets/engine/internal/config"
	"github.com/predikt-markets/engine/internal/core/execution"
	"github.com/predikt-markets/engine/internal/core/orchestrator"
	"github.com/predikt-markets/engine/internal/core/position"
	"github.com/predikt-markets/engine/internal/core/probability"
	"github.com/predikt-markets/engine/internal/core/probability/crypto"
	"github.com/predikt-markets/engine/internal/core/probability/sport"
	"github.com/predikt-markets/engine/internal/core/shard"
	"github.com/predikt-markets/engine/internal/core/signal"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// shardCount is the fixed size of the shard pool. The teacher ran one
// process per sport with no grouping; this engine runs every sport and
// every crypto asset in one process, so the pool (not the process count)
// is what scales out.
const shardCount = 4

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("starting engine")

	limits, err := config.LoadRiskLimits(cfg.RiskLimitsPath)
	if err != nil {
		telemetry.Errorf("load risk limits: %v", err)
		os.Exit(1)
	}

	repo, err := repository.OpenStore(cfg.SQLitePath)
	if err != nil {
		telemetry.Errorf("open repository store: %v", err)
		os.Exit(1)
	}
	defer repo.Close()

	bus := events.NewBus()

	// ── Venue clients ───────────────────────────────────────────
	directClient, err := direct.New(direct.Config{
		BaseURL: cfg.DirectBaseURL,
		WSURL:   cfg.DirectWSURL,
		KeyID:   cfg.DirectKeyID,
		KeyFile: cfg.DirectKeyFile,
	}, bus)
	if err != nil {
		telemetry.Errorf("direct venue client: %v", err)
		os.Exit(1)
	}
	proxiedClient := proxied.New(proxied.Config{
		BaseURL:   cfg.ProxiedBaseURL,
		WSURL:     cfg.ProxiedWSURL,
		APIKey:    cfg.ProxiedAPIKey,
		APISecret: cfg.ProxiedAPISecret,
	}, bus)

	feeds := map[domain.Venue]venue.Feed{
		domain.VenueDirect:  directClient,
		domain.VenueProxied: proxiedClient,
	}

	// ── Probability models ──────────────────────────────────────
	registry := probability.NewRegistry()
	registry.Register(domain.SportMarket{Sport: "hockey", League: "nhl"}.Key(), sport.NewHockeyModel())
	registry.Register(domain.SportMarket{Sport: "basketball", League: "nba"}.Key(), sport.NewBasketballModel())
	registry.Register(domain.SportMarket{Sport: "football", League: "nfl"}.Key(), sport.NewFootballModel())
	for _, league := range []string{"epl", "ucl"} {
		registry.Register(domain.SportMarket{Sport: "soccer", League: league}.Key(), sport.NewSoccerModel())
	}

	// Every concurrently-live strike/expiry instance of an asset shares
	// one Model (CryptoMarket.Key ignores strike/expiry), so one
	// RealizedVolTracker per configured asset is enough.
	for asset := range limits.Assets {
		registry.Register("crypto:"+asset, crypto.Model{
			Vol:         crypto.NewRealizedVolTracker(24 * time.Hour),
			FallbackVol: 0.6,
		})
	}

	// ── Shard pool + orchestrator ───────────────────────────────
	shardCfg := shard.DefaultConfig()
	shards := make([]*shard.Shard, 0, shardCount)
	for i := 0; i < shardCount; i++ {
		shards = append(shards, shard.New(i, shardCfg, bus, registry, nil))
	}
	pool := shard.NewPool(shards...)

	resolver := discovery.NewResolver(
		discovery.NewDirectSource(directClient),
		discovery.NewProxiedSource(proxiedClient),
	)
	orch := orchestrator.New(orchestrator.DefaultConfig(), pool, repo, bus, resolver)

	// ── Execution engine ────────────────────────────────────────
	execEngine := execution.NewEngine(bus)
	execEngine.RegisterVenue(domain.VenueDirect, directClient, execution.DefaultDirectConfig())
	execEngine.RegisterVenue(domain.VenueProxied, proxiedClient, proxiedExecutionConfig())

	// ── Position tracker ────────────────────────────────────────
	posCfg := position.DefaultConfig()
	posCfg.ExitCheckInterval = cfg.ExitCheckInterval
	posCfg.StalenessTTL = cfg.StalenessTTL
	posCfg.Account = cfg.Account
	tracker := position.NewTracker(posCfg, repo, execEngine, bus)

	// ── Signal processor ────────────────────────────────────────
	bank := newBankrollSource(repo, tracker, bus)
	sigCfg := signal.DefaultConfig()
	sigCfg.StalenessTTL = cfg.StalenessTTL
	sigCfg.MaxEventExposureFraction = cfg.MaxEventExposureFraction
	sigCfg.Account = cfg.Account
	processor := signal.NewProcessor(sigCfg, limits, bank, bus)
	registerExposureCaps(processor, limits)

	coord := newCoordinator(bus, repo, processor, execEngine, tracker, feeds)
	tracker.SetGameSecondsFunc(coord.GameSecondsFor)

	// ── Event provider (sport scoreboard polling) ───────────────
	sports := make([]string, 0, len(limits.Sports))
	for s := range limits.Sports {
		sports = append(sports, s)
	}
	provider := eventprovider.New(eventprovider.DefaultConfig(cfg.EventProviderBaseURL, cfg.EventProviderAPIKey, sports), bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go provider.Run(ctx)
	go orch.Run(ctx)
	tracker.Run(ctx)

	for v, feed := range feeds {
		go func(v domain.Venue, feed venue.Feed) {
			if err := feed.Connect(ctx); err != nil {
				telemetry.Warnf("venue %s: connect: %v", v, err)
			}
		}(v, feed)
	}

	// ── Metrics server ──────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	metricsServer := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("metrics server: %v", err)
		}
	}()
	telemetry.Infof("metrics listening on %q", cfg.MetricsAddr)

	// ── Shutdown ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("shutting down...")
	cancel()
	tracker.Stop()
	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	for v, feed := range feeds {
		if err := feed.Close(); err != nil {
			telemetry.Warnf("venue %s: close: %v", v, err)
		}
	}

	telemetry.Infof("shutdown complete  signals_emitted=%d  orders_sent=%d  order_fills=%d  open_positions=%d",
		int(testutil.ToFloat64(telemetry.Metrics.SignalsEmitted)),
		int(testutil.ToFloat64(telemetry.Metrics.OrdersSent)),
		int(testutil.ToFloat64(telemetry.Metrics.OrderFills)),
		int(testutil.ToFloat64(telemetry.Metrics.OpenPositions)),
	)
}

// proxiedExecutionConfig mirrors DefaultDirectConfig's shape at the
// Proxied venue's slower, CLOB-gas-bound order cadence.
func proxiedExecutionConfig() execution.Config {
	cfg := execution.DefaultDirectConfig()
	cfg.RateLimitPerSec = 5
	cfg.RateLimitBurst = 10
	return cfg
}

// registerExposureCaps flattens the nested risk-limit tree into the flat
// key space signal.Processor's exposure guard uses, one cap per
// Signal.ExposureKey value the detector can produce.
func registerExposureCaps(p *signal.Processor, limits config.RiskLimits) {
	for sportName, sl := range limits.Sports {
		for league, ll := range sl.Leagues {
			key := "sport:" + sportName + ":" + strings.ToLower(league)
			p.SetExposureCap(key, int64(ll.MaxEventCents))
		}
	}
	for asset, al := range limits.Assets {
		p.SetExposureCap("crypto:"+asset, int64(al.MaxAssetCents))
	}
}
