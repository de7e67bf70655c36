// Command recruiter runs the guild recruitment bot: it connects to the
// Discord gateway, greets new members at the city gates, classifies their
// messages, and walks them through vouching or a guild application.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/dialogue"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/dispatch"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/effect"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/eventlog"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/gate"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/limiter"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/metrics"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform/discord"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/rehydrate"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/vouch"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/waiter"
)

const shutdownGrace = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config.json")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config/config.json"
	}

	if err := run(configPath); err != nil {
		log.Fatalf("recruiter: %v", err)
	}
}

func run(configPath string) error {
	logger := logx.NewLogger("main")

	if err := config.LoadConfig(configPath); err != nil {
		return err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	profile, err := config.LoadGuildProfile(cfg.Guild.ProfilePath)
	if err != nil {
		return err
	}

	token, err := config.PlatformToken()
	if err != nil {
		return err
	}

	if err := persistence.Initialize(cfg.DatabasePath); err != nil {
		return err
	}
	defer func() { _ = persistence.Close() }()
	ops := persistence.Ops()

	renderer, err := templates.NewRenderer()
	if err != nil {
		return err
	}

	rec := metrics.NewPrometheusRecorder()
	lim := limiter.NewLimiter(&cfg)
	cls, err := classifier.New(&cfg, profile, lim, rec)
	if err != nil {
		return err
	}

	adapter, err := discord.NewAdapter(token)
	if err != nil {
		return err
	}

	journal, err := eventlog.NewWriter(cfg.EventLogDir)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	runtime := effect.NewRetryRuntime(effect.NewRuntime(adapter, cfg))
	engine := dialogue.NewEngine(renderer, cfg, adapter)

	// The registry's timeout callback needs the dispatcher, which needs the
	// registry. The indirection through a late-bound pointer breaks the
	// cycle.
	var dispatcher *dispatch.Dispatcher
	waiters := waiter.NewRegistry(func(userID string, kind proto.WaiterKind) {
		dispatcher.OnTimeout(userID, kind)
	})

	vouches := vouch.NewCoordinator(runtime, ops, waiters, renderer, cfg)
	g := gate.New(runtime, ops, waiters, renderer, cfg)
	rehydrator := rehydrate.NewService(ops, adapter, cls, engine)
	dispatcher = dispatch.New(runtime, ops, waiters, engine, g, vouches, rehydrator, renderer, cfg, journal, rec)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatcher.Recover(ctx); err != nil {
		return err
	}

	var digest gate.DigestSource
	if cfg.MetricsQueryURL != "" {
		qs, err := metrics.NewQueryService(cfg.MetricsQueryURL)
		if err != nil {
			logger.Warn("metrics query service unavailable, digests will omit totals: %v", err)
		} else {
			digest = qs
		}
	}
	sweeper := gate.NewSweeper(runtime, ops, waiters, renderer, cfg, digest)
	go sweeper.Run(ctx)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed: %v", err)
		}
	}()

	if err := adapter.Open(func(ev *proto.Event) {
		if err := dispatcher.HandleEvent(ctx, ev); err != nil {
			logger.Error("event %s from %s failed: %v", ev.Kind, ev.UserID, err)
		}
	}); err != nil {
		return err
	}
	logger.Info("🏰 recruiter is at the city gates for %s", cfg.Guild.Name)

	<-ctx.Done()
	logger.Info("👋 shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	_ = adapter.Close()
	waiters.Shutdown()
	_ = metricsSrv.Shutdown(shutdownCtx)
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
