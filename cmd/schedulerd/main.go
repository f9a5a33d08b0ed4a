// Command schedulerd runs the scheduler core as a long-lived daemon,
// exposing get_exercise_batch/score_exercise and friends over the debug/ops
// HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/trane-project/scheduler-core/internal/api"
	"github.com/trane-project/scheduler-core/internal/cache"
	"github.com/trane-project/scheduler-core/internal/config"
	"github.com/trane-project/scheduler-core/internal/domain"
	"github.com/trane-project/scheduler-core/internal/graph"
	"github.com/trane-project/scheduler-core/internal/observability"
	"github.com/trane-project/scheduler-core/internal/propagate"
	"github.com/trane-project/scheduler-core/internal/scheduler"
	"github.com/trane-project/scheduler-core/internal/store"
)

func main() {
	configPath := flag.String("config", "user_preferences.json", "path to the JSON preferences document")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("schedulerd: loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("schedulerd: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	poolCfg := store.DefaultPoolConfig()

	scores, err := store.OpenScoreStore(cfg.Stores.PracticeStatsDB, poolCfg)
	if err != nil {
		return err
	}
	defer scores.Close()

	rewards, err := store.OpenRewardStore(cfg.Stores.PracticeRewardsDB, poolCfg)
	if err != nil {
		return err
	}
	defer rewards.Close()

	blacklist, err := store.OpenBlacklist(cfg.Stores.BlacklistDB, poolCfg)
	if err != nil {
		return err
	}
	defer blacklist.Close()

	reviewList, err := store.OpenReviewList(cfg.Stores.ReviewListDB, poolCfg)
	if err != nil {
		return err
	}
	defer reviewList.Close()

	// The unit graph itself is built and populated by whatever course
	// content is loaded into this process; authoring and manifest loading
	// are out of scope here, so schedulerd starts with an empty graph
	// ready for units to be added by an embedding caller before serving
	// traffic.
	g := graph.New()

	sc := cache.NewScoreCache(g, scores, rewards, blacklist, cfg.Options)
	prop := propagate.New(g, domain.DefaultPropagationConstants(), nil)
	selector := scheduler.New(g, sc, scores, rewards, blacklist, reviewList, prop, cfg.Options, nil)

	tracer := observability.NewTracer(observability.DefaultTracerConfig())
	server := api.NewServer(selector, g, sc, tracer)

	httpServer := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("schedulerd: listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("schedulerd: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
