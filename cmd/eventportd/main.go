package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/eventport/internal/config"
	"github.com/danmuck/eventport/internal/eventport"
	"github.com/danmuck/eventport/internal/logging"
	"github.com/danmuck/eventport/internal/realm"
	"github.com/danmuck/eventport/internal/server"
	"github.com/danmuck/eventport/internal/window"
	"golang.org/x/sync/errgroup"
)

func main() {
	path := flag.String("config", "cmd/eventportd/config.toml", "eventportd config path")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintf(os.Stderr, "eventportd: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	logging.ConfigureRuntime()
	log := logging.Component("eventportd")

	cfg, err := loadSettings(path)
	if err != nil {
		return err
	}
	if !logging.SetLevel(cfg.LogLevel) {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level ignored")
	}

	scenario, err := loadScenario(cfg.ScenarioPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := realm.NewGroup()
	top := g.New("top", realm.WithBootstrap(eventport.Bootstrap))
	window.New(top, "top", scenario.Origin)

	rp := newReplay(top, scenario, log)
	rp.stage()
	admin := server.New("eventportd", cfg.AdminAddr, g, cfg.CorsOrigins)

	log.Info().
		Str("admin_addr", cfg.AdminAddr).
		Str("scenario", scenario.Name).
		Int("depth", scenario.Depth).
		Msg("eventportd starting")

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.Run(egctx) })
	eg.Go(func() error { return admin.Serve(egctx) })
	eg.Go(func() error { return rp.fire(egctx, cfg.SettleInterval) })

	err = eg.Wait()
	log.Info().Strs("received", rp.Received()).Msg("eventportd stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadScenario(path string) (config.Scenario, error) {
	if path == "" {
		tmpl, err := config.Template("scenario")
		if err != nil {
			return config.Scenario{}, err
		}
		return config.ParseScenario([]byte(tmpl))
	}
	return config.LoadScenario(path)
}
