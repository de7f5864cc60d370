// Command devscope runs the development-environment observability daemon:
// project discovery and analysis, runtime monitoring, and scan orchestration.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AveryNolan/devscope/internal/config"
	"github.com/AveryNolan/devscope/internal/event"
	"github.com/AveryNolan/devscope/internal/orchestrator"
	"github.com/AveryNolan/devscope/internal/projects"
	"github.com/AveryNolan/devscope/internal/registry"
	"github.com/AveryNolan/devscope/internal/runtime"
	"github.com/AveryNolan/devscope/internal/store"
	"github.com/AveryNolan/devscope/internal/version"
	"github.com/AveryNolan/devscope/pkg/plugin"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to devscope.yaml")
	flag.Parse()

	if flag.Arg(0) == "version" {
		fmt.Println(version.Info())
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "devscope:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	v, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting devscope",
		zap.String("version", version.Short()),
		zap.String("config", configPath),
	)

	ctx := context.Background()

	st, err := store.New(v.GetString("database.path"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.CheckVersion(ctx, version.Short()); err != nil {
		return err
	}

	bus := event.NewBus(logger.Named("bus"))
	reg := registry.New(logger.Named("registry"))

	projectsMod := projects.New()
	runtimeMod := runtime.New()
	orchMod := orchestrator.New()

	runtimeMod.SetMetricsRegisterer(prometheus.DefaultRegisterer)
	orchMod.SetMetricsRegisterer(prometheus.DefaultRegisterer)

	for _, p := range []plugin.Plugin{projectsMod, runtimeMod, orchMod} {
		if err := reg.Register(p); err != nil {
			return err
		}
	}

	if err := reg.Validate(); err != nil {
		return err
	}

	rootCfg := config.New(v)
	depsFn := func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  rootCfg.Sub("modules." + name),
			Logger:  logger.Named(name),
			Store:   st,
			Bus:     bus,
			Plugins: reg,
		}
	}
	if err := reg.InitAll(ctx, depsFn); err != nil {
		return err
	}

	// Collaborator wiring happens after Init (the collaborators are built
	// there) and before Start.
	runtimeMod.SetProjectSource(projectsMod.Directory())
	orchMod.SetCollaborators(projectsMod.Discoverer(), projectsMod.Analyzer(), projectsMod.Directory())
	orchMod.SetRuntimeMonitor(runtimeMod)

	if err := reg.StartAll(ctx); err != nil {
		return err
	}

	var telemetry *http.Server
	if addr := v.GetString("telemetry.addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		telemetry = &http.Server{Addr: addr, Handler: mux}
		go func() {
			logger.Info("telemetry listener started", zap.String("addr", addr))
			if err := telemetry.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("telemetry listener failed", zap.Error(err))
			}
		}()
	}

	logger.Info("devscope running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(stopCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	reg.StopAll(stopCtx)

	logger.Info("devscope stopped")
	return nil
}
