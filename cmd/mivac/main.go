package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joshp123/mivac/internal/config"
	"github.com/joshp123/mivac/internal/core"
	"github.com/joshp123/mivac/internal/mqttbus"
	"github.com/joshp123/mivac/internal/rate"
	"github.com/joshp123/mivac/internal/router"
	"github.com/joshp123/mivac/internal/server"
	"github.com/joshp123/mivac/plugins/vacuum"
)

var version = "dev"

func main() {
	configPath := flag.String("config", envOrDefault("MIVAC_CONFIG", config.DefaultPath), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)

	bus, err := mqttbus.Connect(mqttbus.Config{
		Broker:    cfg.MQTT.Broker,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
		KeepAlive: cfg.MQTT.KeepAlive,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("mqtt connect: %v", err)
	}
	defer bus.Close()

	vac, err := vacuum.NewPlugin(cfg, bus, logger)
	if err != nil {
		log.Fatalf("vacuum: %v", err)
	}

	compiled := []core.Plugin{vac}
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		log.Fatalf("plugins: %v", err)
	}
	plugins := core.FilterPlugins(compiled, enabled, false)
	if err := core.ValidatePlugins(plugins); err != nil {
		log.Fatalf("plugins: %v", err)
	}
	if err := core.WriteDashboards(cfg.Core.DashboardDir, plugins); err != nil {
		log.Printf("dashboards: %v", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr, logger)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	services, err := router.RegisterPlugins(grpcServer.Server, plugins)
	if err != nil {
		log.Fatalf("grpc: %v", err)
	}
	log.Printf("grpc services: %s", strings.Join(services, ", "))

	extra := append(rate.MetricsCollectors(), core.BuildInfo(version))
	metricsRegistry := core.MetricsRegistry(plugins, extra...)
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, server.NewRouter(plugins, metricsRegistry, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	for _, p := range plugins {
		if runner, ok := p.(core.Runner); ok {
			go func() {
				runner.Run(ctx)
				done <- struct{}{}
			}()
		}
	}

	go func() {
		log.Printf("http listening on %s", cfg.Core.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil {
			log.Fatalf("http serve: %v", err)
		}
	}()
	go func() {
		log.Printf("grpc listening on %s", cfg.Core.GRPCAddr)
		if err := grpcServer.Serve(); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcServer.Stop()
	for _, p := range plugins {
		if _, ok := p.(core.Runner); ok {
			select {
			case <-done:
			case <-shutdownCtx.Done():
			}
		}
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
