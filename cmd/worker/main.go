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

	"github.com/jwalitptl/salon-booking/config"
	"github.com/jwalitptl/salon-booking/internal/service/audit"
	"github.com/jwalitptl/salon-booking/internal/worker"
	"github.com/jwalitptl/salon-booking/pkg/logger"
	"github.com/jwalitptl/salon-booking/pkg/messaging"
	"github.com/jwalitptl/salon-booking/pkg/metrics"
)

func setupHealthCheck(log *logger.Logger, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatal(err, "health check server failed")
		}
	}()
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	healthAddr := flag.String("health-addr", ":8081", "address for health and metrics")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	}).With("component", "worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, err := audit.NewBroker(ctx, cfg.Events)
	if err != nil {
		log.Fatal(err, "failed to open event broker", "driver", cfg.Events.Driver)
	}
	defer broker.Close()

	sub, ok := broker.(messaging.Subscriber)
	if !ok {
		log.Fatal(fmt.Errorf("driver %q cannot be consumed", cfg.Events.Driver), "events driver has no subscriber")
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, registry)
	setupHealthCheck(log, *healthAddr, registry)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down...")
		cancel()
	}()

	worker.NewEventWorker(sub, cfg.Events.Topic, log, m).Start(ctx)
}
