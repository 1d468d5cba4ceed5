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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/salon-booking/config"
	"github.com/jwalitptl/salon-booking/internal/client"
	adminhandler "github.com/jwalitptl/salon-booking/internal/handler/admin"
	"github.com/jwalitptl/salon-booking/internal/handler/booking"
	"github.com/jwalitptl/salon-booking/internal/handler/health"
	promhandler "github.com/jwalitptl/salon-booking/internal/handler/prometheus"
	"github.com/jwalitptl/salon-booking/internal/middleware"
	"github.com/jwalitptl/salon-booking/internal/model"
	"github.com/jwalitptl/salon-booking/internal/router"
	"github.com/jwalitptl/salon-booking/internal/service/admin"
	"github.com/jwalitptl/salon-booking/internal/service/audit"
	"github.com/jwalitptl/salon-booking/internal/service/bookingform"
	"github.com/jwalitptl/salon-booking/pkg/logger"
	"github.com/jwalitptl/salon-booking/pkg/messaging"
	"github.com/jwalitptl/salon-booking/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Load configuration
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
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, registry)

	// Booking API client, bound to the configured origin
	api, err := client.New(cfg.API.BaseURL,
		client.WithTimeout(cfg.API.RequestTimeout),
		client.WithMetrics(m),
		client.WithLogger(log.With("component", "client")),
	)
	if err != nil {
		log.Fatal(err, "invalid booking API configuration")
	}

	// Audit events
	ctx := context.Background()
	broker, err := audit.NewBroker(ctx, cfg.Events)
	if err != nil {
		log.Fatal(err, "failed to open event broker", "driver", cfg.Events.Driver)
	}
	auditSvc := audit.NewService(broker, cfg.Events.Topic, m, log.With("component", "audit"))

	checks := map[string]messaging.Pinger{}
	if p, ok := broker.(messaging.Pinger); ok {
		checks["events"] = p
	}

	// Handlers
	formLog := log.With("component", "bookingform")
	bookingHandler := booking.NewHandler(func() *bookingform.Controller {
		return bookingform.NewController(api,
			bookingform.WithDefaultService(model.ServiceName(cfg.Booking.DefaultService)),
			bookingform.WithSuccessDismiss(cfg.Booking.SuccessDismiss),
			bookingform.WithRecorder(auditSvc),
			bookingform.WithMetrics(m),
			bookingform.WithLogger(formLog),
		)
	}, cfg.Visitors.TTL, cfg.Visitors.CleanupInterval)

	adminHandler := adminhandler.NewHandler(
		func(cookie string) admin.API { return api.WithCookies(cookie) },
		admin.WithRecorder(auditSvc),
		admin.WithMetrics(m),
		admin.WithLogger(log.With("component", "admin")),
	)

	var metricsHandler gin.HandlerFunc
	if cfg.Monitoring.PrometheusEnabled {
		metricsHandler = promhandler.New(registry).Handler()
	}

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(log, m,
		health.NewHandler(checks),
		bookingHandler,
		adminHandler,
		metricsHandler,
		router.RouterConfig{
			RateLimit:     cfg.RateLimit,
			CORSConfig:    middleware.DefaultCORSConfig(cfg.Server.AllowOrigins),
			MetricsPath:   cfg.Monitoring.MetricsPath,
			VisitorTTL:    cfg.Visitors.TTL,
			SecureCookies: cfg.Server.SecureCookies,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting server", "port", cfg.Server.Port, "booking_api", api.BaseURL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
	if err := auditSvc.Close(); err != nil {
		log.Error(err, "failed to close event broker")
	}

	log.Info("server exited properly")
}
