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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/adapter"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/config"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/logging"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/session"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
)

func main() {
	var (
		configFile  = flag.String("config", "adapter.yaml", "Path to configuration file")
		logLevel    = flag.String("log-level", "", "Override the configured log level (debug, info, warn, error)")
		healthCheck = flag.Bool("health-check", false, "Perform a health check against a running adapter and exit")
	)
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck())
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	if *logLevel != "" {
		cfg.Adapter.LogLevel = *logLevel
	}

	logger, err := logging.Build(logging.Config{Level: cfg.Adapter.LogLevel, Development: cfg.Adapter.Development})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting opcua edge adapter",
		zap.Int("recvQueueSize", cfg.Adapter.RecvQueueSize),
		zap.Bool("metricsEnabled", cfg.Metrics.Enabled),
		zap.Bool("eventbusEnabled", cfg.Eventbus.Enabled),
		zap.Bool("wsmonitorEnabled", cfg.WSMonitor.Enabled),
	)

	a := adapter.New(cfg, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = a.Configure(ctx, adapter.Callbacks{
		OnResponse: func(m queue.Message) { logger.Debug("response dispatched", zap.Any("payload", m.Payload)) },
		OnBrowse:   func(m queue.Message) { logger.Debug("browse result dispatched", zap.Any("payload", m.Payload)) },
		OnReport:   func(m queue.Message) { logger.Debug("report dispatched", zap.Any("payload", m.Payload)) },
		OnError:    func(m queue.Message) { logger.Warn("error dispatched", zap.Any("payload", m.Payload)) },
		OnStatus: func(endpoint string, status session.Status) {
			logger.Info("session status changed", zap.String("endpoint", endpoint), zap.Int("status", int(status)))
		},
		OnEndpointFound: func(app stack.ApplicationDescription) {
			logger.Info("discovery server found", zap.String("applicationURI", app.ApplicationURI))
		},
	}, stack.ApplicationTypeServer|stack.ApplicationTypeClient|stack.ApplicationTypeClientAndServer|stack.ApplicationTypeDiscoveryServer)
	if err != nil {
		logger.Fatal("adapter configure failed", zap.Error(err))
	}

	var servers []*http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.Metrics().Registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		srv := &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}
		servers = append(servers, srv)
		go func() {
			logger.Info("metrics listening", zap.String("address", cfg.Metrics.ListenAddress))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	if cfg.WSMonitor.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/debug/ws", a.WSMonitor())
		srv := &http.Server{Addr: cfg.WSMonitor.ListenAddress, Handler: mux}
		servers = append(servers, srv)
		go func() {
			logger.Info("ws monitor listening", zap.String("address", cfg.WSMonitor.ListenAddress))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("ws monitor server failed", zap.Error(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal, shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown error", zap.Error(err))
		}
	}
	a.Close()

	logger.Info("adapter shutdown complete")
}

func performHealthCheck() int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:9090/health")
	if err != nil {
		fmt.Fprintln(os.Stderr, "health check failed:", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return 0
	}
	return 1
}
