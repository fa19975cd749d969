package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file (defaults apply when omitted)")
	processDir := flag.String("process", "", "Offline mode: process the given session directory and exit")
	referenceDir := flag.String("reference", "", "Offline mode: rest session directory for baseline normalization")
	replayFile := flag.String("replay", "", "Replay a recorded labeled_stream.csv instead of the live UDP source")
	flag.Parse()

	var cfg *Config
	var err error
	if *configFile != "" {
		cfg, err = LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Offline pipeline mode
	if *processDir != "" {
		if err := runProcess(cfg, *processDir, *referenceDir); err != nil {
			log.Fatalf("Processing failed: %v", err)
		}
		return
	}

	// Live engine mode
	var metrics *Metrics
	if cfg.Prometheus.Enabled {
		metrics = NewMetrics()
	}

	var source SampleSource
	if *replayFile != "" {
		source, err = NewReplaySource(*replayFile, cfg.Stream, true)
	} else {
		source, err = NewUDPSource(cfg.Stream, metrics)
	}
	if err != nil {
		log.Fatalf("Failed to open sample source: %v", err)
	}

	engine := NewEngine(cfg, source, metrics)

	if cfg.MQTT.Enabled {
		publisher, err := NewMQTTPublisher(&cfg.MQTT, metrics)
		if err != nil {
			log.Printf("Warning: MQTT disabled: %v", err)
		} else {
			engine.SetPublisher(publisher)
			defer publisher.Close()
		}
	}

	if err := engine.Start(); err != nil {
		log.Fatalf("Failed to start acquisition: %v", err)
	}

	mux := http.NewServeMux()
	NewAPIServer(engine).RegisterHandlers(mux)
	var monitor *MonitorServer
	if cfg.Monitor.Enabled {
		monitor = NewMonitorServer(engine, cfg.Monitor)
		mux.HandleFunc("/ws/monitor", monitor.HandleMonitor)
	}
	if metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("Control API listening on http://%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	if monitor != nil {
		monitor.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Warning: HTTP shutdown: %v", err)
	}

	engine.Shutdown()
	log.Printf("Shutdown complete")
}
