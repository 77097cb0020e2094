// cmd/wxmodbus/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fcolinet/wxmodbus/internal/config"
	"github.com/fcolinet/wxmodbus/internal/link"
	"github.com/fcolinet/wxmodbus/internal/logging"
	"github.com/fcolinet/wxmodbus/internal/poll"
	"github.com/fcolinet/wxmodbus/internal/publish"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: wxmodbus <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config (any violation is fatal; no partial startup)
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	groups, err := config.Build(cfg)
	if err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	logger := logging.New(cfg.Log)

	logger.Printf("host=%s port=%d timeout=%ds poll_interval=%ds",
		cfg.Host, cfg.Port, *cfg.Timeout, *cfg.PollInterval)
	for _, g := range groups {
		logger.Printf("sensor %q: unit=%d registry=%d length=%d word_order=%s",
			g.Name, g.UnitID, g.Start, g.Length, g.Order)
		for _, f := range g.Fields {
			logger.Printf("    ==> %s (index=%d scale=%g type=%s)",
				f.Name, f.Index, f.Scale, f.Type)
		}
	}

	// --------------------
	// Device link
	// --------------------

	transport := link.NewTCPTransport(
		fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		time.Duration(*cfg.Timeout)*time.Second,
	)
	lnk := link.New(transport, logger)
	defer lnk.Close()

	// --------------------
	// Sink
	// --------------------

	var sink poll.Sink
	if cfg.MQTT != nil {
		m, err := publish.NewMQTTSink(cfg.MQTT, logger)
		if err != nil {
			log.Fatalf("mqtt sink failed: %v", err)
		}
		if err := m.Connect(); err != nil {
			log.Fatalf("mqtt connect failed: %v", err)
		}
		defer m.Close()
		sink = m
	} else {
		sink = publish.NewLogSink(logger)
	}

	// --------------------
	// Polling engine
	// --------------------

	engine, err := poll.New(
		poll.Config{
			Interval: time.Duration(*cfg.PollInterval) * time.Second,
			Groups:   groups,
		},
		lnk,
		sink,
		logger,
	)
	if err != nil {
		log.Fatalf("engine build failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Println("wxmodbus started")
	engine.Run(ctx)
	logger.Println("wxmodbus stopped")
}
