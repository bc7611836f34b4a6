package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fusion/internal/broker"
	"fusion/internal/config"
	"fusion/internal/engine"
	"fusion/internal/market"
	"fusion/internal/recorder"
	"fusion/internal/state"
)

func main() {
	configPath := flag.String("config", "fusion.yaml", "path to YAML config")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	runID := generateRunID()
	decisions, err := engine.NewDecisionLogger(cfg.Engine.DecisionsPath, runID)
	if err != nil {
		log.Fatalf("decision logger error: %v", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Printf("failed to close decision logger: %v", err)
		}
	}()

	var rec recorder.Recorder = recorder.Noop{}
	if cfg.Engine.SQLitePath != "" {
		sqlite, err := recorder.NewSQLiteRecorder(cfg.Engine.SQLitePath)
		if err != nil {
			log.Fatalf("recorder error: %v", err)
		}
		rec = sqlite
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Printf("failed to close recorder: %v", err)
		}
	}()

	brokerClient := broker.New(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	dataSource := market.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.Feed)
	store := state.NewStore()
	engineImpl := engine.New(cfg, dataSource, brokerClient, store, decisions, rec)

	if *once {
		report := engineImpl.RunCycle(context.Background())
		payload, _ := json.MarshalIndent(report, "", "  ")
		os.Stdout.Write(append(payload, '\n'))
		return
	}

	loop, err := engine.NewLoop(engineImpl, cfg.Engine.CycleCron)
	if err != nil {
		log.Fatalf("loop error: %v", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("starting bot run_id=%s symbols=%v timeframe=%s schedule=%q",
		runID, cfg.Strategy.Symbols, cfg.Strategy.Timeframe, cfg.Engine.CycleCron)
	loop.Start()

	<-signalChan
	log.Printf("shutdown signal received")
	loop.Stop()

	log.Printf("bot shutdown complete")
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}
