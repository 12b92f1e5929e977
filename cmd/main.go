package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/luckfunc/floorbot/internal/bot"
	"github.com/luckfunc/floorbot/internal/config"
	"github.com/luckfunc/floorbot/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, closeLogs, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log files: %v\n", err)
		os.Exit(1)
	}

	err = bot.Run(cfg, log)
	if err != nil {
		log.Error("bot stopped", "error", err)
	}
	_ = closeLogs()
	if err != nil {
		os.Exit(1)
	}
}
