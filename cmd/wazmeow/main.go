package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wazmeow/internal/app"
	"wazmeow/internal/app/config"
	"wazmeow/pkg/logger"

	"github.com/rs/zerolog/log"
)

var (
	versionFlag = flag.Bool("version", false, "Display version information and exit")
	configFlag  = flag.String("config", "", "YAML configuration file (overrides "+config.EnvConfigFile+")")
)

const version = "2.0.0"

func init() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("WazMeow version %s\n", version)
		os.Exit(0)
	}
}

func main() {
	// Load configuration
	if *configFlag != "" {
		_ = os.Setenv(config.EnvConfigFile, *configFlag)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	l := logger.New(cfg.Logging)
	logger.SetGlobalLogger(l)

	log.Info().Str("version", version).Msg("Starting WazMeow")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg, l, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application container")
	}
	defer container.Close()

	if err := container.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start config watcher")
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
}
