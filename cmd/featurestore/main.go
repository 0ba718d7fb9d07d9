// featurestore - загрузка и выборка исторических фич из реляционной БД.
//
// Usage:
//
//	featurestore --prepare [--config featurestore.yaml]
//	featurestore --retrieve request.yaml [--dev]
//	featurestore --ingest [--metrics-addr :9102]
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-featurestore/pkg/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := ParseFlags()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *flags.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *flags.Version {
		PrintVersion()
		return 0
	}
	if *flags.Help {
		PrintHelp()
		return 0
	}
	if *flags.CreateConfig != "" {
		return createConfigTemplate(*flags.CreateConfig, *flags.Config)
	}

	config, err := LoadConfig(*flags.Config)
	if err != nil {
		log.Error().Err(err).Str("config", *flags.Config).Msg("config load failed")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flags.MetricsAddr != "" {
		srv := serveMetrics(*flags.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var cmdErr error
	switch {
	case *flags.Prepare:
		cmdErr = runPrepare(ctx, config)
	case *flags.Retrieve != "":
		cmdErr = runRetrieve(ctx, config, *flags.Retrieve, *flags.Dev)
	case *flags.Ingest:
		cmdErr = runIngest(ctx, config)
	default:
		PrintHelp()
		return 1
	}

	if cmdErr != nil {
		log.Error().Err(cmdErr).Msg("command failed")
		return 1
	}
	return 0
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("metrics server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	return srv
}

func createConfigTemplate(driver, path string) int {
	if err := SaveConfig(path, CreateSampleConfig(driver)); err != nil {
		log.Error().Err(err).Msg("failed to save config")
		return 1
	}
	fmt.Printf("Created sample %s config: %s\n", driver, path)
	fmt.Println("Edit the file with your database credentials and run:")
	fmt.Printf("  featurestore --prepare --config %s\n", path)
	return 0
}
