/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/hearth/internal/config"
	"github.com/friendsincode/hearth/internal/events"
	"github.com/friendsincode/hearth/internal/hass"
	"github.com/friendsincode/hearth/internal/logging"
	"github.com/friendsincode/hearth/internal/room"
	"github.com/friendsincode/hearth/internal/server"
	"github.com/friendsincode/hearth/internal/state"
	"github.com/friendsincode/hearth/internal/storage"
	"github.com/friendsincode/hearth/internal/telemetry"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "Hearth - Declarative room scheduling daemon",
	Long:  "Hearth evaluates declarative time and state driven schedules and keeps room entities at their scheduled values.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Hearth daemon",
	Long:  "Connect upstream, evaluate room schedules and serve the HTTP API",
	RunE:  runServe,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the schedule configuration",
	Long:  "Parse the schedule configuration, compile all expressions and exit",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	file, err := config.ParseScheduleFile(cfg.SchedulePath)
	if err != nil {
		return err
	}
	plans, err := file.BuildRooms(state.NewStore(), logger)
	if err != nil {
		return err
	}

	for _, plan := range plans {
		logger.Info().Str("room", plan.Name).
			Int("actors", len(plan.Actors)).
			Int("watched_entities", len(plan.WatchedEntities)).
			Msg("room configuration valid")
	}
	logger.Info().Int("rooms", len(plans)).Str("path", cfg.SchedulePath).Msg("schedule configuration valid")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if err := cfg.RequireHass(); err != nil {
		return err
	}

	logger.Info().Msg("Hearth starting")

	file, err := config.ParseScheduleFile(cfg.SchedulePath)
	if err != nil {
		return err
	}

	states := state.NewStore()
	bus := events.NewBus()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("closing state database failed")
		}
	}()

	client := hass.NewClient(hass.Options{
		URL:    cfg.HassURL,
		Token:  cfg.HassToken,
		Store:  states,
		Bus:    bus,
		Logger: logger,
	})

	plans, err := file.BuildRooms(states, logger)
	if err != nil {
		return err
	}

	deps := room.Deps{
		States:   states,
		Sink:     client,
		Store:    store,
		Bus:      bus,
		Logger:   logger,
		Location: cfg.Location(),
	}
	rooms := make([]*room.Service, 0, len(plans))
	for _, plan := range plans {
		if plan.RescheduleDelay == 0 {
			plan.RescheduleDelay = cfg.RescheduleDelay
		}
		rooms = append(rooms, room.New(plan, deps))
	}
	telemetry.RoomsConfigured.Set(float64(len(rooms)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("upstream connection loop failed")
		}
	}()

	// Fan state changes and reconnects out to the rooms.
	sub := bus.Subscribe(events.EventStateChanged, events.EventConnected)
	defer sub.Close()
	go func() {
		for ev := range sub.C {
			switch ev.Type {
			case events.EventStateChanged:
				for _, svc := range rooms {
					svc.HandleStateChanged(ctx, ev.Entity)
				}
			case events.EventConnected:
				for _, svc := range rooms {
					svc.Evaluate(ctx, "reconnect")
				}
			}
		}
	}()

	for _, svc := range rooms {
		go func(svc *room.Service) {
			if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Str("room", svc.Name()).Msg("room loop failed")
			}
		}(svc)
	}

	srv := server.New(cfg, rooms, logger)
	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")
	cancel()

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("Hearth stopped")
	return nil
}
