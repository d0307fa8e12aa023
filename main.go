// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
tagbridge translates pixiv tags into Danbooru tags.

Without arguments it serves a small JSON API for the upload helper. With -tags
it prints the translations of the given tags; with -page it annotates the
recommended tags of a saved upload page, once or, with -watch, every time the
file changes.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"codeberg.org/pixivfe/tagbridge/config"
	"codeberg.org/pixivfe/tagbridge/core/audit"
	"codeberg.org/pixivfe/tagbridge/server/router"
	"codeberg.org/pixivfe/tagbridge/server/routes"
)

const (
	// Values for http.Server timeouts.
	// ref: gosec: G112
	readHeaderTimeout time.Duration = 15 * time.Second
	readTimeout       time.Duration = 15 * time.Second
	writeTimeout      time.Duration = 60 * time.Second
	idleTimeout       time.Duration = 30 * time.Second

	serverShutdownDeadline time.Duration = 5 * time.Second
)

// main is the entry point of the application.
func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

// run loads the configuration, starts the translation services and runs the
// mode selected on the command line.
func run(args []string, stdout io.Writer) error {
	audit.SetDefaultLogger()

	cmd, err := config.ParseCommandLine(args, os.Stderr)
	if err != nil {
		return err
	}

	if err := config.Global.LoadConfig(cmd); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg := &config.Global

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := startServices(cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	switch {
	case len(cmd.Tags) > 0:
		return printTranslations(ctx, svc.translator, cmd.Tags, stdout)
	case cmd.Watch:
		return watchFile(ctx, svc.translator, cfg, cmd.PagePath, cmd.OutPath)
	case cmd.PagePath != "":
		return annotateFile(ctx, svc.translator, cfg, cmd.PagePath, cmd.OutPath, stdout)
	default:
		return serve(ctx, svc, cfg)
	}
}

// serve runs the API server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, svc *services, cfg *config.Config) error {
	api := &routes.API{
		Tags:        svc.translator,
		WikiBaseURL: cfg.Directory.BaseURL,
	}

	server := &http.Server{
		Handler:           router.NewRouter(api),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to start TCP listener on %v: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("address", listener.Addr().String()).
		Str("url", fmt.Sprintf("http://%s/api/v1/cache", listener.Addr())).
		Msg("Listening on address")

	// Channel to listen for server errors
	serverErrors := make(chan error, 1)

	go func() {
		serverErrors <- server.Serve(listener)
	}()

	// Block until a shutdown signal or a server error is received
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownDeadline)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
	}

	log.Info().Msg("Server exited gracefully")

	return nil
}
