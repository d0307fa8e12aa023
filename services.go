// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"codeberg.org/pixivfe/tagbridge/config"
	"codeberg.org/pixivfe/tagbridge/core/bridge"
	"codeberg.org/pixivfe/tagbridge/core/directory"
	"codeberg.org/pixivfe/tagbridge/core/translation"
)

// services is the running translation stack: relay and bridge talking over
// a port pair, the directory client on top of the bridge, and the translator.
type services struct {
	cancel     context.CancelFunc
	loops      *errgroup.Group
	ports      []bridge.Port
	cache      *translation.Cache
	translator *translation.Translator

	snapshotPath string
}

func startServices(cfg *config.Config) (*services, error) {
	cache, err := translation.NewCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.SnapshotPath != "" {
		if err := cache.LoadSnapshotFile(cfg.Cache.SnapshotPath); err != nil {
			log.Warn().Err(err).Msg("Ignoring unreadable cache snapshot")
		}
	}

	pagePort, relayPort := bridge.NewPortPair()

	relay := bridge.NewRelay(relayPort, bridge.RelayOptions{
		Limiter:   rate.NewLimiter(rate.Limit(cfg.Relay.RequestsPerSecond), cfg.Relay.Burst),
		UserAgent: cfg.Directory.UserAgent,
	})
	b := bridge.New(pagePort, cfg.Transport.Timeout)

	ctx, cancel := context.WithCancel(context.Background())
	loops, ctx := errgroup.WithContext(ctx)

	loops.Go(func() error { return expectedStop(relay.Serve(ctx)) })
	loops.Go(func() error { return expectedStop(b.Run(ctx)) })

	client := directory.NewClient(b, directory.Options{
		BaseURL:        cfg.Directory.BaseURL,
		AcceptLanguage: cfg.Directory.AcceptLanguage,
		Attempts:       cfg.Retry.Attempts,
		RetryDelay:     cfg.Retry.Delay,
		WikiChunkSize:  cfg.Translator.WikiChunkSize,
		WikiChunkDelay: cfg.Translator.WikiChunkDelay,
	})

	return &services{
		cancel:       cancel,
		loops:        loops,
		ports:        []bridge.Port{pagePort, relayPort},
		cache:        cache,
		translator:   translation.New(client, cache, cfg.Translator.BatchInterval),
		snapshotPath: cfg.Cache.SnapshotPath,
	}, nil
}

// close shuts the stack down in dependency order and saves the cache.
func (s *services) close() {
	s.translator.Shutdown()

	s.cancel()

	for _, port := range s.ports {
		_ = port.Close()
	}

	if err := s.loops.Wait(); err != nil {
		log.Error().Err(err).Msg("Transport stopped with an error")
	}

	if s.snapshotPath != "" {
		if err := s.cache.SaveSnapshotFile(s.snapshotPath); err != nil {
			log.Error().Err(err).Msg("Failed to save cache snapshot")
		}
	}
}

func expectedStop(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, bridge.ErrClosed) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("transport loop failed: %w", err)
	}

	return nil
}
