// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

// validation errors.
var (
	errInvalidPort           = errors.New("basic.port must not be empty")
	errInvalidBaseURL        = errors.New("directory.baseURL must be an http or https URL with a host")
	errInvalidAcceptLanguage = errors.New("directory.acceptLanguage is not a valid Accept-Language value")
	errNonPositiveDuration   = errors.New("duration must be positive")
	errNonPositiveCount      = errors.New("count must be positive")
	errInvalidPrefix         = errors.New("limiter prefix out of range")
	errInvalidSelector       = errors.New("annotator.selector is not a valid CSS selector")
	errInvalidLogLevel       = errors.New("log.logLevel must be one of debug, info, warn, error")
	errInvalidLogFormat      = errors.New("log.logFormat must be console or json")
)

// validateAndSet validates the configuration and normalizes some fields.
func (cfg *Config) validateAndSet() error {
	if cfg.Basic.Host == "" {
		cfg.Basic.Host = "localhost"
		log.Info().
			Str("host", cfg.Basic.Host).
			Msg("Binding to default host")
	}

	if cfg.Basic.Port == "" {
		return errInvalidPort
	}

	baseURL, err := url.Parse(cfg.Directory.BaseURL)
	if err != nil || (baseURL.Scheme != "http" && baseURL.Scheme != "https") || baseURL.Host == "" {
		return fmt.Errorf("%w: %q", errInvalidBaseURL, cfg.Directory.BaseURL)
	}

	cfg.Directory.BaseURL = strings.TrimSuffix(baseURL.String(), "/")

	if cfg.Directory.AcceptLanguage != "" {
		if _, _, err := language.ParseAcceptLanguage(cfg.Directory.AcceptLanguage); err != nil {
			return fmt.Errorf("%w: %w", errInvalidAcceptLanguage, err)
		}
	}

	durations := map[string]int64{
		"transport.timeout":         int64(cfg.Transport.Timeout),
		"retry.delay":               int64(cfg.Retry.Delay),
		"translator.batchInterval":  int64(cfg.Translator.BatchInterval),
		"translator.wikiChunkDelay": int64(cfg.Translator.WikiChunkDelay),
		"cache.ttl":                 int64(cfg.Cache.TTL),
		"annotator.debounce":        int64(cfg.Annotator.Debounce),
		"annotator.scanInterval":    int64(cfg.Annotator.ScanInterval),
	}

	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s: %w", name, errNonPositiveDuration)
		}
	}

	counts := map[string]float64{
		"relay.requestsPerSecond":  cfg.Relay.RequestsPerSecond,
		"relay.burst":              float64(cfg.Relay.Burst),
		"retry.attempts":           float64(cfg.Retry.Attempts),
		"translator.wikiChunkSize": float64(cfg.Translator.WikiChunkSize),
		"cache.maxEntries":         float64(cfg.Cache.MaxEntries),
	}

	for name, n := range counts {
		if n <= 0 {
			return fmt.Errorf("%s: %w", name, errNonPositiveCount)
		}
	}

	if err := cfg.validateLimiter(); err != nil {
		return err
	}

	if _, err := cascadia.Compile(cfg.Annotator.Selector); err != nil {
		return fmt.Errorf("%w: %w", errInvalidSelector, err)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errInvalidLogLevel
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		return errInvalidLogFormat
	}

	return nil
}

func (cfg *Config) validateLimiter() error {
	if !cfg.Limiter.Enabled {
		return nil
	}

	if cfg.Limiter.RequestsPerSecond <= 0 || cfg.Limiter.Burst <= 0 {
		return fmt.Errorf("limiter.requestsPerSecond and limiter.burst: %w", errNonPositiveCount)
	}

	if cfg.Limiter.IPv4Prefix < 0 || cfg.Limiter.IPv4Prefix > 32 {
		return fmt.Errorf("%w: ipv4Prefix %d", errInvalidPrefix, cfg.Limiter.IPv4Prefix)
	}

	if cfg.Limiter.IPv6Prefix < 0 || cfg.Limiter.IPv6Prefix > 128 {
		return fmt.Errorf("%w: ipv6Prefix %d", errInvalidPrefix, cfg.Limiter.IPv6Prefix)
	}

	return nil
}
