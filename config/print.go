// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// YAML renders the effective configuration with human-readable durations.
func (cfg *Config) YAML() ([]byte, error) {
	out, err := yaml.MarshalWithOptions(cfg, GetDurationEncoderOption())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	return out, nil
}

func (cfg *Config) print() {
	log.Info().
		Str("version", BuildVersion).
		Str("revision", cfg.Build.Revision()).
		Str("instance", cfg.Instance.ID).
		Msg("Starting tagbridge")

	configYAML, err := cfg.YAML()
	if err != nil {
		log.Error().Err(err).Msg("Failed to print configuration")

		return
	}

	log.Debug().
		Msg("Application configuration:")

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		fmt.Fprintln(os.Stderr, string(configYAML))
	}
}
