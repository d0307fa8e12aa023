// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package config loads the tagbridge configuration from defaults, a YAML file,
a .env file and the environment, in that order.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"

	"codeberg.org/pixivfe/tagbridge/core/idgen"
)

// Global exposes the loaded configuration.
var Global Config

// Config holds the application configuration.
type Config struct {
	Build buildInfo `yaml:"-"`

	Basic struct {
		Host string `env:"TAGBRIDGE_HOST,overwrite" yaml:"host"`
		Port string `env:"TAGBRIDGE_PORT,overwrite" yaml:"port"`
	} `yaml:"basic"`

	Directory struct {
		BaseURL        string `env:"TAGBRIDGE_DIRECTORY_URL,overwrite"    yaml:"baseURL"`
		AcceptLanguage string `env:"TAGBRIDGE_ACCEPTLANGUAGE,overwrite"   yaml:"acceptLanguage"`
		UserAgent      string `env:"TAGBRIDGE_USER_AGENT,overwrite"       yaml:"userAgent"`
	} `yaml:"directory"`

	Transport struct {
		Timeout time.Duration `env:"TAGBRIDGE_TRANSPORT_TIMEOUT,overwrite" yaml:"timeout"`
	} `yaml:"transport"`

	Relay struct {
		RequestsPerSecond float64 `env:"TAGBRIDGE_RELAY_RPS,overwrite"   yaml:"requestsPerSecond"`
		Burst             int     `env:"TAGBRIDGE_RELAY_BURST,overwrite" yaml:"burst"`
	} `yaml:"relay"`

	Limiter struct {
		Enabled           bool     `env:"TAGBRIDGE_LIMITER,overwrite"             yaml:"enabled"`
		RequestsPerSecond float64  `env:"TAGBRIDGE_LIMITER_RPS,overwrite"         yaml:"requestsPerSecond"`
		Burst             int      `env:"TAGBRIDGE_LIMITER_BURST,overwrite"       yaml:"burst"`
		IPv4Prefix        int      `env:"TAGBRIDGE_LIMITER_IPV4_PREFIX,overwrite" yaml:"ipv4Prefix"`
		IPv6Prefix        int      `env:"TAGBRIDGE_LIMITER_IPV6_PREFIX,overwrite" yaml:"ipv6Prefix"`
		PassIPs           []string `env:"TAGBRIDGE_LIMITER_PASS_IPS,overwrite"    yaml:"passIPs"`
	} `yaml:"limiter"`

	Retry struct {
		Attempts int           `env:"TAGBRIDGE_RETRY_ATTEMPTS,overwrite" yaml:"attempts"`
		Delay    time.Duration `env:"TAGBRIDGE_RETRY_DELAY,overwrite"    yaml:"delay"`
	} `yaml:"retry"`

	Translator struct {
		BatchInterval  time.Duration `env:"TAGBRIDGE_BATCH_INTERVAL,overwrite"   yaml:"batchInterval"`
		WikiChunkSize  int           `env:"TAGBRIDGE_WIKI_CHUNK_SIZE,overwrite"  yaml:"wikiChunkSize"`
		WikiChunkDelay time.Duration `env:"TAGBRIDGE_WIKI_CHUNK_DELAY,overwrite" yaml:"wikiChunkDelay"`
	} `yaml:"translator"`

	Cache struct {
		TTL          time.Duration `env:"TAGBRIDGE_CACHE_TTL,overwrite"         yaml:"ttl"`
		MaxEntries   int           `env:"TAGBRIDGE_CACHE_MAX_ENTRIES,overwrite" yaml:"maxEntries"`
		SnapshotPath string        `env:"TAGBRIDGE_CACHE_SNAPSHOT,overwrite"    yaml:"snapshotPath"`
	} `yaml:"cache"`

	Annotator struct {
		Enabled      bool          `env:"TAGBRIDGE_ANNOTATOR,overwrite"               yaml:"enabled"`
		Selector     string        `env:"TAGBRIDGE_ANNOTATOR_SELECTOR,overwrite"      yaml:"selector"`
		Debounce     time.Duration `env:"TAGBRIDGE_ANNOTATOR_DEBOUNCE,overwrite"      yaml:"debounce"`
		ScanInterval time.Duration `env:"TAGBRIDGE_ANNOTATOR_SCAN_INTERVAL,overwrite" yaml:"scanInterval"`
	} `yaml:"annotator"`

	Instance struct {
		StartingTime string `yaml:"-"`
		ID           string `yaml:"-"`
	} `yaml:"-"`

	Development struct {
		SaveResponses        bool   `env:"TAGBRIDGE_SAVE_RESPONSES,overwrite"         yaml:"saveResponses"`
		ResponseSaveLocation string `env:"TAGBRIDGE_RESPONSE_SAVE_LOCATION,overwrite" yaml:"responseSaveLocation"`
	} `yaml:"development"`

	Log struct {
		Level   string   `env:"TAGBRIDGE_LOG_LEVEL,overwrite"   yaml:"logLevel"`
		Outputs []string `env:"TAGBRIDGE_LOG_OUTPUTS,overwrite" yaml:"logOutputs"`
		Format  string   `env:"TAGBRIDGE_LOG_FORMAT,overwrite"  yaml:"logFormat"`
	} `yaml:"log"`
}

// LoadConfig loads the configuration, using the config file named on the
// command line if there is one.
func (cfg *Config) LoadConfig(cmd CommandLine) error {
	configFilePath := cmd.configFilePath()

	cfg.SetDefaults()

	cfg.Build.load()

	cfg.Instance.ID = idgen.Make()
	cfg.Instance.StartingTime = time.Now().UTC().Format("2006-01-02 15:04")

	if err := cfg.readYAML(configFilePath); err != nil {
		return fmt.Errorf("error loading YAML config: %w", err)
	}

	if err := useDotEnv(); err != nil {
		return fmt.Errorf("error using .env file: %w", err)
	}

	if err := readEnv(cfg); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}

	if err := cfg.validateAndSet(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	cfg.setupAudit()

	cfg.print()

	return nil
}

// Addr is the listen address of the API server.
func (cfg *Config) Addr() string {
	return cfg.Basic.Host + ":" + cfg.Basic.Port
}

// GetDurationEncoderOption returns a YAML encoder option that marshals
// time.Duration into a human-readable string format (e.g., "30m", "1h").
func GetDurationEncoderOption() yaml.EncodeOption {
	return yaml.CustomMarshaler[time.Duration](
		func(d time.Duration) ([]byte, error) {
			return yaml.Marshal(d.String())
		},
	)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("Could not stat file")
	}

	return err == nil
}
