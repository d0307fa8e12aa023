// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"codeberg.org/pixivfe/tagbridge/core/annotator"
	"codeberg.org/pixivfe/tagbridge/core/bridge"
	"codeberg.org/pixivfe/tagbridge/core/directory"
	"codeberg.org/pixivfe/tagbridge/core/translation"
	"codeberg.org/pixivfe/tagbridge/server/middleware/limiter"
)

const (
	// The directory allows 10 reads per second per client.
	defaultRelayRequestsPerSecond = 10
	defaultRelayBurst             = 10
)

// SetDefaults populates the configuration with default values.
func (cfg *Config) SetDefaults() {
	cfg.Basic.Host = "localhost"
	cfg.Basic.Port = "8383"

	cfg.Directory.BaseURL = directory.DefaultBaseURL
	cfg.Directory.AcceptLanguage = ""
	cfg.Directory.UserAgent = bridge.DefaultUserAgent

	cfg.Transport.Timeout = bridge.DefaultTimeout

	cfg.Relay.RequestsPerSecond = defaultRelayRequestsPerSecond
	cfg.Relay.Burst = defaultRelayBurst

	cfg.Limiter.Enabled = true
	cfg.Limiter.RequestsPerSecond = limiter.DefaultRate
	cfg.Limiter.Burst = limiter.DefaultBurst
	cfg.Limiter.IPv4Prefix = limiter.DefaultIPv4Prefix
	cfg.Limiter.IPv6Prefix = limiter.DefaultIPv6Prefix
	cfg.Limiter.PassIPs = []string{"127.0.0.1", "::1"}

	cfg.Retry.Attempts = directory.DefaultAttempts
	cfg.Retry.Delay = directory.DefaultRetryDelay

	cfg.Translator.BatchInterval = translation.DefaultBatchInterval
	cfg.Translator.WikiChunkSize = directory.DefaultWikiChunkSize
	cfg.Translator.WikiChunkDelay = directory.DefaultWikiChunkDelay

	cfg.Cache.TTL = translation.DefaultCacheTTL
	cfg.Cache.MaxEntries = translation.DefaultCacheMaxEntries
	cfg.Cache.SnapshotPath = ""

	cfg.Annotator.Enabled = true
	cfg.Annotator.Selector = annotator.DefaultSelector
	cfg.Annotator.Debounce = annotator.DefaultDebounce
	cfg.Annotator.ScanInterval = annotator.DefaultScanInterval

	cfg.Development.SaveResponses = false
	cfg.Development.ResponseSaveLocation = "/tmp/tagbridge/responses"

	cfg.Log.Level = "info"
	cfg.Log.Outputs = []string{"/dev/stderr"}
	cfg.Log.Format = "console"
}
