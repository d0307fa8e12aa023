// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"codeberg.org/pixivfe/tagbridge/core/bridge"
)

// Defaults match the limits the public Danbooru instance tolerates.
const (
	DefaultBaseURL        = "https://danbooru.donmai.us"
	DefaultAttempts       = 3
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultWikiChunkSize  = 10
	DefaultWikiChunkDelay = 100 * time.Millisecond

	resultLimit = "1000"
)

var (
	// ErrEndpointFailure is returned once every attempt at a request has failed.
	ErrEndpointFailure = errors.New("directory endpoint failed")

	// ErrInvalidResponse is returned when a response body is not a JSON array.
	ErrInvalidResponse = errors.New("directory response is not a JSON array")
)

// Fetcher performs a single GET-like request and returns the response body.
//
// [bridge.Bridge] is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts bridge.FetchOptions) ([]byte, error)
}

// Options configures a [Client]. Zero fields take the package defaults.
type Options struct {
	BaseURL        string
	AcceptLanguage string
	Attempts       int
	RetryDelay     time.Duration
	WikiChunkSize  int
	WikiChunkDelay time.Duration
}

// Client looks tags up in the directory.
type Client struct {
	fetcher Fetcher
	opts    Options
}

// NewClient returns a Client that sends its requests through fetcher.
func NewClient(fetcher Fetcher, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	if opts.WikiChunkSize <= 0 {
		opts.WikiChunkSize = DefaultWikiChunkSize
	}

	if opts.WikiChunkDelay <= 0 {
		opts.WikiChunkDelay = DefaultWikiChunkDelay
	}

	return &Client{fetcher: fetcher, opts: opts}
}

// BaseURL returns the directory base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.opts.BaseURL
}

// fetchJSON GETs url and returns the parsed JSON array.
//
// Failed attempts, including responses that are not a JSON array, are retried
// after a fixed delay. The error from the last attempt is returned wrapped in
// ErrEndpointFailure.
func (c *Client) fetchJSON(ctx context.Context, url string) (gjson.Result, error) {
	opts := bridge.FetchOptions{
		Method: http.MethodGet,
		Headers: map[string]string{
			"Accept": "application/json",
		},
	}

	if c.opts.AcceptLanguage != "" {
		opts.Headers["Accept-Language"] = c.opts.AcceptLanguage
	}

	var lastErr error

	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.opts.RetryDelay); err != nil {
				return gjson.Result{}, err
			}
		}

		body, err := c.fetcher.Fetch(ctx, url, opts)
		if err == nil {
			if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsArray() {
				err = ErrInvalidResponse
			} else {
				return gjson.ParseBytes(body), nil
			}
		}

		lastErr = err

		if ctx.Err() != nil {
			return gjson.Result{}, ctx.Err()
		}

		log.Debug().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Int("max_attempts", c.opts.Attempts).
			Msg("Directory request failed")
	}

	return gjson.Result{}, fmt.Errorf("%w after %d attempts: %w", ErrEndpointFailure, c.opts.Attempts, lastErr)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
