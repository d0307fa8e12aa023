// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package bridge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"codeberg.org/pixivfe/tagbridge/core/audit"
)

const (
	// clientSessionCacheSize defines the size of the TLS session cache.
	clientSessionCacheSize = 20

	// maxIdleConnsPerHost defines maximum idle connections to keep per host.
	maxIdleConnsPerHost = 20

	// bufferSize defines the read and write buffer size in bytes (32KB).
	bufferSize = 32 * 1024

	// DefaultMaxResponseSize bounds response bodies. A 1000-record page of
	// the directory is well under 1MB.
	DefaultMaxResponseSize = 8 << 20

	// DefaultUserAgent identifies the relay to the directory.
	DefaultUserAgent = "tagbridge/0.1 (+https://codeberg.org/pixivfe/tagbridge)"
)

// HTTPClient is the pre-configured client used by relays that are not given one.
var HTTPClient = &http.Client{
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{
			ClientSessionCache: tls.NewLRUClientSessionCache(clientSessionCacheSize),
			MinVersion:         tls.VersionTLS12,
		},
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        0,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		WriteBufferSize:     bufferSize,
		ReadBufferSize:      bufferSize,
	},
}

var errResponseTooLarge = errors.New("response body too large")

// RelayOptions configures a [Relay].
type RelayOptions struct {
	// Client performs the requests. Defaults to HTTPClient.
	Client *http.Client

	// Limiter throttles outgoing requests. Nil means unlimited.
	Limiter *rate.Limiter

	// UserAgent is sent unless the request sets its own.
	UserAgent string

	// MaxResponseSize is the largest body accepted, in bytes. Defaults to
	// DefaultMaxResponseSize.
	MaxResponseSize int64
}

// Relay is the privileged end of the transport. It performs the requests
// posted by a [Bridge].
type Relay struct {
	port Port
	opts RelayOptions
	wg   sync.WaitGroup
}

// NewRelay returns a Relay serving requests from port.
func NewRelay(port Port, opts RelayOptions) *Relay {
	if opts.Client == nil {
		opts.Client = HTTPClient
	}

	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = DefaultMaxResponseSize
	}

	return &Relay{port: port, opts: opts}
}

// Serve handles request envelopes until ctx is done or the port is closed.
// Requests are performed concurrently. Serve waits for in-flight requests
// before returning.
func (r *Relay) Serve(ctx context.Context) error {
	defer r.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.port.Done():
			return ErrClosed
		case msg := <-r.port.Receive():
			if kind, err := envelopeType(msg); err != nil || kind != TypeFetchRequest {
				log.Warn().Err(err).Str("type", kind).Msg("Relay ignoring unexpected envelope")

				continue
			}

			var req RequestEnvelope
			if err := json.Unmarshal(msg, &req); err != nil {
				log.Warn().Err(err).Msg("Relay dropping malformed request envelope")

				continue
			}

			r.wg.Add(1)

			go func() {
				defer r.wg.Done()

				r.handle(ctx, req)
			}()
		}
	}
}

// handle performs one request and posts its response envelope.
func (r *Relay) handle(ctx context.Context, req RequestEnvelope) {
	resp := r.perform(ctx, req)

	msg, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("id", req.ID).Msg("Failed to encode response envelope")

		return
	}

	if err := r.port.Send(ctx, msg); err != nil {
		log.Debug().Err(err).Str("id", req.ID).Msg("Failed to post response envelope")
	}
}

func (r *Relay) perform(ctx context.Context, req RequestEnvelope) (resp ResponseEnvelope) {
	resp = ResponseEnvelope{Type: TypeFetchResponse, ID: req.ID}

	if r.opts.Limiter != nil {
		if err := r.opts.Limiter.Wait(ctx); err != nil {
			resp.Error = err.Error()

			return resp
		}
	}

	method := req.Options.Method
	if method == "" {
		method = http.MethodGet
	}

	span := audit.Span{
		Destination: audit.ToDirectory,
		RequestID:   req.ID,
		Method:      method,
		URL:         req.URL,
	}

	_ = span.Begin(ctx)
	defer span.End() // in case of error

	body, status, err := r.do(ctx, method, req)

	span.StatusCode = status
	span.Body = body
	span.Error = err

	span.End()
	span.Log()

	if err != nil {
		resp.Error = err.Error()

		return resp
	}

	resp.Status = status
	resp.StatusText = http.StatusText(status)

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		resp.Error = errorMessage(body, status)

		return resp
	}

	resp.Success = true

	if json.Valid(body) {
		resp.Data = body
	} else {
		// Marshalling a string cannot fail.
		resp.Data, _ = json.Marshal(string(body))
	}

	return resp
}

func (r *Relay) do(ctx context.Context, method string, req RequestEnvelope) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	for name, value := range req.Options.Headers {
		httpReq.Header.Set(name, value)
	}

	if httpReq.Header.Get("User-Agent") == "" && r.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", r.opts.UserAgent)
	}

	httpResp, err := r.opts.Client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, r.opts.MaxResponseSize+1))
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > r.opts.MaxResponseSize {
		return nil, httpResp.StatusCode, fmt.Errorf("%w: more than %d bytes", errResponseTooLarge, r.opts.MaxResponseSize)
	}

	return body, httpResp.StatusCode, nil
}

// errorMessage extracts an error message from a failed response.
func errorMessage(body []byte, status int) string {
	// Danbooru reports errors as {"success": false, "reason": ..., "message": ...}.
	if gjson.ValidBytes(body) {
		result := gjson.ParseBytes(body)

		if message := result.Get("message").String(); message != "" {
			return message
		}

		if reason := result.Get("reason").String(); reason != "" {
			return reason
		}
	}

	if text := http.StatusText(status); text != "" {
		return text
	}

	return "An unknown relay error occurred"
}
