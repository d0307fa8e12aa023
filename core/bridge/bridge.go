// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"codeberg.org/pixivfe/tagbridge/core/idgen"
)

// DefaultTimeout bounds how long a Fetch waits for its response.
const DefaultTimeout = 30 * time.Second

// Bridge is the unprivileged end of the transport.
//
// [Bridge.Run] must be running for responses to be delivered.
type Bridge struct {
	port    Port
	timeout time.Duration

	mu        sync.Mutex
	listeners map[string]chan ResponseEnvelope
}

// New returns a Bridge that talks over port. A non-positive timeout means DefaultTimeout.
func New(port Port, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Bridge{
		port:      port,
		timeout:   timeout,
		listeners: make(map[string]chan ResponseEnvelope),
	}
}

// Run routes response envelopes to their waiting Fetch calls until ctx is done
// or the port is closed.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.port.Done():
			return ErrClosed
		case msg := <-b.port.Receive():
			b.dispatch(msg)
		}
	}
}

// Fetch asks the relay to perform a request and returns the response body.
func (b *Bridge) Fetch(ctx context.Context, url string, opts FetchOptions) ([]byte, error) {
	id := idgen.Make()

	msg, err := json.Marshal(RequestEnvelope{
		Type:    TypeFetchRequest,
		ID:      id,
		URL:     url,
		Options: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request envelope: %w", err)
	}

	responses := b.listen(id)
	defer b.unlisten(id)

	// The timeout covers posting the envelope as well as waiting for the reply.
	fetchCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.port.Send(fetchCtx, msg); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, b.ctxError(ctx, url)
		}

		return nil, fmt.Errorf("failed to post request envelope: %w", err)
	}

	select {
	case resp := <-responses:
		if !resp.Success {
			return nil, &RelayError{
				Status:     resp.Status,
				StatusText: resp.StatusText,
				Message:    resp.Error,
			}
		}

		return resp.Data, nil
	case <-fetchCtx.Done():
		return nil, b.ctxError(ctx, url)
	case <-b.port.Done():
		return nil, ErrClosed
	}
}

// ctxError reports why a fetch context ended: the caller's own cancellation,
// or the bridge timeout.
func (b *Bridge) ctxError(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("%w after %s: %s", ErrTimeout, b.timeout, url)
}

// ListenerCount returns the number of Fetch calls waiting for a response.
func (b *Bridge) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.listeners)
}

func (b *Bridge) listen(id string) <-chan ResponseEnvelope {
	ch := make(chan ResponseEnvelope, 1)

	b.mu.Lock()
	b.listeners[id] = ch
	b.mu.Unlock()

	return ch
}

func (b *Bridge) unlisten(id string) {
	b.mu.Lock()
	delete(b.listeners, id)
	b.mu.Unlock()
}

// dispatch delivers one raw envelope to its listener, if it still has one.
func (b *Bridge) dispatch(msg []byte) {
	var resp ResponseEnvelope
	if err := json.Unmarshal(msg, &resp); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed bridge envelope")

		return
	}

	if resp.Type != TypeFetchResponse {
		return
	}

	b.mu.Lock()
	ch, ok := b.listeners[resp.ID]
	delete(b.listeners, resp.ID)
	b.mu.Unlock()

	if !ok {
		// The caller already gave up (timeout or cancellation).
		log.Debug().Str("id", resp.ID).Msg("No listener for bridge response")

		return
	}

	ch <- resp
}
