// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPair wires a Bridge and a Relay together and runs both until the test ends.
func startPair(t *testing.T, timeout time.Duration, opts RelayOptions) *Bridge {
	t.Helper()

	page, privileged := NewPortPair()
	b := New(page, timeout)
	relay := NewRelay(privileged, opts)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup

	wg.Add(2)

	go func() { defer wg.Done(); _ = b.Run(ctx) }()
	go func() { defer wg.Done(); _ = relay.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
		_ = page.Close()
	})

	return b
}

// startSilent runs a Bridge whose other end never answers.
func startSilent(t *testing.T, timeout time.Duration) (*Bridge, Port) {
	t.Helper()

	page, privileged := NewPortPair()
	b := New(page, timeout)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() { defer close(done); _ = b.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return b, privileged
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "tagbridge-test", r.Header.Get("User-Agent"))

		_, _ = w.Write([]byte(`[{"name":"cat"}]`))
	}))
	t.Cleanup(server.Close)

	b := startPair(t, time.Second, RelayOptions{Client: server.Client(), UserAgent: "tagbridge-test"})

	body, err := b.Fetch(context.Background(), server.URL+"/tags.json", FetchOptions{
		Method:  http.MethodGet,
		Headers: map[string]string{"Accept": "application/json"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"cat"}]`, string(body))
	assert.Equal(t, 0, b.ListenerCount())
}

func TestFetchNonJSONBodyIsCarriedAsString(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	t.Cleanup(server.Close)

	b := startPair(t, time.Second, RelayOptions{Client: server.Client()})

	body, err := b.Fetch(context.Background(), server.URL, FetchOptions{})
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(body, &s))
	assert.Equal(t, "plain text", s)
}

func TestFetchRelayError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"message":"slow down"}`))
	}))
	t.Cleanup(server.Close)

	b := startPair(t, time.Second, RelayOptions{Client: server.Client()})

	_, err := b.Fetch(context.Background(), server.URL, FetchOptions{Method: http.MethodGet})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRelayFailure)

	var relayErr *RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusTooManyRequests, relayErr.Status)
	assert.Equal(t, "slow down", relayErr.Message)
	assert.Contains(t, err.Error(), "status code: 429")
	assert.Equal(t, 0, b.ListenerCount())
}

func TestFetchNetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	b := startPair(t, time.Second, RelayOptions{})

	_, err := b.Fetch(context.Background(), url, FetchOptions{})
	require.ErrorIs(t, err, ErrRelayFailure)

	var relayErr *RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Zero(t, relayErr.Status)
}

func TestFetchResponseTooLarge(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"a_tag_name_long_enough"}]`))
	}))
	t.Cleanup(server.Close)

	b := startPair(t, time.Second, RelayOptions{MaxResponseSize: 16})

	_, err := b.Fetch(context.Background(), server.URL, FetchOptions{})
	require.ErrorIs(t, err, ErrRelayFailure)

	var relayErr *RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Contains(t, relayErr.Message, "too large")
	assert.Equal(t, 0, b.ListenerCount())
}

func TestFetchTimeoutRemovesListener(t *testing.T) {
	t.Parallel()

	b, _ := startSilent(t, 50*time.Millisecond)

	start := time.Now()

	_, err := b.Fetch(context.Background(), "https://example.test/tags.json", FetchOptions{})
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, b.ListenerCount())
}

func TestFetchTimeoutWhilePortIsFull(t *testing.T) {
	t.Parallel()

	page, privileged := NewPortPair()
	t.Cleanup(func() { _ = privileged.Close() })

	// Nobody reads the privileged end, so the buffer fills up.
	for range portBuffer {
		require.NoError(t, page.Send(context.Background(), []byte(`{}`)))
	}

	b := New(page, 50*time.Millisecond)

	errs := make(chan error, 1)

	go func() {
		_, err := b.Fetch(context.Background(), "https://example.test/tags.json", FetchOptions{})
		errs <- err
	}()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch blocked past its timeout")
	}

	assert.Equal(t, 0, b.ListenerCount())
}

func TestFetchCancelRemovesListener(t *testing.T) {
	t.Parallel()

	b, _ := startSilent(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 1)

	go func() {
		_, err := b.Fetch(ctx, "https://example.test/tags.json", FetchOptions{})
		errs <- err
	}()

	require.Eventually(t, func() bool { return b.ListenerCount() == 1 }, time.Second, time.Millisecond)

	cancel()

	require.ErrorIs(t, <-errs, context.Canceled)
	assert.Equal(t, 0, b.ListenerCount())
}

func TestLateResponseIsDropped(t *testing.T) {
	t.Parallel()

	b, privileged := startSilent(t, 20*time.Millisecond)

	_, err := b.Fetch(context.Background(), "https://example.test/", FetchOptions{})
	require.ErrorIs(t, err, ErrTimeout)

	// Answer the request after the caller gave up.
	req := <-privileged.Receive()

	var envelope RequestEnvelope
	require.NoError(t, json.Unmarshal(req, &envelope))

	late, err := json.Marshal(ResponseEnvelope{Type: TypeFetchResponse, ID: envelope.ID, Success: true, Data: json.RawMessage(`[]`)})
	require.NoError(t, err)
	require.NoError(t, privileged.Send(context.Background(), late))

	// A malformed and a foreign envelope are ignored too.
	require.NoError(t, privileged.Send(context.Background(), []byte("{")))
	require.NoError(t, privileged.Send(context.Background(), []byte(`{"type":"OTHER","id":"x"}`)))

	assert.Never(t, func() bool { return b.ListenerCount() != 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestConcurrentFetchesAreCorrelated(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"q":%q}`, r.URL.Query().Get("q"))
	}))
	t.Cleanup(server.Close)

	b := startPair(t, 5*time.Second, RelayOptions{Client: server.Client()})

	const n = 50

	var wg sync.WaitGroup

	errs := make(chan error, n)

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			q := fmt.Sprintf("tag%d", i)

			body, err := b.Fetch(context.Background(), server.URL+"/?q="+q, FetchOptions{})
			if err != nil {
				errs <- err

				return
			}

			var got struct{ Q string }
			if err := json.Unmarshal(body, &got); err != nil {
				errs <- err

				return
			}

			if got.Q != q {
				errs <- fmt.Errorf("got response for %q, want %q", got.Q, q)
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	assert.Equal(t, 0, b.ListenerCount())
}

func TestFetchOnClosedPort(t *testing.T) {
	t.Parallel()

	page, _ := NewPortPair()
	require.NoError(t, page.Close())

	b := New(page, time.Second)

	_, err := b.Fetch(context.Background(), "https://example.test/", FetchOptions{})
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, b.ListenerCount())
	assert.True(t, errors.Is(b.Run(context.Background()), ErrClosed))
}
