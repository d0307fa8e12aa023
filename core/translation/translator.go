// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"codeberg.org/pixivfe/tagbridge/core/directory"
)

// DefaultBatchInterval is how long requests are collected before a batch is
// resolved.
const DefaultBatchInterval = 500 * time.Millisecond

var (
	// ErrBatchDispatch is returned to every request of a batch whose
	// resolution failed as a whole.
	ErrBatchDispatch = errors.New("batch dispatch failed")

	// ErrShutdown is returned to requests still queued when the translator
	// shuts down, and to requests made afterwards.
	ErrShutdown = errors.New("translator shut down")
)

// Searcher looks up tags in the remote directory. *directory.Client
// implements it.
type Searcher interface {
	WikiSearch(ctx context.Context, tags []string) (map[string][]directory.TranslatedTag, error)
	DirectSearch(ctx context.Context, tags []string) (map[string][]directory.TranslatedTag, error)
	AliasSearch(ctx context.Context, tags []string) (map[string][]directory.TranslatedTag, error)
}

type searchFunc func(ctx context.Context, tags []string) (map[string][]directory.TranslatedTag, error)

// Translator batches tag translation requests and resolves them against the
// directory.
type Translator struct {
	searcher Searcher
	cache    *Cache
	interval time.Duration

	// ctx is canceled by Shutdown to abort batches still being resolved.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   []*pendingRequest
	pending map[string]*pendingRequest
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}

	inflight sync.WaitGroup
}

// New returns a translator resolving through searcher and caching in cache.
// A non-positive interval takes DefaultBatchInterval. The batch timer starts
// with the first request.
func New(searcher Searcher, cache *Cache, interval time.Duration) *Translator {
	if interval <= 0 {
		interval = DefaultBatchInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Translator{
		searcher: searcher,
		cache:    cache,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]*pendingRequest),
	}
}

// TranslateTag returns the directory tags matching tag.
//
// An unknown tag yields an empty list, not an error. The call blocks until
// the batch holding the tag is resolved or ctx is done.
func (t *Translator) TranslateTag(ctx context.Context, tag string) ([]directory.TranslatedTag, error) {
	normalized := Normalize(tag)
	if normalized == "" {
		return []directory.TranslatedTag{}, nil
	}

	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()

		return nil, ErrShutdown
	}

	if cached, ok := t.cache.Get(normalized); ok {
		t.mu.Unlock()

		return cached, nil
	}

	req, ok := t.pending[normalized]
	if !ok {
		req = &pendingRequest{
			normalized: normalized,
			original:   tag,
			waiter:     newWaiter(),
		}

		t.queue = append(t.queue, req)
		t.pending[normalized] = req

		t.startLocked()
	}

	t.mu.Unlock()

	return req.waiter.wait(ctx)
}

// TranslateTags translates every distinct tag concurrently. The result is
// keyed by the tags as given. The first failing tag fails the whole call.
func (t *Translator) TranslateTags(ctx context.Context, tags []string) (map[string][]directory.TranslatedTag, error) {
	unique := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))

	for _, tag := range tags {
		if seen[tag] {
			continue
		}

		seen[tag] = true
		unique = append(unique, tag)
	}

	var (
		mu      sync.Mutex
		results = make(map[string][]directory.TranslatedTag, len(unique))
	)

	g, gctx := errgroup.WithContext(ctx)

	for _, tag := range unique {
		g.Go(func() error {
			translations, err := t.TranslateTag(gctx, tag)
			if err != nil {
				return fmt.Errorf("failed to translate %q: %w", tag, err)
			}

			mu.Lock()
			results[tag] = translations
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// Start starts the batch timer. It is a no-op if the timer is running or the
// translator is shut down.
func (t *Translator) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startLocked()
}

func (t *Translator) startLocked() {
	if t.running || t.closed {
		return
	}

	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.loop(t.stop, t.done)
}

// Stop stops the batch timer. Queued requests stay queued until the timer
// is started again. Batches already being resolved are not affected.
func (t *Translator) Stop() {
	t.mu.Lock()

	if !t.running {
		t.mu.Unlock()

		return
	}

	t.running = false
	close(t.stop)
	done := t.done

	t.mu.Unlock()

	<-done
}

// Running reports whether the batch timer is running.
func (t *Translator) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.running
}

// Shutdown stops the timer, rejects queued requests with ErrShutdown and
// waits for batches in flight. Later requests fail with ErrShutdown.
func (t *Translator) Shutdown() {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()

		return
	}

	t.closed = true
	queued := t.drainLocked()

	var done chan struct{}

	if t.running {
		t.running = false
		close(t.stop)
		done = t.done
	}

	t.mu.Unlock()

	if done != nil {
		<-done
	}

	for _, req := range queued {
		req.waiter.complete(nil, ErrShutdown)
	}

	t.cancel()
	t.inflight.Wait()

	log.Debug().Int("rejected", len(queued)).Msg("Translator shut down")
}

// ClearCache drops every cached translation.
func (t *Translator) ClearCache() {
	t.cache.Clear()
}

// CacheStats describes the translation cache.
func (t *Translator) CacheStats() CacheStats {
	return t.cache.Stats()
}

func (t *Translator) queueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.queue)
}

func (t *Translator) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.flush()
		}
	}
}

// flush takes the whole queue as one batch and resolves it in the background,
// so a slow batch does not delay the next tick.
func (t *Translator) flush() {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()

		return
	}

	batch := t.drainLocked()
	if len(batch) > 0 {
		t.inflight.Add(1)
	}

	t.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	go func() {
		defer t.inflight.Done()

		t.dispatch(batch)
	}()
}

func (t *Translator) drainLocked() []*pendingRequest {
	batch := t.queue
	t.queue = nil

	clear(t.pending)

	return batch
}

// dispatch resolves batch and completes every request in it exactly once.
func (t *Translator) dispatch(batch []*pendingRequest) {
	results, err := t.resolve(t.ctx, batch)
	if err != nil {
		log.Error().Err(err).Int("tags", len(batch)).Msg("Translation batch failed")

		for _, req := range batch {
			req.waiter.complete(nil, err)
		}

		return
	}

	for _, req := range batch {
		translations, ok := results[strings.ToLower(req.normalized)]
		if !ok {
			translations = []directory.TranslatedTag{}
		}

		t.cache.Put(req.normalized, translations)
		req.waiter.complete(translations, nil)
	}
}

// resolve looks up every tag of batch. Results are keyed by lowercased tag.
func (t *Translator) resolve(ctx context.Context, batch []*pendingRequest) (results map[string][]directory.TranslatedTag, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("%w: %v", ErrBatchDispatch, r)
		}
	}()

	var ascii, nonASCII []string

	seen := make(map[string]bool, len(batch))

	for _, req := range batch {
		key := strings.ToLower(req.normalized)
		if seen[key] {
			continue
		}

		seen[key] = true

		if directory.IsASCII(req.normalized) {
			ascii = append(ascii, req.normalized)
		} else {
			nonASCII = append(nonASCII, req.normalized)
		}
	}

	log.Debug().
		Int("tags", len(batch)).
		Int("ascii", len(ascii)).
		Int("nonASCII", len(nonASCII)).
		Msg("Resolving translation batch")

	var (
		wiki   map[string][]directory.TranslatedTag
		direct map[string][]directory.TranslatedTag
		panics = make(chan any, 2)
		g      errgroup.Group
	)

	// Panics in these goroutines would not reach the recover above.
	guard := func(fn func()) func() error {
		return func() error {
			defer func() {
				if r := recover(); r != nil {
					panics <- r
				}
			}()

			fn()

			return nil
		}
	}

	g.Go(guard(func() {
		wiki = t.search(ctx, "wiki", t.searcher.WikiSearch, nonASCII)
	}))

	g.Go(guard(func() {
		direct = t.search(ctx, "direct", t.searcher.DirectSearch, ascii)

		var unmatched []string

		for _, tag := range ascii {
			if len(direct[strings.ToLower(tag)]) == 0 {
				unmatched = append(unmatched, tag)
			}
		}

		aliases := t.search(ctx, "alias", t.searcher.AliasSearch, unmatched)
		for key, translations := range aliases {
			if len(direct[key]) == 0 {
				direct[key] = translations
			}
		}
	}))

	_ = g.Wait()

	select {
	case r := <-panics:
		panic(r)
	default:
	}

	if ctx.Err() != nil {
		return nil, ErrShutdown
	}

	results = make(map[string][]directory.TranslatedTag, len(wiki)+len(direct))

	for key, translations := range wiki {
		results[key] = translations
	}

	for key, translations := range direct {
		results[key] = translations
	}

	return results, nil
}

// search runs one lookup strategy. Failures are logged and read as
// "nothing found" so one strategy cannot fail the others.
func (t *Translator) search(ctx context.Context, strategy string, fn searchFunc, tags []string) map[string][]directory.TranslatedTag {
	if len(tags) == 0 {
		return map[string][]directory.TranslatedTag{}
	}

	results, err := fn(ctx, tags)
	if err != nil {
		log.Warn().
			Err(err).
			Str("strategy", strategy).
			Strs("tags", tags).
			Msg("Tag lookup failed")

		return map[string][]directory.TranslatedTag{}
	}

	if results == nil {
		results = map[string][]directory.TranslatedTag{}
	}

	return results
}
