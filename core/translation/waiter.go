// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package translation

import (
	"context"
	"sync"

	"codeberg.org/pixivfe/tagbridge/core/directory"
)

// waiter is a result that any number of callers can wait on. It is completed
// once; every caller sees the same translations or the same error.
type waiter struct {
	once         sync.Once
	done         chan struct{}
	translations []directory.TranslatedTag
	err          error
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

// complete sets the result. Later calls are ignored.
func (w *waiter) complete(translations []directory.TranslatedTag, err error) bool {
	completed := false

	w.once.Do(func() {
		w.translations = translations
		w.err = err
		completed = true

		close(w.done)
	})

	return completed
}

// wait blocks until the waiter is completed or ctx is done.
func (w *waiter) wait(ctx context.Context) ([]directory.TranslatedTag, error) {
	select {
	case <-w.done:
		return w.translations, w.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pendingRequest is the queue entry for one normalized tag.
type pendingRequest struct {
	normalized string
	original   string // the first caller's spelling, for logs
	waiter     *waiter
}
