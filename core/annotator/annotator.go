// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package annotator adds directory translations next to the recommended-tag
controls of an upload page.

An [Annotator] scans the page once when started, again shortly after the page
changes, and on a slow timer as a fallback. Each control whose label is not
plain ASCII gets a loading indicator, then a list of links to the matching
directory tags.
*/
package annotator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"codeberg.org/pixivfe/tagbridge/core/directory"
)

// Defaults for Options.
const (
	DefaultSelector     = "section.recommended-tags button"
	DefaultDebounce     = 300 * time.Millisecond
	DefaultScanInterval = 2 * time.Second
)

// TagTranslator resolves a tag label. *translation.Translator implements it.
type TagTranslator interface {
	TranslateTag(ctx context.Context, tag string) ([]directory.TranslatedTag, error)
}

// Options configures an Annotator. Zero fields take the defaults.
type Options struct {
	// Selector matches the recommended-tag controls.
	Selector string

	// Debounce is how long the page must stay unchanged before a scan.
	Debounce time.Duration

	// ScanInterval is the period of the fallback scan.
	ScanInterval time.Duration

	// WikiBaseURL is the directory the result links point to.
	WikiBaseURL string
}

// Annotator decorates the recommended-tag controls of a Page.
type Annotator struct {
	page       *Page
	translator TagTranslator
	opts       Options

	enabled atomic.Bool
	scans   atomic.Int64
	notify  chan struct{}

	// Translations in flight. Scan may add to it while Wait is blocked.
	pendingMu sync.Mutex
	pending   int
	idle      *sync.Cond

	mu        sync.Mutex
	cancel    context.CancelFunc
	loopDone  chan struct{}
	unobserve func()
}

// New returns an enabled annotator for page.
func New(page *Page, translator TagTranslator, opts Options) *Annotator {
	if opts.Selector == "" {
		opts.Selector = DefaultSelector
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}

	if opts.WikiBaseURL == "" {
		opts.WikiBaseURL = directory.DefaultBaseURL
	}

	a := &Annotator{
		page:       page,
		translator: translator,
		opts:       opts,
		notify:     make(chan struct{}, 1),
	}
	a.idle = sync.NewCond(&a.pendingMu)
	a.enabled.Store(true)

	return a
}

// SetEnabled turns the annotator on or off. A disabled annotator does not
// scan, so it makes no lookups. Enabling schedules a scan.
func (a *Annotator) SetEnabled(enabled bool) {
	if a.enabled.Swap(enabled) == enabled || !enabled {
		return
	}

	a.poke()
}

// Enabled reports whether the annotator scans.
func (a *Annotator) Enabled() bool {
	return a.enabled.Load()
}

// Start scans the page, then keeps watching it until ctx is done or Stop is
// called. Calling Start on a running annotator does nothing.
func (a *Annotator) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.loopDone = make(chan struct{})
	a.unobserve = a.page.Observe(a.observe)

	a.Scan(ctx)

	go a.loop(ctx, a.loopDone)
}

// Stop ends the watch loops and waits for translations in flight.
func (a *Annotator) Stop() {
	a.mu.Lock()

	if a.cancel == nil {
		a.mu.Unlock()

		return
	}

	a.cancel()
	a.unobserve()
	done := a.loopDone
	a.cancel = nil

	a.mu.Unlock()

	<-done

	a.Wait()
}

// Wait blocks until every translation started so far has been applied.
func (a *Annotator) Wait() {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()

	for a.pending > 0 {
		a.idle.Wait()
	}
}

func (a *Annotator) addPending(n int) {
	a.pendingMu.Lock()
	a.pending += n
	a.pendingMu.Unlock()
}

func (a *Annotator) donePending() {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()

	a.pending--
	if a.pending == 0 {
		a.idle.Broadcast()
	}
}

// Scans reports how many scans ran.
func (a *Annotator) Scans() int64 {
	return a.scans.Load()
}

// observe runs under the page lock after each mutation.
func (a *Annotator) observe(changed *goquery.Selection) {
	if changed.Is(a.opts.Selector) || changed.Find(a.opts.Selector).Length() > 0 {
		a.poke()
	}
}

func (a *Annotator) poke() {
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

func (a *Annotator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.opts.ScanInterval)
	defer ticker.Stop()

	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
	)

	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.notify:
			if debounce != nil {
				debounce.Stop()
			}

			debounce = time.NewTimer(a.opts.Debounce)
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil

			a.Scan(ctx)
		case <-ticker.C:
			a.Scan(ctx)
		}
	}
}

type job struct {
	label   string
	control *html.Node
}

// Scan marks every visible, unprocessed control with a non-ASCII label and
// starts its translation. It returns the number of translations started.
func (a *Annotator) Scan(ctx context.Context) int {
	if !a.enabled.Load() {
		return 0
	}

	a.scans.Add(1)

	var jobs []job

	a.page.View(func(doc *goquery.Document) {
		doc.Find(a.opts.Selector).Each(func(_ int, control *goquery.Selection) {
			if control.AttrOr(MarkerAttr, "") == MarkerProcessed || !visible(control) {
				return
			}

			label := strings.TrimSpace(control.Text())
			if !hasNonASCII(label) {
				return
			}

			// Marked before the lookup so the next scan skips it.
			control.SetAttr(MarkerAttr, MarkerProcessed)
			control.AppendNodes(loadingNode())

			jobs = append(jobs, job{label: label, control: control.Get(0)})
		})
	})

	a.addPending(len(jobs))

	for _, j := range jobs {
		go func() {
			defer a.donePending()

			a.annotate(ctx, j)
		}()
	}

	if len(jobs) > 0 {
		log.Debug().Int("controls", len(jobs)).Msg("Annotating recommended tags")
	}

	return len(jobs)
}

func (a *Annotator) annotate(ctx context.Context, j job) {
	translations, err := a.translator.TranslateTag(ctx, j.label)

	a.page.View(func(doc *goquery.Document) {
		// The control may have been removed from the page meanwhile.
		control := doc.FindNodes(j.control)
		if control.Length() == 0 {
			return
		}

		control.ChildrenFiltered("span." + LoadingClass).Remove()

		if err != nil {
			control.RemoveAttr(MarkerAttr)

			log.Debug().Err(err).Str("tag", j.label).Msg("Tag translation failed")

			return
		}

		if len(translations) == 0 {
			return
		}

		control.AppendNodes(translationsNode(translations, a.opts.WikiBaseURL))
	})
}
