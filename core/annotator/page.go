// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package annotator

import (
	"fmt"
	"io"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page is an HTML document shared between the annotator and whoever edits
// the page. Every access goes through the page's lock.
type Page struct {
	mu        sync.Mutex
	doc       *goquery.Document
	observers map[int]func(changed *goquery.Selection)
	nextID    int
}

// ParsePage parses an HTML document.
func ParsePage(r io.Reader) (*Page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return &Page{
		doc:       goquery.NewDocumentFromNode(root),
		observers: make(map[int]func(*goquery.Selection)),
	}, nil
}

// Observe registers fn to be called after every Mutate with the subtree the
// mutation changed. fn runs with the page locked and must not call back into
// the page. The returned function unregisters fn.
func (p *Page) Observe(fn func(changed *goquery.Selection)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.observers[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		delete(p.observers, id)
	}
}

// Mutate runs fn on the document. fn returns the subtree it changed, or nil
// if it changed nothing; observers are notified with that subtree.
func (p *Page) Mutate(fn func(doc *goquery.Document) *goquery.Selection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := fn(p.doc)
	if changed == nil || changed.Length() == 0 {
		return
	}

	for _, observer := range p.observers {
		observer(changed)
	}
}

// View runs fn on the document without notifying observers.
func (p *Page) View(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(p.doc)
}

// Render writes the document as HTML.
func (p *Page) Render(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, node := range p.doc.Nodes {
		if err := html.Render(w, node); err != nil {
			return fmt.Errorf("failed to render page: %w", err)
		}
	}

	return nil
}
