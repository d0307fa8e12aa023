// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package annotator

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"codeberg.org/pixivfe/tagbridge/core/directory"
)

// Markup added to recommended-tag controls.
const (
	MarkerAttr        = "data-tagbridge"
	MarkerProcessed   = "processed"
	LoadingClass      = "tagbridge-loading"
	TranslationsClass = "tagbridge-translations"
)

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func loadingNode() *html.Node {
	span := element(atom.Span, html.Attribute{Key: "class", Val: LoadingClass})
	span.AppendChild(&html.Node{Type: html.TextNode, Data: "…"})

	return span
}

// translationsNode builds one link per translation, to the tag's wiki page.
func translationsNode(translations []directory.TranslatedTag, wikiBase string) *html.Node {
	span := element(atom.Span, html.Attribute{Key: "class", Val: TranslationsClass})

	for _, tag := range translations {
		link := element(atom.A,
			html.Attribute{Key: "href", Val: tag.WikiURL(wikiBase)},
			html.Attribute{Key: "class", Val: tag.Category.ClassName()},
			html.Attribute{Key: "target", Val: "_blank"},
			html.Attribute{Key: "rel", Val: "noopener noreferrer"},
		)
		link.AppendChild(&html.Node{Type: html.TextNode, Data: tag.PrettyName()})

		span.AppendChild(link)
	}

	return span
}

// visible reports whether the control and all its ancestors are shown.
func visible(s *goquery.Selection) bool {
	for n := s.Get(0); n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}

		for _, attr := range n.Attr {
			switch strings.ToLower(attr.Key) {
			case "hidden":
				return false
			case "aria-hidden":
				if strings.EqualFold(strings.TrimSpace(attr.Val), "true") {
					return false
				}
			case "style":
				if hidesElement(attr.Val) {
					return false
				}
			}
		}
	}

	return true
}

func hidesElement(style string) bool {
	for decl := range strings.SplitSeq(style, ";") {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}

		if strings.EqualFold(strings.TrimSpace(prop), "display") &&
			strings.HasPrefix(strings.ToLower(strings.TrimSpace(value)), "none") {
			return true
		}
	}

	return false
}

// hasNonASCII reports whether text contains a rune above 0x7F.
func hasNonASCII(text string) bool {
	for _, r := range text {
		if r > 0x7f {
			return true
		}
	}

	return false
}
