// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package directory

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Category classifies a tag's role in the directory.
//
// Values not listed below are kept as-is.
type Category int

// Known categories.
const (
	CategoryGeneral   Category = 0
	CategoryArtist    Category = 1
	CategoryCopyright Category = 3
	CategoryCharacter Category = 4
	CategoryMeta      Category = 5
)

// String returns the directory's name for c.
func (c Category) String() string {
	switch c {
	case CategoryGeneral:
		return "general"
	case CategoryArtist:
		return "artist"
	case CategoryCopyright:
		return "copyright"
	case CategoryCharacter:
		return "character"
	case CategoryMeta:
		return "meta"
	default:
		return "category(" + strconv.Itoa(int(c)) + ")"
	}
}

// ClassName returns the CSS class used when rendering a tag of this category.
func (c Category) ClassName() string {
	return "tag-type-" + strconv.Itoa(int(c))
}

// TranslatedTag is a canonical tag a user tag resolved to.
type TranslatedTag struct {
	// Name is the canonical name, with underscores between words.
	Name string `json:"name" yaml:"name"`

	Category Category `json:"category" yaml:"category"`
}

// PrettyName returns Name with underscores replaced by spaces.
func (t TranslatedTag) PrettyName() string {
	return strings.ReplaceAll(t.Name, "_", " ")
}

// WikiURL returns the address of the tag's wiki page under base.
func (t TranslatedTag) WikiURL(base string) string {
	return strings.TrimSuffix(base, "/") + "/wiki_pages/" + url.PathEscape(t.Name)
}

// translatedTagView is the serialized form, which carries the derived pretty name.
type translatedTagView struct {
	Name       string   `json:"name"       yaml:"name"`
	PrettyName string   `json:"prettyName" yaml:"prettyName"`
	Category   Category `json:"category"   yaml:"category"`
}

// MarshalJSON includes prettyName in the output.
func (t TranslatedTag) MarshalJSON() ([]byte, error) {
	return json.Marshal(translatedTagView{Name: t.Name, PrettyName: t.PrettyName(), Category: t.Category})
}

// UnmarshalJSON reads name and category. prettyName is ignored since it is derived.
func (t *TranslatedTag) UnmarshalJSON(data []byte) error {
	var view translatedTagView
	if err := json.Unmarshal(data, &view); err != nil {
		return err
	}

	t.Name = view.Name
	t.Category = view.Category

	return nil
}

// MarshalYAML includes prettyName in the output.
func (t TranslatedTag) MarshalYAML() (any, error) {
	return translatedTagView{Name: t.Name, PrettyName: t.PrettyName(), Category: t.Category}, nil
}

// appendUnique appends tag to list unless a tag with the same name is already present.
func appendUnique(list []TranslatedTag, tag TranslatedTag) []TranslatedTag {
	for _, existing := range list {
		if existing.Name == tag.Name {
			return list
		}
	}

	return append(list, tag)
}
