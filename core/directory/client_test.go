// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package directory

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/pixivfe/tagbridge/core/bridge"
)

// fakeFetcher answers requests by URL path and records every call.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     []string
	responses map[string][]string // path -> bodies served in order; the last repeats
	errs      map[string]error    // path -> error for every call
	times     []time.Time
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, opts bridge.FetchOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, rawURL)
	f.times = append(f.times, time.Now())

	if opts.Headers["Accept"] != "application/json" {
		return nil, errors.New("missing Accept header")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	if err := f.errs[parsed.Path]; err != nil {
		return nil, err
	}

	bodies := f.responses[parsed.Path]
	if len(bodies) == 0 {
		return []byte("[]"), nil
	}

	body := bodies[0]
	if len(bodies) > 1 {
		f.responses[parsed.Path] = bodies[1:]
	}

	return []byte(body), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

func newTestClient(f *fakeFetcher) *Client {
	return NewClient(f, Options{
		BaseURL:        "https://danbooru.test/",
		RetryDelay:     time.Millisecond,
		WikiChunkDelay: time.Millisecond,
	})
}

func TestIsASCII(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"cat":         true,
		"blue_sky":    true,
		"":            true,
		"ねこ":          false,
		"dog,x":       false,
		"100%":        false,
		"star*":       false,
		"café":        false,
		"tab\tinside": false,
	}

	for tag, want := range tests {
		assert.Equal(t, want, IsASCII(tag), "IsASCII(%q)", tag)
	}
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(&fakeFetcher{}, Options{})

	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, DefaultAttempts, c.opts.Attempts)
	assert.Equal(t, DefaultRetryDelay, c.opts.RetryDelay)
	assert.Equal(t, DefaultWikiChunkSize, c.opts.WikiChunkSize)
	assert.Equal(t, DefaultWikiChunkDelay, c.opts.WikiChunkDelay)
}

func TestURLs(t *testing.T) {
	t.Parallel()

	c := newTestClient(&fakeFetcher{})

	wiki, err := url.Parse(c.WikiURL([]string{"初詣", "ネコ"}))
	require.NoError(t, err)
	assert.Equal(t, "/wiki_pages.json", wiki.Path)
	assert.Equal(t, []string{"初詣", "ネコ"}, wiki.Query()["search[other_names_include_any_lower_array][]"])
	assert.Equal(t, "false", wiki.Query().Get("search[is_deleted]"))
	assert.Equal(t, "title,other_names,tag[category]", wiki.Query().Get("only"))
	assert.Equal(t, "1000", wiki.Query().Get("limit"))

	tags, err := url.Parse(c.TagsURL([]string{"Cat", "dog"}))
	require.NoError(t, err)
	assert.Equal(t, "/tags.json", tags.Path)
	assert.Equal(t, "cat,dog", tags.Query().Get("search[name_lower_comma]"))
	assert.Equal(t, "name,category,post_count", tags.Query().Get("only"))

	aliases, err := url.Parse(c.AliasesURL([]string{"fanart"}))
	require.NoError(t, err)
	assert.Equal(t, "/tag_aliases.json", aliases.Path)
	assert.Equal(t, "fanart", aliases.Query().Get("search[antecedent_name_lower_comma]"))
	assert.Equal(t, "antecedent_name,consequent_tag[name,category,post_count]", aliases.Query().Get("only"))
}

func TestWikiSearch(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{responses: map[string][]string{
		"/wiki_pages.json": {`[
			{"title": "hatsumode", "other_names": ["初詣"], "tag": {"category": 0}},
			{"title": "cat", "other_names": ["ネコ", "猫"], "tag": {"category": 0}},
			{"title": "cat", "other_names": ["猫"], "tag": {"category": 0}},
			{"title": "no_tag_record", "other_names": ["初詣"]},
			{"title": "hakurei_reimu", "other_names": ["博麗霊夢", "unrelated"], "tag": {"category": 4}}
		]`},
	}}

	got, err := newTestClient(f).WikiSearch(context.Background(), []string{"初詣", "猫", "博麗霊夢", "未知"})
	require.NoError(t, err)

	assert.Equal(t, map[string][]TranslatedTag{
		"初詣":   {{Name: "hatsumode", Category: CategoryGeneral}},
		"猫":    {{Name: "cat", Category: CategoryGeneral}},
		"博麗霊夢": {{Name: "hakurei_reimu", Category: CategoryCharacter}},
	}, got)
	assert.Equal(t, 1, f.callCount())
}

func TestWikiSearchMatchesCaseInsensitively(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{responses: map[string][]string{
		"/wiki_pages.json": {`[{"title": "vocaloid", "other_names": ["VOCALOID曲"], "tag": {"category": 3}}]`},
	}}

	got, err := newTestClient(f).WikiSearch(context.Background(), []string{"Vocaloid曲"})
	require.NoError(t, err)
	assert.Equal(t, []TranslatedTag{{Name: "vocaloid", Category: CategoryCopyright}}, got["vocaloid曲"])
}

func TestWikiSearchChunks(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}
	c := NewClient(f, Options{RetryDelay: time.Millisecond, WikiChunkSize: 10, WikiChunkDelay: 20 * time.Millisecond})

	tags := make([]string, 25)
	for i := range tags {
		tags[i] = strings.Repeat("あ", i+1)
	}

	_, err := c.WikiSearch(context.Background(), tags)
	require.NoError(t, err)

	require.Equal(t, 3, f.callCount())

	sizes := make([]int, 0, 3)

	for _, call := range f.calls {
		parsed, err := url.Parse(call)
		require.NoError(t, err)

		sizes = append(sizes, len(parsed.Query()["search[other_names_include_any_lower_array][]"]))
	}

	assert.Equal(t, []int{10, 10, 5}, sizes)

	// Chunks run one after another with a pause in between.
	for i := 1; i < len(f.times); i++ {
		assert.GreaterOrEqual(t, f.times[i].Sub(f.times[i-1]), 20*time.Millisecond)
	}
}

func TestWikiSearchEmpty(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}

	got, err := newTestClient(f).WikiSearch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, f.callCount())
}

func TestDirectSearch(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{responses: map[string][]string{
		"/tags.json": {`[
			{"name": "cat", "category": 0, "post_count": 1200},
			{"name": "fanart", "category": 5, "post_count": 0},
			{"name": "Dog", "category": 0, "post_count": 3},
			{"name": "dog", "category": 9, "post_count": 1},
			{"category": 0, "post_count": 10}
		]`},
	}}

	got, err := newTestClient(f).DirectSearch(context.Background(), []string{"cat", "fanart", "dog"})
	require.NoError(t, err)

	assert.Equal(t, map[string][]TranslatedTag{
		"cat": {{Name: "cat", Category: CategoryGeneral}},
		"dog": {{Name: "Dog", Category: CategoryGeneral}, {Name: "dog", Category: Category(9)}},
	}, got)
}

func TestDirectSearchEmptyInputMakesNoRequest(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}

	got, err := newTestClient(f).DirectSearch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, f.callCount())
}

func TestAliasSearch(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{responses: map[string][]string{
		"/tag_aliases.json": {`[
			{"antecedent_name": "fanart", "consequent_tag": {"name": "fan_art", "category": 5, "post_count": 10}},
			{"antecedent_name": "kitty"},
			{"antecedent_name": "", "consequent_tag": {"name": "x", "category": 0}}
		]`},
	}}

	got, err := newTestClient(f).AliasSearch(context.Background(), []string{"fanart", "kitty"})
	require.NoError(t, err)

	assert.Equal(t, map[string][]TranslatedTag{
		"fanart": {{Name: "fan_art", Category: CategoryMeta}},
	}, got)
}

func TestRetriesThenFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	f := &fakeFetcher{errs: map[string]error{"/tags.json": boom}}
	c := NewClient(f, Options{RetryDelay: 10 * time.Millisecond})

	start := time.Now()

	_, err := c.DirectSearch(context.Background(), []string{"cat"})
	require.ErrorIs(t, err, ErrEndpointFailure)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, DefaultAttempts, f.callCount())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRetryRecovers(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{responses: map[string][]string{
		"/tags.json": {`<html>busy</html>`, `[{"name": "cat", "category": 0, "post_count": 5}]`},
	}}

	got, err := newTestClient(f).DirectSearch(context.Background(), []string{"cat"})
	require.NoError(t, err)
	assert.Len(t, got["cat"], 1)
	assert.Equal(t, 2, f.callCount())
}

func TestRetryStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{errs: map[string]error{"/tags.json": errors.New("down")}}
	c := NewClient(f, Options{RetryDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.DirectSearch(ctx, []string{"cat"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.callCount())
}

func TestTranslatedTag(t *testing.T) {
	t.Parallel()

	tag := TranslatedTag{Name: "hakurei_reimu", Category: CategoryCharacter}

	assert.Equal(t, "hakurei reimu", tag.PrettyName())
	assert.Equal(t, "https://danbooru.test/wiki_pages/hakurei_reimu", tag.WikiURL("https://danbooru.test/"))
	assert.Equal(t, "character", tag.Category.String())
	assert.Equal(t, "category(42)", Category(42).String())
	assert.Equal(t, "tag-type-4", tag.Category.ClassName())

	data, err := tag.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"hakurei_reimu","prettyName":"hakurei reimu","category":4}`, string(data))

	var decoded TranslatedTag
	require.NoError(t, decoded.UnmarshalJSON([]byte(`{"name":"a_b","prettyName":"ignored","category":7}`)))
	assert.Equal(t, TranslatedTag{Name: "a_b", Category: 7}, decoded)
	assert.Equal(t, "a b", decoded.PrettyName())
}
