// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package directory

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// WikiURL builds the wiki page search for tags.
func (c *Client) WikiURL(tags []string) string {
	query := url.Values{}
	for _, tag := range tags {
		query.Add("search[other_names_include_any_lower_array][]", strings.ToLower(tag))
	}

	query.Set("search[is_deleted]", "false")
	query.Set("only", "title,other_names,tag[category]")
	query.Set("limit", resultLimit)

	return c.opts.BaseURL + "/wiki_pages.json?" + query.Encode()
}

// TagsURL builds the tag name search for tags.
func (c *Client) TagsURL(tags []string) string {
	query := url.Values{}
	query.Set("search[name_lower_comma]", strings.ToLower(strings.Join(tags, ",")))
	query.Set("only", "name,category,post_count")
	query.Set("limit", resultLimit)

	return c.opts.BaseURL + "/tags.json?" + query.Encode()
}

// AliasesURL builds the tag alias search for tags.
func (c *Client) AliasesURL(tags []string) string {
	query := url.Values{}
	query.Set("search[antecedent_name_lower_comma]", strings.ToLower(strings.Join(tags, ",")))
	query.Set("only", "antecedent_name,consequent_tag[name,category,post_count]")
	query.Set("limit", resultLimit)

	return c.opts.BaseURL + "/tag_aliases.json?" + query.Encode()
}

// WikiSearch matches tags against the other names of wiki pages.
//
// Tags are queried in chunks of at most WikiChunkSize, one chunk at a time
// with WikiChunkDelay between chunks. A failing chunk fails the whole search.
func (c *Client) WikiSearch(ctx context.Context, tags []string) (map[string][]TranslatedTag, error) {
	results := make(map[string][]TranslatedTag)

	for start := 0; start < len(tags); start += c.opts.WikiChunkSize {
		if start > 0 {
			if err := sleep(ctx, c.opts.WikiChunkDelay); err != nil {
				return nil, err
			}
		}

		chunk := tags[start:min(start+c.opts.WikiChunkSize, len(tags))]

		records, err := c.fetchJSON(ctx, c.WikiURL(chunk))
		if err != nil {
			return nil, err
		}

		wanted := make(map[string]bool, len(chunk))
		for _, tag := range chunk {
			wanted[strings.ToLower(tag)] = true
		}

		records.ForEach(func(_, record gjson.Result) bool {
			tag := record.Get("tag")
			title := record.Get("title").String()

			if !tag.IsObject() || title == "" {
				return true
			}

			translated := TranslatedTag{
				Name:     title,
				Category: Category(tag.Get("category").Int()),
			}

			record.Get("other_names").ForEach(func(_, otherName gjson.Result) bool {
				key := strings.ToLower(otherName.String())
				if wanted[key] {
					results[key] = appendUnique(results[key], translated)
				}

				return true
			})

			return true
		})
	}

	return results, nil
}

// DirectSearch looks tags up by canonical name.
//
// Tags without posts are dropped; the directory keeps them around after
// they fall out of use.
func (c *Client) DirectSearch(ctx context.Context, tags []string) (map[string][]TranslatedTag, error) {
	results := make(map[string][]TranslatedTag)
	if len(tags) == 0 {
		return results, nil
	}

	records, err := c.fetchJSON(ctx, c.TagsURL(tags))
	if err != nil {
		return nil, err
	}

	records.ForEach(func(_, record gjson.Result) bool {
		name := record.Get("name").String()
		if name == "" || record.Get("post_count").Int() <= 0 {
			return true
		}

		key := strings.ToLower(name)
		results[key] = append(results[key], TranslatedTag{
			Name:     name,
			Category: Category(record.Get("category").Int()),
		})

		return true
	})

	return results, nil
}

// AliasSearch resolves tags that are aliased to another tag.
func (c *Client) AliasSearch(ctx context.Context, tags []string) (map[string][]TranslatedTag, error) {
	results := make(map[string][]TranslatedTag)
	if len(tags) == 0 {
		return results, nil
	}

	records, err := c.fetchJSON(ctx, c.AliasesURL(tags))
	if err != nil {
		return nil, err
	}

	records.ForEach(func(_, record gjson.Result) bool {
		antecedent := record.Get("antecedent_name").String()
		consequent := record.Get("consequent_tag")

		if antecedent == "" || !consequent.IsObject() {
			return true
		}

		name := consequent.Get("name").String()
		if name == "" {
			return true
		}

		key := strings.ToLower(antecedent)
		results[key] = appendUnique(results[key], TranslatedTag{
			Name:     name,
			Category: Category(consequent.Get("category").Int()),
		})

		return true
	})

	return results, nil
}
