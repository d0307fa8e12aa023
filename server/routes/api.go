// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package routes implements the handlers of the tagbridge JSON API.
*/
package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"codeberg.org/pixivfe/tagbridge/core/directory"
	"codeberg.org/pixivfe/tagbridge/core/translation"
	"codeberg.org/pixivfe/tagbridge/server/utils"
)

// ErrBadRequest marks errors caused by the request itself.
var ErrBadRequest = errors.New("bad request")

// TagService is what the API exposes. *translation.Translator implements it.
type TagService interface {
	TranslateTags(ctx context.Context, tags []string) (map[string][]directory.TranslatedTag, error)
	CacheStats() translation.CacheStats
	ClearCache()
}

// API holds the dependencies of the route handlers.
type API struct {
	Tags TagService

	// WikiBaseURL is the directory the returned wiki links point to.
	WikiBaseURL string
}

// tagView is a TranslatedTag as returned by the API.
type tagView struct {
	Name         string `json:"name"`
	PrettyName   string `json:"prettyName"`
	Category     int    `json:"category"`
	CategoryName string `json:"categoryName"`
	WikiURL      string `json:"wikiURL"`
}

type translateResponse struct {
	Translations map[string][]tagView `json:"translations"`
}

type normalizeResponse struct {
	Normalized string `json:"normalized"`
}

// Translate handles GET /api/v1/translate?tag=a&tag=b.
func (api *API) Translate(w http.ResponseWriter, r *http.Request) error {
	tags := utils.GetQueryParams(r, "tag")
	if len(tags) == 0 {
		return fmt.Errorf("%w: at least one tag parameter is required", ErrBadRequest)
	}

	results, err := api.Tags.TranslateTags(r.Context(), tags)
	if err != nil {
		return err
	}

	resp := translateResponse{Translations: make(map[string][]tagView, len(results))}

	for tag, translations := range results {
		views := make([]tagView, 0, len(translations))

		for _, t := range translations {
			views = append(views, tagView{
				Name:         t.Name,
				PrettyName:   t.PrettyName(),
				Category:     int(t.Category),
				CategoryName: t.Category.String(),
				WikiURL:      t.WikiURL(api.WikiBaseURL),
			})
		}

		resp.Translations[tag] = views
	}

	return writeJSON(w, http.StatusOK, resp)
}

// CacheStats handles GET /api/v1/cache.
func (api *API) CacheStats(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, api.Tags.CacheStats())
}

// ClearCache handles DELETE /api/v1/cache.
func (api *API) ClearCache(w http.ResponseWriter, _ *http.Request) error {
	api.Tags.ClearCache()

	w.WriteHeader(http.StatusNoContent)

	return nil
}

// Normalize handles GET /api/v1/normalize?tag=x.
func (api *API) Normalize(w http.ResponseWriter, r *http.Request) error {
	tag := utils.GetQueryParam(r, "tag")
	if tag == "" {
		return fmt.Errorf("%w: the tag parameter is required", ErrBadRequest)
	}

	return writeJSON(w, http.StatusOK, normalizeResponse{Normalized: translation.Normalize(tag)})
}

// NotFound answers paths no route matches.
func NotFound(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(http.StatusNotFound)

	return nil
}
