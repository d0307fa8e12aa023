// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package middleware

import (
	"net/http"
	"strings"
)

// NormalizeURL redirects paths with a trailing slash (except the root) to
// the same path without it, keeping the query.
func NormalizeURL(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if !hasTrailingSlash(r) {
		next.ServeHTTP(w, r)

		return
	}

	target := *r.URL
	target.Path = strings.TrimRight(target.Path, "/")
	target.RawPath = ""

	if target.Path == "" {
		target.Path = "/"
	}

	http.Redirect(w, r, target.String(), http.StatusPermanentRedirect)
}

// hasTrailingSlash checks if a request path has a trailing slash (except root).
func hasTrailingSlash(r *http.Request) bool {
	return r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/")
}
