// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package middleware

import "net/http"

// apiHeaders are sent with every response.
var apiHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":         "no-referrer",
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
}

// SetResponseHeaders adds the headers every API response carries.
func SetResponseHeaders(w http.ResponseWriter, r *http.Request, next http.Handler) {
	header := w.Header()

	for k, v := range apiHeaders {
		header.Set(k, v)
	}

	next.ServeHTTP(w, r)
}
