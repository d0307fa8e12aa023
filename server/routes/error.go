// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package routes

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"codeberg.org/pixivfe/tagbridge/server/request_context"
)

type errorResponse struct {
	Error string `json:"error"`
}

// ErrorPage writes the request error as JSON with the status code from the
// request context.
func ErrorPage(w http.ResponseWriter, r *http.Request) {
	ctx := request_context.FromRequest(r)

	message := http.StatusText(ctx.StatusCode)
	if ctx.RequestError != nil {
		message = ctx.RequestError.Error()
	}

	w.Header().Set("Cache-Control", "no-store")

	if err := writeJSON(w, ctx.StatusCode, errorResponse{Error: message}); err != nil {
		log.Err(err).Str("request_id", ctx.RequestID).Msg("Failed to write error response")
	}
}
