// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package middleware

import (
	"errors"
	"maps"
	"net/http"
	"net/http/httptest"

	"github.com/rs/zerolog/log"

	"codeberg.org/pixivfe/tagbridge/core/audit"
	"codeberg.org/pixivfe/tagbridge/server/request_context"
	"codeberg.org/pixivfe/tagbridge/server/routes"
)

// CatchError wraps HTTP handlers that return an error, providing centralized
// error handling, response buffering and request logging.
//
// The handler's output is buffered. Then:
//   - an error wrapping routes.ErrBadRequest becomes a 400 JSON error,
//   - any other error without an error status written, or a 404, becomes a
//     500 (or 404) JSON error and the buffered output is discarded,
//   - otherwise the buffered response is written to the client.
//
// Every request is logged as an audit span.
func CatchError(handler func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := request_context.FromRequest(r)

		span := audit.Span{
			Destination: audit.ToUser,
			RequestID:   ctx.RequestID,
			Method:      r.Method,
			URL:         r.URL.String(),
		}

		_ = span.Begin(r.Context())
		defer span.End()

		recorder := httptest.NewRecorder()

		err := handler(recorder, r)

		ctx.RequestError = err

		switch {
		case errors.Is(err, routes.ErrBadRequest):
			ctx.StatusCode = http.StatusBadRequest

			routes.ErrorPage(w, r)

		case (err != nil && recorder.Code < http.StatusBadRequest) || recorder.Code == http.StatusNotFound:
			if recorder.Code == http.StatusNotFound {
				ctx.StatusCode = http.StatusNotFound
			} else {
				ctx.StatusCode = http.StatusInternalServerError
			}

			routes.ErrorPage(w, r)

		default:
			ctx.StatusCode = recorder.Code

			maps.Copy(w.Header(), recorder.Header())
			w.WriteHeader(recorder.Code)

			if _, err := recorder.Body.WriteTo(w); err != nil {
				log.Err(err).Msg("Failed to write response body")
			}
		}

		span.StatusCode = ctx.StatusCode
		span.Error = ctx.RequestError

		span.End()
		span.Log()
	}
}
