// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"codeberg.org/pixivfe/tagbridge/server/middleware"
	"codeberg.org/pixivfe/tagbridge/server/routes"
)

// DefineRoutes registers the API routes.
func (router *Router) DefineRoutes(api *routes.API) {
	router.HandleFunc("GET /api/v1/translate", middleware.CatchError(api.Translate))
	router.HandleFunc("GET /api/v1/normalize", middleware.CatchError(api.Normalize))

	router.HandleFunc("GET /api/v1/cache", middleware.CatchError(api.CacheStats))
	router.HandleFunc("DELETE /api/v1/cache", middleware.CatchError(api.ClearCache))

	router.HandleFunc("/", middleware.CatchError(routes.NotFound))
}
