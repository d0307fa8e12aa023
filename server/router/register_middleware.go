// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"codeberg.org/pixivfe/tagbridge/config"
	"codeberg.org/pixivfe/tagbridge/server/middleware"
	"codeberg.org/pixivfe/tagbridge/server/middleware/limiter"
	"codeberg.org/pixivfe/tagbridge/server/middleware/set_request_context"
)

// RegisterMiddleware installs the middleware chain.
func (router *Router) RegisterMiddleware() {
	// the first middleware is the most outer / first executed one
	router.Use(middleware.WithServerTiming)
	router.Use(middleware.NormalizeURL)
	router.Use(set_request_context.WithRequestContext) // needed by CatchError
	router.Use(middleware.SetResponseHeaders)

	if config.Global.Limiter.Enabled {
		router.Use(limiter.New(limiter.Options{
			RequestsPerSecond: config.Global.Limiter.RequestsPerSecond,
			Burst:             config.Global.Limiter.Burst,
			IPv4Prefix:        config.Global.Limiter.IPv4Prefix,
			IPv6Prefix:        config.Global.Limiter.IPv6Prefix,
			PassIPs:           config.Global.Limiter.PassIPs,
		}).Middleware)
	}
}
