// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package middleware holds the middleware chain of the tagbridge API server.

Routes are defined in router.DefineRoutes; every route handler is wrapped in
CatchError, which turns returned errors into JSON error responses.
*/
package middleware
