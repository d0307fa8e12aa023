// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package limiter is a middleware that rate limits API clients.

Clients are grouped by IP network. Each network shares one token bucket, so a
client cannot dodge the limit by rotating addresses inside its own prefix.
Every translate request can end in several directory lookups, which the relay
throttles globally; the per-network limit keeps one client from using up that
budget for everyone else.
*/
package limiter
