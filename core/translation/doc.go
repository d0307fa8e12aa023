// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package translation resolves user tags to canonical directory tags.

A [Translator] collects requests for a batch window, then resolves the whole
batch at once: tags in a non-Latin script through the wiki other-names search,
the rest through a direct name search, with an alias search for the direct
misses. Concurrent requests for the same tag share a single lookup, and every
result (including "nothing found") is kept in a [Cache] for a few minutes.
*/
package translation
