// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package directory queries the Danbooru tag directory for canonical tags.

Three lookups are provided, each taking normalized tags and returning a map from
the lowercased query tag to its matches:

  - [Client.WikiSearch] matches tags against the "other names" of wiki pages.
    It is used for tags written in a non-Latin script, which is how Japanese
    pixiv tags get an English counterpart.
  - [Client.DirectSearch] looks tags up by their canonical name.
  - [Client.AliasSearch] resolves deprecated or alternate spellings to the tag
    they are aliased to.

Every request goes through a [Fetcher] and is retried a fixed number of times
with a fixed delay. Records missing the nested objects we need are skipped
rather than treated as errors, since the response schema is only loosely
guaranteed.
*/
package directory
