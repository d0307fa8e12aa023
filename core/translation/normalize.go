// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package translation

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the form of tag used as cache key and query token.
//
// The tag is NFKC-normalized, stripped of its leading '#' and surrounding
// whitespace, and whitespace runs inside it become a single underscore.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(tag string) string {
	s := norm.NFKC.String(tag)

	// "# #tag" must end up the same as "#tag", or a second pass would strip more.
	for {
		trimmed := strings.TrimLeft(strings.TrimSpace(s), "#")
		if trimmed == s {
			break
		}

		s = trimmed
	}

	return strings.Join(strings.Fields(s), "_")
}
