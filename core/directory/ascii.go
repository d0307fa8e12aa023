// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package directory

// IsASCII reports whether tag can be looked up by name.
//
// A tag qualifies when every character is printable ASCII other than '%', '*'
// and ','. Those three have meaning in the directory's query syntax, so tags
// containing them (and tags in any other script) go through [Client.WikiSearch].
func IsASCII(tag string) bool {
	for _, r := range tag {
		if r < 0x20 || r > 0x7e {
			return false
		}

		switch r {
		case '%', '*', ',':
			return false
		}
	}

	return true
}
