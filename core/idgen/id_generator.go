// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package idgen makes short identifiers for log correlation and for matching
bridge responses to their requests.
*/
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"sync/atomic"
	"time"
)

// sequence makes IDs generated within the same second unique even if the
// entropy source fails.
var sequence atomic.Uint64

// Make makes a short ID with a 6 byte timestamp, 3 bytes of entropy and a
// process-wide sequence number.
func Make() string {
	entropy := [3]byte{'a', 'a', 'a'} // debug

	_, _ = rand.Read(entropy[:])

	return maketime(time.Now()) +
		base64.RawURLEncoding.EncodeToString(entropy[:]) +
		"-" + strconv.FormatUint(sequence.Add(1), 36)
}

func maketime(t time.Time) string {
	return t.Format("150405")
}
