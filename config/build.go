// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"runtime/debug"
	"strings"
)

// BuildVersion is the latest tagged release of tagbridge.
const BuildVersion string = "v0.1.0"

const shortRevisionLength = 8

// buildInfo is the VCS information stamped into the binary.
type buildInfo struct {
	VcsRevision string
	VcsTime     string
	VcsModified bool
}

// Revision formats the build revision as "<date>-<short hash>[+dirty]".
func (b *buildInfo) Revision() string {
	if b.VcsRevision == "" {
		return "unknown"
	}

	revision := b.VcsRevision
	if len(revision) > shortRevisionLength {
		revision = revision[:shortRevisionLength]
	}

	date, _, _ := strings.Cut(b.VcsTime, "T")

	s := date + "-" + revision
	if b.VcsModified {
		s += "+dirty"
	}

	return s
}

func (b *buildInfo) load() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.VcsRevision = setting.Value
		case "vcs.time":
			b.VcsTime = setting.Value
		case "vcs.modified":
			b.VcsModified = setting.Value == "true"
		}
	}
}
