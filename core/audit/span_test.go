// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanizeSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{1023, "1023"},
		{1024, "1.00K"},
		{1536, "1.50K"},
		{bytesInMB, "1.00M"},
		{bytesInGB * 2, "2.00G"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, humanizeSize(tt.in))
	}
}

func TestSpanRecordsServerTimingMetric(t *testing.T) {
	t.Parallel()

	var header servertiming.Header

	ctx := servertiming.NewContext(context.Background(), &header)

	span := Span{Destination: ToDirectory, Method: "GET", URL: "https://danbooru.donmai.us/tags.json"}
	_ = span.Begin(ctx)
	span.End()
	span.End() // second call is a no-op

	require.Len(t, header.Metrics, 1)
	assert.Equal(t, span.ServerTimingName(), header.Metrics[0].Name)
	assert.Equal(t, span.Duration(), header.Metrics[0].Duration)
}

func TestSpanLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		span Span
		want zerolog.Level
	}{
		{"ok", Span{StatusCode: 200}, zerolog.DebugLevel},
		{"client error", Span{StatusCode: 404}, zerolog.DebugLevel},
		{"server error", Span{StatusCode: 503}, zerolog.WarnLevel},
		{"transport error", Span{Error: errors.New("connection reset")}, zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.span.level())
		})
	}
}

func TestSpanSaveResponse(t *testing.T) {
	// mutates package state
	dir := t.TempDir()

	SaveResponses, ResponseDirectory = true, dir

	t.Cleanup(func() { SaveResponses, ResponseDirectory = false, "" })

	span := Span{Destination: ToDirectory, RequestID: "abc", Body: []byte(`[]`)}
	filename := span.saveResponse()

	require.Equal(t, filepath.Join(dir, "abc.json"), filename)

	body, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(body))

	user := Span{Destination: ToUser, RequestID: "def", Body: []byte(`{}`)}
	assert.Empty(t, user.saveResponse())
}
