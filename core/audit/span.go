// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package audit

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/trace"
	"strconv"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TrafficDestination describes which side of tagbridge an HTTP exchange is with.
type TrafficDestination string

const (
	// ToUser marks requests served by the local API.
	ToUser TrafficDestination = "user"

	// ToDirectory marks requests the relay sends to the tag directory.
	ToDirectory TrafficDestination = "directory"

	responseFilePermissions = 0o600
)

var (
	// SaveResponses makes Log write directory response bodies to ResponseDirectory.
	SaveResponses bool

	// ResponseDirectory is the directory where response bodies are saved.
	ResponseDirectory string
)

// Span records one HTTP exchange: its timing, outcome and, for directory
// traffic, optionally the response body.
type Span struct {
	Destination TrafficDestination
	RequestID   string // envelope or API request ID
	Method      string
	URL         string
	StatusCode  int
	Error       error
	Body        []byte // never logged; only saved when SaveResponses is set

	task     *trace.Task
	start    time.Time
	duration time.Duration
	metric   *servertiming.Metric
}

// ServerTimingName is the metric name used in the Server-Timing header.
//
// The URL is base64 encoded without padding to fit the header token syntax.
func (span Span) ServerTimingName() string {
	return string(span.Destination) + "$" + span.Method + "$" + base64.RawURLEncoding.EncodeToString([]byte(span.URL))
}

// Begin starts the span clock and a runtime trace task. When ctx carries a
// Server-Timing header, a metric is attached to it.
func (span *Span) Begin(ctx context.Context) context.Context {
	span.start = time.Now()

	ctx, span.task = trace.NewTask(ctx, "http."+string(span.Destination))

	if header := servertiming.FromContext(ctx); header != nil {
		span.metric = header.NewMetric(span.ServerTimingName())
		span.metric.Extra = map[string]string{
			"start": strconv.FormatInt(span.start.UnixMilli(), 10),
		}
	}

	return ctx
}

// End stops the span clock. Only the first call counts.
func (span *Span) End() {
	if span.task == nil {
		return
	}

	span.duration = time.Since(span.start)
	span.task.End()
	span.task = nil

	if span.metric != nil {
		span.metric.Duration = span.duration
	}
}

// Duration returns how long the span ran. Zero until End is called.
func (span Span) Duration() time.Duration {
	return span.duration
}

// Log writes the span as a structured event. Failed exchanges are logged at
// warn level, everything else at debug level.
func (span Span) Log() {
	event := log.WithLevel(span.level()).
		Str("sys", "http").
		Str("destination", string(span.Destination)).
		Str("request_id", span.RequestID).
		Str("method", span.Method).
		Str("url", span.URL).
		Int("status_code", span.StatusCode).
		Str("len", humanizeSize(len(span.Body))).
		Dur("dur", span.duration)

	if filename := span.saveResponse(); filename != "" {
		event.Str("response_filename", filename)
	}

	event.Err(span.Error).Send()
}

func (span Span) level() zerolog.Level {
	if span.Error != nil || span.StatusCode >= http.StatusInternalServerError {
		return zerolog.WarnLevel
	}

	return zerolog.DebugLevel
}

// saveResponse writes the body of a directory response to ResponseDirectory
// and returns the file name, or "" when nothing was saved.
func (span Span) saveResponse() string {
	if !SaveResponses || span.Destination != ToDirectory || len(span.Body) == 0 {
		return ""
	}

	filename := filepath.Join(ResponseDirectory, span.RequestID+".json")

	if err := os.WriteFile(filename, span.Body, responseFilePermissions); err != nil {
		log.Err(err).
			Str("request_id", span.RequestID).
			Msg("Failed to save response")

		return ""
	}

	return filename
}

const (
	bytesInKB = 1 << 10
	bytesInMB = 1 << 20
	bytesInGB = 1 << 30
)

var sizeUnits = []struct {
	size   int
	suffix string
}{
	{bytesInGB, "G"},
	{bytesInMB, "M"},
	{bytesInKB, "K"},
}

func humanizeSize(x int) string {
	for _, unit := range sizeUnits {
		if x >= unit.size {
			return fmt.Sprintf("%.2f%s", float64(x)/float64(unit.size), unit.suffix)
		}
	}

	return strconv.Itoa(x)
}
