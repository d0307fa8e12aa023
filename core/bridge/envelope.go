// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Envelope types.
const (
	TypeFetchRequest  = "FETCH_REQUEST"
	TypeFetchResponse = "FETCH_RESPONSE"
)

var (
	// ErrTimeout is returned when no response arrives within the bridge timeout.
	ErrTimeout = errors.New("bridge request timed out")

	// ErrRelayFailure is wrapped by every [RelayError].
	ErrRelayFailure = errors.New("relay reported failure")

	// ErrClosed is returned when the port has been closed.
	ErrClosed = errors.New("bridge port closed")

	errMalformedEnvelope = errors.New("malformed envelope")
)

// FetchOptions are the request options forwarded to the relay.
type FetchOptions struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// RequestEnvelope is posted by the bridge for each fetch.
type RequestEnvelope struct {
	Type    string       `json:"type"`
	ID      string       `json:"id"`
	URL     string       `json:"url"`
	Options FetchOptions `json:"options"`
}

// ResponseEnvelope is posted by the relay in reply to a [RequestEnvelope].
//
// Data holds the response body. Bodies that are not valid JSON are carried as
// a JSON string.
type ResponseEnvelope struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Success    bool            `json:"success"`
	Status     int             `json:"status,omitempty"`
	StatusText string          `json:"statusText,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// RelayError is a failure reported by the relay: a network error, or a
// response with a non-2xx status.
type RelayError struct {
	// Status is the HTTP status code, or zero when no response was received.
	Status int

	// StatusText is the HTTP status text, if any.
	StatusText string

	// Message is the error carried in the response envelope.
	Message string
}

// Error returns a formatted error message including the status code if available.
func (e *RelayError) Error() string {
	var b strings.Builder

	b.WriteString(ErrRelayFailure.Error())

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.StatusText != "" {
		b.WriteString(": ")
		b.WriteString(e.StatusText)
	}

	if e.Status != 0 {
		fmt.Fprintf(&b, " (status code: %d)", e.Status)
	}

	return b.String()
}

// Unwrap returns ErrRelayFailure for use with errors.Is.
func (e *RelayError) Unwrap() error {
	return ErrRelayFailure
}

// envelopeType peeks at the type field of a raw envelope.
func envelopeType(msg []byte) (string, error) {
	if !gjson.ValidBytes(msg) {
		return "", errMalformedEnvelope
	}

	return gjson.GetBytes(msg, "type").String(), nil
}
