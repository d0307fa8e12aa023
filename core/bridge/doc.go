// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package bridge carries fetch requests from the unprivileged page side to the
privileged side that is allowed to talk to the tag directory.

The two sides only share a [Port], an asynchronous message channel. [Bridge]
turns that into a request/response call: each [Bridge.Fetch] posts a
FETCH_REQUEST envelope with a fresh correlation ID and waits for the
FETCH_RESPONSE envelope carrying the same ID. [Relay] is the other end: it
performs the HTTP request and posts the response envelope back.

A Fetch always unregisters its listener, whether it returns with data, a relay
error, a timeout or a cancelled context. [Bridge.ListenerCount] exposes the
number of attached listeners so that this can be checked.
*/
package bridge
