// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package bridge

import (
	"context"
	"sync"
)

// portBuffer is the number of messages a port accepts before Send blocks.
const portBuffer = 64

// Port is one end of an asynchronous message channel.
type Port interface {
	// Send posts msg to the other end.
	Send(ctx context.Context, msg []byte) error

	// Receive returns the channel of messages posted by the other end.
	Receive() <-chan []byte

	// Done is closed once either end has been closed.
	Done() <-chan struct{}

	// Close closes the channel for both ends.
	Close() error
}

// chanPort is an in-process Port backed by Go channels.
type chanPort struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// NewPortPair returns two connected ports. Messages sent on one are received
// on the other.
func NewPortPair() (Port, Port) {
	var (
		ab   = make(chan []byte, portBuffer)
		ba   = make(chan []byte, portBuffer)
		done = make(chan struct{})
		once = &sync.Once{}
	)

	return &chanPort{in: ba, out: ab, done: done, once: once},
		&chanPort{in: ab, out: ba, done: done, once: once}
}

func (p *chanPort) Send(ctx context.Context, msg []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *chanPort) Receive() <-chan []byte {
	return p.in
}

func (p *chanPort) Done() <-chan struct{} {
	return p.done
}

func (p *chanPort) Close() error {
	p.once.Do(func() { close(p.done) })

	return nil
}
