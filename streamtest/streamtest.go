// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package streamtest provides support code for testing against the
// grpcstream package: a Recorder that captures observer notifications, and a
// FakeCall whose primitives are scripted by the test.
package streamtest

import (
	"context"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// A Recorder is a grpcstream.Observer that records the notifications it
// receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	starts int
	msgs   [][]byte
	errs   []*status.Status
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder { return new(Recorder) }

// OnStreamStart implements part of the grpcstream.Observer interface.
func (r *Recorder) OnStreamStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
}

// OnStreamRead implements part of the grpcstream.Observer interface.
// The message bytes are copied.
func (r *Recorder) OnStreamRead(msg []byte) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, cp)
}

// OnStreamError implements part of the grpcstream.Observer interface.
func (r *Recorder) OnStreamError(st *status.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, st)
}

// Started reports whether OnStreamStart has been invoked.
func (r *Recorder) Started() bool { r.mu.Lock(); defer r.mu.Unlock(); return r.starts > 0 }

// Starts reports how many times OnStreamStart has been invoked.
func (r *Recorder) Starts() int { r.mu.Lock(); defer r.mu.Unlock(); return r.starts }

// Messages returns a snapshot of the messages received so far.
func (r *Recorder) Messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([][]byte, len(r.msgs))
	copy(cp, r.msgs)
	return cp
}

// Errors returns a snapshot of the terminal statuses received so far. A
// correctly-behaving stream delivers at most one.
func (r *Recorder) Errors() []*status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]*status.Status, len(r.errs))
	copy(cp, r.errs)
	return cp
}

// A readEvent is one scripted result for FakeCall.Recv.
type readEvent struct {
	msg []byte
	err error
}

// A FakeCall is a grpcstream.Call whose primitives resolve under test
// control. Reads block until the test pushes a message or an error. Writes
// succeed immediately by default; after HoldWrites, each write blocks until
// the test releases it. Finish unblocks everything still pending.
type FakeCall struct {
	mu        sync.Mutex
	sent      [][]byte
	connected bool
	finished  bool
	holding   bool

	connectErr error
	sendErr    error
	header     metadata.MD
	finishSt   *status.Status

	reads  chan readEvent
	writes chan error
	done   chan struct{}
}

// NewFakeCall constructs a FakeCall that connects successfully, accepts all
// writes immediately, and reports a Canceled terminal status.
func NewFakeCall() *FakeCall {
	return &FakeCall{
		header: metadata.MD{},
		reads:  make(chan readEvent, 16),
		writes: make(chan error, 16),
		done:   make(chan struct{}),
	}
}

// Connect implements part of the grpcstream.Call interface.
func (c *FakeCall) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

// Recv implements part of the grpcstream.Call interface. It blocks until
// the test pushes a read or the call is finished.
func (c *FakeCall) Recv() ([]byte, error) {
	select {
	case ev := <-c.reads:
		return ev.msg, ev.err
	case <-c.done:
		return nil, context.Canceled
	}
}

// Send implements part of the grpcstream.Call interface.
func (c *FakeCall) Send(msg []byte) error {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.mu.Lock()
	c.sent = append(c.sent, cp)
	holding, err := c.holding, c.sendErr
	c.mu.Unlock()

	if !holding {
		return err
	}
	select {
	case err := <-c.writes:
		return err
	case <-c.done:
		return context.Canceled
	}
}

// Header implements part of the grpcstream.Call interface.
func (c *FakeCall) Header() (metadata.MD, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header, nil
}

// Finish implements part of the grpcstream.Call interface. It unblocks any
// pending Recv or Send.
func (c *FakeCall) Finish() *status.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finished {
		c.finished = true
		close(c.done)
	}
	if c.finishSt != nil {
		return c.finishSt
	}
	return status.New(codes.Canceled, "canceled")
}

// FailConnect makes Connect report err.
func (c *FakeCall) FailConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// FailWrites makes every immediate (non-held) Send report err.
func (c *FakeCall) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// SetHeader sets the response metadata reported by Header.
func (c *FakeCall) SetHeader(md metadata.MD) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = md
}

// SetFinishStatus sets the terminal status reported by Finish.
func (c *FakeCall) SetFinishStatus(st *status.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishSt = st
}

// HoldWrites makes each subsequent Send block until ReleaseWrite.
func (c *FakeCall) HoldWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holding = true
}

// ReleaseWrite completes one held write with the given error (nil for
// success).
func (c *FakeCall) ReleaseWrite(err error) { c.writes <- err }

// PushRead delivers msg to the next pending or future Recv.
func (c *FakeCall) PushRead(msg []byte) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.reads <- readEvent{msg: cp}
}

// FailRead delivers err to the next pending or future Recv.
func (c *FakeCall) FailRead(err error) { c.reads <- readEvent{err: err} }

// Sent returns a snapshot of the payloads given to Send, in order.
func (c *FakeCall) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([][]byte, len(c.sent))
	copy(cp, c.sent)
	return cp
}

// Finished reports whether Finish has been called.
func (c *FakeCall) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}
