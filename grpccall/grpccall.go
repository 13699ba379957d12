// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package grpccall implements the grpcstream.Call interface over a gRPC
// client connection. The call is issued against an arbitrary fully-qualified
// method name with a passthrough codec, so the bytes given to Send and
// returned by Recv travel the wire unmodified.
package grpccall

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// streamDesc describes the call to gRPC: both directions stream.
var streamDesc = &grpc.StreamDesc{
	StreamName:    "grpcstream",
	ClientStreams: true,
	ServerStreams: true,
}

var errNotConnected = errors.New("call is not connected")

// A Call is a single bidirectional gRPC call. It implements grpcstream.Call.
// The Call owns the context backing the gRPC stream; the stream handle is
// valid only while that context is, which Finish guarantees by reporting the
// terminal status only after cancellation.
type Call struct {
	conn   *grpc.ClientConn
	method string
	opts   []grpc.CallOption
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex // protects the fields below
	stream grpc.ClientStream
	err    error // first terminal error reported by a primitive
}

// New constructs an unconnected call to the specified method, for example
// "/google.firestore.v1.Firestore/Listen", over conn. The call runs in a
// context derived from ctx, and ends when ctx does.
func New(ctx context.Context, conn *grpc.ClientConn, method string, opts ...grpc.CallOption) *Call {
	cctx, cancel := context.WithCancel(ctx)
	return &Call{conn: conn, method: method, opts: opts, ctx: cctx, cancel: cancel}
}

// Connect implements part of the grpcstream.Call interface. It creates the
// gRPC stream and blocks until the server's response headers arrive, so a
// successful return means the call is open.
func (c *Call) Connect() error {
	opts := append([]grpc.CallOption{grpc.ForceCodec(rawCodec{})}, c.opts...)
	stream, err := c.conn.NewStream(c.ctx, streamDesc, c.method, opts...)
	if err != nil {
		return c.setErr(err)
	}
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	if _, err := stream.Header(); err != nil {
		return c.setErr(err)
	}
	return nil
}

// Recv implements part of the grpcstream.Call interface.
func (c *Call) Recv() ([]byte, error) {
	stream, err := c.get()
	if err != nil {
		return nil, err
	}
	var f frame
	if err := stream.RecvMsg(&f); err != nil {
		return nil, c.setErr(err)
	}
	return f.payload, nil
}

// Send implements part of the grpcstream.Call interface.
func (c *Call) Send(msg []byte) error {
	stream, err := c.get()
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&frame{payload: msg}); err != nil {
		return c.setErr(err)
	}
	return nil
}

// Header implements part of the grpcstream.Call interface.
func (c *Call) Header() (metadata.MD, error) {
	stream, err := c.get()
	if err != nil {
		return nil, err
	}
	return stream.Header()
}

// Finish implements part of the grpcstream.Call interface. It cancels the
// call, unblocking any primitive in flight, and reports the terminal status:
// OK if the server closed the stream cleanly, Canceled if the client ended
// an otherwise healthy call, and the recorded failure otherwise.
func (c *Call) Finish() *status.Status {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stream == nil && c.err == nil:
		return status.New(codes.Canceled, "call was never connected")
	case c.err == nil:
		return status.New(codes.Canceled, "call canceled by the client")
	case errors.Is(c.err, io.EOF):
		return status.New(codes.OK, "")
	default:
		if st, ok := status.FromError(c.err); ok {
			return st
		}
		return status.FromContextError(c.err)
	}
}

// get returns the connected stream handle, or an error if Connect has not
// succeeded.
func (c *Call) get() (grpc.ClientStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil, errNotConnected
	}
	return c.stream, nil
}

// setErr records the first terminal error and returns err unmodified.
func (c *Call) setErr(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	return err
}
