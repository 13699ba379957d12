// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package grpcstream

import (
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// A Call represents a single logical bidirectional call against a remote
// endpoint. A Stream issues each primitive on its own goroutine and treats
// the return of the primitive as the operation's completion, so a Call must
// be safe for one concurrent Connect or Recv alongside one Send.
//
// The implementation owns the resources backing the call and must keep them
// valid until Finish has returned; the stream guarantees that no primitive
// is in flight by then.
type Call interface {
	// Connect starts the call, blocking until the stream is open and the
	// server's response headers are available, or until the call fails.
	Connect() error

	// Recv returns the next message from the server. It blocks until a
	// message arrives, the server closes the stream, or the call ends.
	Recv() ([]byte, error)

	// Send transmits one message to the server. The stream issues at most
	// one Send at a time.
	Send(msg []byte) error

	// Header returns the server's response metadata. It is valid once
	// Connect has returned successfully.
	Header() (metadata.MD, error)

	// Finish cancels the call and reports its terminal status. After Finish
	// is called, any in-flight primitive must return promptly.
	Finish() *status.Status
}

// An Observer receives lifecycle notifications from a Stream. All methods
// are invoked on the stream's dispatch queue, never concurrently. A stream
// delivers at most one OnStreamStart and at most one OnStreamError to its
// observer, with any number of OnStreamRead calls between them.
type Observer interface {
	// OnStreamStart is invoked once the stream is open.
	OnStreamStart()

	// OnStreamRead is invoked with each message received from the server.
	// The observer must not retain msg past the call.
	OnStreamRead(msg []byte)

	// OnStreamError is invoked when the stream terminates other than by
	// client request. The status carries the terminal state of the call and
	// is not necessarily an error: a clean server-initiated close delivers
	// an OK status. No further notifications follow.
	OnStreamError(st *status.Status)
}
