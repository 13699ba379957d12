// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

/*
Package grpcstream implements a client-side bidirectional streaming transport
over a generic remote call. A Stream carries opaque byte messages in both
directions: it is always listening for messages from the server, and messages
written by the client are queued and sent out one at a time. Serialization of
message content is left entirely to the caller.

A Stream reports its lifecycle to a single Observer:

  - the stream has been started;
  - the stream has received a message from the server;
  - the stream has been terminated, by the server or by a failure.

All observer notifications are delivered on a dispatch.Queue supplied at
construction, one at a time and in completion order. A finish initiated by
the client produces no notification. Streams are disposable: once a stream
has finished it cannot be restarted, and a caller wanting a new stream must
construct one.

# Transport

The transport is abstracted by the Call interface, whose primitives are
issued asynchronously by the stream and may block until the call is canceled.
The grpccall subpackage provides a Call over a gRPC client connection using a
passthrough codec, so the stream exchanges raw bytes with the wire.

# Shutdown

Finish and WriteAndFinish are the only blocking entry points. Both cancel
the underlying call and then wait until every operation the stream has issued
against the transport has completed, so that no transport callback can occur
after the stream's resources are released. The wait is expected to be brief,
on the order of tens of milliseconds, because the call has already been
canceled by the time it begins.

Finish and WriteAndFinish must not be called from an Observer callback; doing
so would block the dispatch queue the shutdown is waiting on.
*/
package grpcstream
