// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package grpccall

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// A frame carries one raw message through the gRPC codec machinery.
type frame struct {
	payload []byte
}

// rawCodec is a passthrough encoding.Codec: message bytes are sent and
// received exactly as given. It handles only *frame values, which is all the
// package ever passes to SendMsg and RecvMsg.
type rawCodec struct{}

var _ encoding.Codec = rawCodec{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("cannot marshal %T: not a raw frame", v)
	}
	return f.payload, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("cannot unmarshal into %T: not a raw frame", v)
	}
	f.payload = data
	return nil
}

func (rawCodec) Name() string { return "grpcstream-raw" }
