// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package grpccall

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
)

func TestRawCodecRoundTrip(t *testing.T) {
	const payload = "\x00\x01raw bytes\xff"

	bits, err := rawCodec{}.Marshal(&frame{payload: []byte(payload)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if got := string(bits); got != payload {
		t.Errorf("Marshal changed the payload: got %q, want %q", got, payload)
	}

	var f frame
	if err := (rawCodec{}).Unmarshal(bits, &f); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(string(f.payload), payload); diff != "" {
		t.Errorf("Unmarshal changed the payload: (-got, +want)\n%s", diff)
	}
}

func TestRawCodecRejectsOtherTypes(t *testing.T) {
	if _, err := (rawCodec{}).Marshal("not a frame"); err == nil {
		t.Error("Marshal of a non-frame did not fail")
	}
	if err := (rawCodec{}).Unmarshal(nil, map[string]int{}); err == nil {
		t.Error("Unmarshal into a non-frame did not fail")
	}
}

func TestPrimitivesBeforeConnect(t *testing.T) {
	c := New(context.Background(), nil, "/test.Service/Stream")

	if _, err := c.Recv(); err != errNotConnected {
		t.Errorf("Recv returned %v, want %v", err, errNotConnected)
	}
	if err := c.Send(nil); err != errNotConnected {
		t.Errorf("Send returned %v, want %v", err, errNotConnected)
	}
	if _, err := c.Header(); err != errNotConnected {
		t.Errorf("Header returned %v, want %v", err, errNotConnected)
	}
}

func TestFinishBeforeConnect(t *testing.T) {
	c := New(context.Background(), nil, "/test.Service/Stream")

	st := c.Finish()
	if st.Code() != codes.Canceled {
		t.Errorf("Got terminal code %v, want %v", st.Code(), codes.Canceled)
	}
	if err := c.ctx.Err(); err != context.Canceled {
		t.Errorf("Call context reports %v, want %v", err, context.Canceled)
	}
}

func TestFirstErrorWins(t *testing.T) {
	c := New(context.Background(), nil, "/test.Service/Stream")

	first := c.setErr(context.DeadlineExceeded)
	if first != context.DeadlineExceeded {
		t.Errorf("setErr returned %v, want %v", first, context.DeadlineExceeded)
	}
	c.setErr(context.Canceled)

	st := c.Finish()
	if st.Code() != codes.DeadlineExceeded {
		t.Errorf("Got terminal code %v, want %v", st.Code(), codes.DeadlineExceeded)
	}
}
