// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package streamtest_test

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"

	"github.com/creachadair/grpcstream/streamtest"
)

func TestFakeCallHeldWrites(t *testing.T) {
	defer leaktest.Check(t)()
	c := streamtest.NewFakeCall()
	c.HoldWrites()

	errc := make(chan error, 1)
	go func() { errc <- c.Send([]byte("held")) }()

	select {
	case err := <-errc:
		t.Fatalf("Held Send returned early with %v", err)
	case <-time.After(10 * time.Millisecond):
		// ok, still blocked
	}

	c.ReleaseWrite(nil)
	if err := <-errc; err != nil {
		t.Errorf("Released Send failed: %v", err)
	}
	if diff := cmp.Diff(c.Sent(), [][]byte{[]byte("held")}); diff != "" {
		t.Errorf("Wrong sent payloads: (-got, +want)\n%s", diff)
	}
}

func TestFakeCallFinishUnblocksRecv(t *testing.T) {
	defer leaktest.Check(t)()
	c := streamtest.NewFakeCall()

	errc := make(chan error, 1)
	go func() {
		_, err := c.Recv()
		errc <- err
	}()

	c.Finish()
	if err := <-errc; err != context.Canceled {
		t.Errorf("Recv after Finish returned %v, want %v", err, context.Canceled)
	}
}

func TestRecorderSnapshots(t *testing.T) {
	r := streamtest.NewRecorder()
	r.OnStreamStart()
	msg := []byte("mutable")
	r.OnStreamRead(msg)
	msg[0] = 'X' // the recorder must have copied

	if !r.Started() {
		t.Error("Recorder does not report started")
	}
	if diff := cmp.Diff(r.Messages(), [][]byte{[]byte("mutable")}); diff != "" {
		t.Errorf("Wrong messages: (-got, +want)\n%s", diff)
	}
	if got := r.Errors(); len(got) != 0 {
		t.Errorf("Unexpected terminal statuses: %v", got)
	}
}
