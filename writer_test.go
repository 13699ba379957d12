// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package grpcstream

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferedWriter(t *testing.T) {
	var issued []string
	w := newBufferedWriter(func(pw pendingWrite) {
		issued = append(issued, string(pw.msg))
	})

	if !w.isIdle() {
		t.Error("New writer is not idle")
	}

	// An enqueue on an idle writer issues immediately.
	w.enqueue(pendingWrite{msg: []byte("a")})
	if diff := cmp.Diff(issued, []string{"a"}); diff != "" {
		t.Errorf("Wrong writes issued: (-got, +want)\n%s", diff)
	}

	// Enqueues while a write is active are buffered, not issued.
	w.enqueue(pendingWrite{msg: []byte("b")})
	w.enqueue(pendingWrite{msg: []byte("c")})
	if diff := cmp.Diff(issued, []string{"a"}); diff != "" {
		t.Errorf("Wrong writes issued: (-got, +want)\n%s", diff)
	}
	if w.isIdle() {
		t.Error("Writer reports idle with a write active")
	}

	// Completions issue the buffered payloads in their original order.
	w.dequeueNext()
	if diff := cmp.Diff(issued, []string{"a", "b"}); diff != "" {
		t.Errorf("Wrong writes issued: (-got, +want)\n%s", diff)
	}
	w.dequeueNext()
	if diff := cmp.Diff(issued, []string{"a", "b", "c"}); diff != "" {
		t.Errorf("Wrong writes issued: (-got, +want)\n%s", diff)
	}

	// A completion with an empty queue issues nothing and marks the writer
	// idle.
	w.dequeueNext()
	if diff := cmp.Diff(issued, []string{"a", "b", "c"}); diff != "" {
		t.Errorf("Wrong writes issued: (-got, +want)\n%s", diff)
	}
	if !w.isIdle() {
		t.Error("Writer is not idle after its queue drained")
	}

	// The writer can go active again after idling.
	w.enqueue(pendingWrite{msg: []byte("d")})
	if diff := cmp.Diff(issued, []string{"a", "b", "c", "d"}); diff != "" {
		t.Errorf("Wrong writes issued: (-got, +want)\n%s", diff)
	}
}

func TestBufferedWriterFinalMarker(t *testing.T) {
	var final []bool
	w := newBufferedWriter(func(pw pendingWrite) { final = append(final, pw.final) })

	w.enqueue(pendingWrite{msg: []byte("a")})
	w.enqueue(pendingWrite{msg: []byte("z"), final: true})
	w.dequeueNext()

	if diff := cmp.Diff(final, []bool{false, true}); diff != "" {
		t.Errorf("Wrong final markers: (-got, +want)\n%s", diff)
	}
}
