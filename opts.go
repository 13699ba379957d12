// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package grpcstream

import (
	"fmt"
	"io"
	"log"
)

const logFlags = log.LstdFlags | log.Lshortfile

// StreamOptions control the behaviour of a stream created by New.
// A nil *StreamOptions provides sensible defaults.
type StreamOptions struct {
	// If not nil, send debug logs to this writer.
	LogWriter io.Writer
}

func (o *StreamOptions) logger() func(string, ...any) {
	if o == nil || o.LogWriter == nil {
		return func(string, ...any) {}
	}
	logger := log.New(o.LogWriter, "[grpcstream] ", logFlags)
	return func(msg string, args ...any) { logger.Output(2, fmt.Sprintf(msg, args...)) }
}
