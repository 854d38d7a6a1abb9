package model

import (
	"context"
	"io"
)

// LogSource lists candidate flight logs and opens their byte streams.
// Implementations carry their own prefix and vehicle filter.
type LogSource interface {
	// List returns the candidate logs in listing order.
	List(ctx context.Context) ([]LogRef, error)
	// Open returns the raw byte stream for one identifier. The caller
	// closes the stream.
	Open(ctx context.Context, identifier string) (io.ReadCloser, error)
}

// SampleHandler receives decoded samples in stream order. Returning an error
// stops the decode.
type SampleHandler func(Sample) error

// Decoder turns a raw log byte stream into a sequence of typed samples for
// the requested topics. It must not buffer the entire stream in memory.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader, topics []string, emit SampleHandler) error
}

// SummaryStore is the append-only per-log summary table. At most one row
// exists per identifier; Append fails on duplicates.
type SummaryStore interface {
	Append(ctx context.Context, s *LogSummary) error
	Identifiers(ctx context.Context) ([]string, error)
	Summaries(ctx context.Context) ([]LogSummary, error)
	Truncate(ctx context.Context) error
}
