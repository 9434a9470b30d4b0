package types

import "errors"

// Sentinel errors for the trace engine. Callers test with errors.Is; the
// wrapping message carries the offending file or entry.
var (
	// ErrNotFound covers missing paths, unknown entry ids, manifest URL
	// queries with zero matches, and out-of-bounds stream navigation.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat means no format adapter recognizes the input.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrMalformedInput means an adapter failed to parse structurally
	// invalid content.
	ErrMalformedInput = errors.New("malformed input")

	// ErrPrecondition means an argument violates an API precondition,
	// such as navigating a stream from an entry that is not a member.
	ErrPrecondition = errors.New("precondition failed")

	// ErrUnsupportedOperation means the operation is not available for the
	// source format, such as serializing to a read-only format.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)
