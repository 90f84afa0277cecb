package store

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for invalid construction parameters.
	ErrConfig = errors.New("invalid configuration")
	// ErrFormat is returned for a bad magic or a corrupt header or index.
	ErrFormat = errors.New("invalid datastore format")
	// ErrVersion is returned for an unsupported format version.
	ErrVersion = errors.New("unsupported datastore version")
	// ErrIO wraps any read, write or seek failure.
	ErrIO = errors.New("datastore i/o error")
	// ErrIndex is returned for an out-of-range read, pair or tag index.
	ErrIndex = errors.New("index out of range")
	// ErrClosed is returned when using a finalized writer or a closed datastore.
	ErrClosed = errors.New("datastore closed")
	// ErrKind is returned when an operation does not apply to a datastore kind.
	ErrKind = errors.New("wrong datastore kind")
)

// ioError wraps err so that both ErrIO and the underlying cause match errors.Is.
func ioError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrIO, err)
}

func indexError(what string, i, n int) error {
	return fmt.Errorf("%w: %s %d not in [0, %d)", ErrIndex, what, i, n)
}
