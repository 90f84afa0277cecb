package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/freeeve/readstore/internal/fastq"
)

type fastqRecord = fastq.Record

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// readPair reads one record from each stream. ok is false when both streams
// are exhausted together; a stream ending early is a format error and any
// other read failure is an I/O error.
func readPair(left, right RecordReader, n int) (l, r *fastqRecord, ok bool, err error) {
	l, lerr := left.Read()
	r, rerr := right.Read()
	switch {
	case lerr != nil && !isEOF(lerr):
		return nil, nil, false, ioError("read left input", lerr)
	case rerr != nil && !isEOF(rerr):
		return nil, nil, false, ioError("read right input", rerr)
	case isEOF(lerr) && isEOF(rerr):
		return nil, nil, false, nil
	case isEOF(lerr) != isEOF(rerr):
		return nil, nil, false, fmt.Errorf("%w: paired inputs differ in length after %d records", ErrFormat, n)
	}
	return l, r, true, nil
}

// truncate cuts s to max symbols and reports whether it did.
func truncate(s []byte, max int) ([]byte, bool) {
	if max > 0 && len(s) > max {
		return s[:max], true
	}
	return s, false
}

// checkCancel returns ctx.Err() every 4096 records so the hot loop stays cheap.
func checkCancel(ctx context.Context, n int) error {
	if n&0xFFF != 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
