package store

import "time"

// BuildStats summarises one datastore construction.
type BuildStats struct {
	Path      string
	Kind      Kind
	Reads     int // reads written
	Pairs     int // pairs written (paired and linked)
	Discarded int // pairs (paired) or reads (long) dropped as too short
	Truncated int // reads cut to the maximum length
	Untagged  int // linked pairs without a valid tag
	Chunks    int // tag-sorted chunk files (linked)
	Elapsed   time.Duration
}

// logFunc is the printf-style hook every builder logs through.
type logFunc func(format string, args ...any)

func nopLog(string, ...any) {}
