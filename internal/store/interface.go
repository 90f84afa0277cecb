package store

import (
	"fmt"

	"github.com/freeeve/readstore/internal/fastq"
	"github.com/freeeve/readstore/internal/seq"
)

// ReadDatastore is the read-only surface shared by every datastore kind and
// by the Access Buffer.
type ReadDatastore interface {
	Name() string
	Kind() Kind
	Alphabet() seq.Alphabet
	Len() int
	MaxReadLen() int
	Get(i int) (seq.Sequence, error)
	LoadInto(i int, dst *seq.Sequence) (int, error)
	Close() error
}

// PairedDatastore is implemented by paired and linked datastores.
type PairedDatastore interface {
	ReadDatastore
	PairCount() int
	Pair(i int) (left, right seq.Sequence, err error)
}

// TaggedDatastore is implemented by linked datastores.
type TaggedDatastore interface {
	PairedDatastore
	Tag(i int) (uint32, error)
}

// RecordReader is the source of input records for the builders.
type RecordReader = fastq.RecordReader

var (
	_ PairedDatastore = (*PairedReads)(nil)
	_ ReadDatastore   = (*LongReads)(nil)
	_ TaggedDatastore = (*LinkedReads)(nil)
	_ TaggedDatastore = (*Buffer)(nil)
)

// Open opens a datastore of any kind, dispatching on the kind stored in the
// header. name optionally overrides the stored name.
func Open(path, name string) (ReadDatastore, error) {
	c, err := OpenContainer(path, name)
	if err != nil {
		return nil, err
	}
	switch c.Kind() {
	case KindPaired:
		return &PairedReads{Container: c}, nil
	case KindLong:
		return &LongReads{Container: c}, nil
	case KindLinked:
		return &LinkedReads{Container: c}, nil
	}
	c.Close()
	return nil, fmt.Errorf("%s: %w: unknown kind %d", path, ErrFormat, c.Kind())
}

// openKind opens path and checks that it holds a datastore of kind k.
func openKind(path, name string, k Kind) (*Container, error) {
	c, err := OpenContainer(path, name)
	if err != nil {
		return nil, err
	}
	if c.Kind() != k {
		c.Close()
		return nil, fmt.Errorf("%s: %w: %w: want %s, file holds %s", path, ErrFormat, ErrKind, k, c.Kind())
	}
	return c, nil
}

// GetPair returns pair i of any datastore that stores reads as pairs,
// including a buffered one.
func GetPair(ds ReadDatastore, i int) (left, right seq.Sequence, err error) {
	if !ds.Kind().hasPairs() {
		return nil, nil, fmt.Errorf("%w: %s datastore has no pairs", ErrKind, ds.Kind())
	}
	if n := ds.Len() / 2; i < 0 || i >= n {
		return nil, nil, indexError("pair", i, n)
	}
	if left, err = ds.Get(2 * i); err != nil {
		return nil, nil, err
	}
	if right, err = ds.Get(2*i + 1); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// describe renders the one-line summary shared by the String methods.
func describe(prefix string, ds ReadDatastore) string {
	kind := map[Kind]string{
		KindPaired: "Paired Read Datastore",
		KindLong:   "Long Read Datastore",
		KindLinked: "Linked Read Datastore",
	}[ds.Kind()]
	s := fmt.Sprintf("%s%s '%s': %d reads", prefix, kind, ds.Name(), ds.Len())
	if ds.Kind().hasPairs() {
		s += fmt.Sprintf(" (%d pairs)", ds.Len()/2)
	}
	return s
}
