package store

import (
	"context"
	"fmt"
	"time"

	"github.com/freeeve/readstore/internal/seq"
)

// LongOptions configures a long read datastore build.
type LongOptions struct {
	Name     string
	MinSize  int // reads shorter than this are discarded
	Alphabet seq.Alphabet
}

func (o LongOptions) withDefaults() LongOptions {
	if o.Alphabet == 0 {
		o.Alphabet = seq.DNA4
	}
	return o
}

// LongBuilder converts one FASTQ stream into a long read datastore.
type LongBuilder struct {
	opts  LongOptions
	stats BuildStats
	log   logFunc
}

func NewLongBuilder(opts LongOptions) *LongBuilder {
	return &LongBuilder{opts: opts.withDefaults(), log: nopLog}
}

// SetLogger sets a logging function
func (b *LongBuilder) SetLogger(log func(format string, args ...any)) {
	b.log = log
}

// Build writes every read of src at least MinSize long, unmodified, to
// prefix (the .loseq suffix is added when missing).
func (b *LongBuilder) Build(ctx context.Context, src RecordReader, prefix string) (BuildStats, error) {
	if b.opts.MinSize < 0 {
		return BuildStats{}, fmt.Errorf("%w: negative min size %d", ErrConfig, b.opts.MinSize)
	}
	start := time.Now()
	path := OutputPath(prefix, KindLong)
	b.stats = BuildStats{Path: path, Kind: KindLong}

	w, err := Create(path, Header{
		Kind:     KindLong,
		Alphabet: b.opts.Alphabet,
		MinSize:  uint64(b.opts.MinSize),
		Name:     defaultName(b.opts.Name, prefix),
	})
	if err != nil {
		return BuildStats{}, err
	}
	if err := b.copyReads(ctx, w, src); err != nil {
		w.Abort()
		return BuildStats{}, err
	}
	if err := w.Finalize(); err != nil {
		return BuildStats{}, err
	}

	b.stats.Reads = w.Count()
	b.stats.Elapsed = time.Since(start)
	b.log("%d reads were discarded due to a too short sequence", b.stats.Discarded)
	b.log("created long sequence datastore with %d sequences in %s", b.stats.Reads, b.stats.Elapsed)
	return b.stats, nil
}

func (b *LongBuilder) copyReads(ctx context.Context, w *Writer, src RecordReader) error {
	for n := 0; ; n++ {
		if err := checkCancel(ctx, n); err != nil {
			return err
		}
		rec, err := src.Read()
		if isEOF(err) {
			return nil
		}
		if err != nil {
			return ioError("read input", err)
		}
		if len(rec.Seq) < b.opts.MinSize {
			b.stats.Discarded++
			continue
		}
		if _, err := w.Append(rec.Seq); err != nil {
			return err
		}
	}
}

// Stats returns the statistics of the last Build.
func (b *LongBuilder) Stats() BuildStats {
	return b.stats
}

// LongReads is an opened long read datastore.
type LongReads struct {
	*Container
}

// OpenLong opens a long read datastore.
func OpenLong(path, name string) (*LongReads, error) {
	c, err := openKind(path, name, KindLong)
	if err != nil {
		return nil, err
	}
	return &LongReads{Container: c}, nil
}

// MinSize returns the minimum read length used at build time.
func (l *LongReads) MinSize() int { return int(l.header.MinSize) }

func (l *LongReads) String() string { return describe("", l) }
