package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/freeeve/readstore/internal/seq"
)

// PairedOptions configures a paired read datastore build.
type PairedOptions struct {
	Name        string // defaults to the base name of the output prefix
	MinSize     int    // pairs with a read shorter than this are discarded
	MaxSize     int    // reads longer than this are truncated
	FragSize    int    // expected fragment size, informational
	Orientation Orientation
	Alphabet    seq.Alphabet // defaults to DNA4
}

func (o PairedOptions) withDefaults() PairedOptions {
	if o.Alphabet == 0 {
		o.Alphabet = seq.DNA4
	}
	return o
}

func (o PairedOptions) validate() error {
	switch {
	case o.MinSize < 0 || o.MaxSize < 0 || o.FragSize < 0:
		return fmt.Errorf("%w: negative size (min %d, max %d, frag %d)", ErrConfig, o.MinSize, o.MaxSize, o.FragSize)
	case o.MaxSize == 0:
		return fmt.Errorf("%w: max size must be positive", ErrConfig)
	case o.MinSize > o.MaxSize:
		return fmt.Errorf("%w: min size %d exceeds max size %d", ErrConfig, o.MinSize, o.MaxSize)
	case o.Orientation != FwRv && o.Orientation != RvFw:
		return fmt.Errorf("%w: unknown orientation %d", ErrConfig, o.Orientation)
	}
	return nil
}

// defaultName derives a datastore name from an output prefix.
func defaultName(name, prefix string) string {
	if name != "" {
		return name
	}
	base := filepath.Base(prefix)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PairedBuilder converts two FASTQ streams into a paired read datastore.
type PairedBuilder struct {
	opts  PairedOptions
	stats BuildStats
	log   logFunc
}

// NewPairedBuilder creates a builder. Options are checked by Build.
func NewPairedBuilder(opts PairedOptions) *PairedBuilder {
	return &PairedBuilder{opts: opts.withDefaults(), log: nopLog}
}

// SetLogger sets a logging function
func (b *PairedBuilder) SetLogger(log func(format string, args ...any)) {
	b.log = log
}

// Build reads left and right in lockstep and writes the kept pairs to
// prefix (the .prseq suffix is added when missing). Each read longer than
// MaxSize is truncated; a pair is then discarded when either read is shorter
// than MinSize. On any error, including cancellation, no file is left at the
// output path.
func (b *PairedBuilder) Build(ctx context.Context, left, right RecordReader, prefix string) (BuildStats, error) {
	if err := b.opts.validate(); err != nil {
		return BuildStats{}, err
	}
	start := time.Now()
	path := OutputPath(prefix, KindPaired)
	b.stats = BuildStats{Path: path, Kind: KindPaired}

	w, err := Create(path, Header{
		Kind:        KindPaired,
		Alphabet:    b.opts.Alphabet,
		Orientation: b.opts.Orientation,
		MinSize:     uint64(b.opts.MinSize),
		MaxSize:     uint64(b.opts.MaxSize),
		FragSize:    uint64(b.opts.FragSize),
		Name:        defaultName(b.opts.Name, prefix),
	})
	if err != nil {
		return BuildStats{}, err
	}
	if err := b.copyPairs(ctx, w, left, right); err != nil {
		w.Abort()
		return BuildStats{}, err
	}
	if err := w.Finalize(); err != nil {
		return BuildStats{}, err
	}

	b.stats.Reads = w.Count()
	b.stats.Pairs = w.Count() / 2
	b.stats.Elapsed = time.Since(start)
	b.log("%d read pairs were discarded due to a too short sequence", b.stats.Discarded)
	b.log("%d reads were truncated to %d base pairs", b.stats.Truncated, b.opts.MaxSize)
	b.log("created paired sequence datastore with %d sequence pairs in %s", b.stats.Pairs, b.stats.Elapsed)
	return b.stats, nil
}

// copyPairs truncates before it filters, so the truncation counter also
// includes reads of pairs that are then discarded.
func (b *PairedBuilder) copyPairs(ctx context.Context, w *Writer, left, right RecordReader) error {
	for n := 0; ; n++ {
		if err := checkCancel(ctx, n); err != nil {
			return err
		}
		l, r, ok, err := readPair(left, right, n)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		ls, cut := truncate(l.Seq, b.opts.MaxSize)
		if cut {
			b.stats.Truncated++
		}
		rs, cut := truncate(r.Seq, b.opts.MaxSize)
		if cut {
			b.stats.Truncated++
		}
		if len(ls) < b.opts.MinSize || len(rs) < b.opts.MinSize {
			b.stats.Discarded++
			continue
		}
		if _, err := w.Append(ls); err != nil {
			return err
		}
		if _, err := w.Append(rs); err != nil {
			return err
		}
	}
}

// Stats returns the statistics of the last Build.
func (b *PairedBuilder) Stats() BuildStats {
	return b.stats
}

// PairedReads is an opened paired read datastore. Pair i is reads 2i and 2i+1.
type PairedReads struct {
	*Container
}

// OpenPaired opens a paired read datastore. A non-empty name overrides the
// stored one.
func OpenPaired(path, name string) (*PairedReads, error) {
	c, err := openKind(path, name, KindPaired)
	if err != nil {
		return nil, err
	}
	return &PairedReads{Container: c}, nil
}

// PairCount returns the number of stored pairs.
func (p *PairedReads) PairCount() int { return p.Len() / 2 }

// Pair returns both reads of pair i.
func (p *PairedReads) Pair(i int) (left, right seq.Sequence, err error) {
	return GetPair(p, i)
}

func (p *PairedReads) Orientation() Orientation { return p.header.Orientation }
func (p *PairedReads) FragSize() int            { return int(p.header.FragSize) }
func (p *PairedReads) MinSize() int             { return int(p.header.MinSize) }
func (p *PairedReads) MaxSize() int             { return int(p.header.MaxSize) }

func (p *PairedReads) String() string { return describe("", p) }
