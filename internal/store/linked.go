package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/freeeve/readstore/internal/seq"
)

const (
	// TagLen is the number of barcode bases packed into a tag.
	TagLen = 16
	// raw10xTrim is the barcode plus the 7bp spacer removed from read 1.
	raw10xTrim = TagLen + 7

	DefaultChunkSize = 1_000_000
)

// LinkedOptions configures a linked read datastore build.
type LinkedOptions struct {
	Name       string
	Format     LinkedFormat
	MaxReadLen int    // both reads are truncated to this length
	ChunkSize  int    // pairs per sorted chunk, default 1,000,000
	Workers    int    // goroutines sorting and writing chunks, default 1
	TempDir    string // parent of the chunk arena, default os.TempDir()
	Alphabet   seq.Alphabet
}

func (o LinkedOptions) withDefaults() LinkedOptions {
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Workers == 0 {
		o.Workers = 1
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.Alphabet == 0 {
		o.Alphabet = seq.DNA4
	}
	return o
}

func (o LinkedOptions) validate() error {
	switch {
	case o.Format != Raw10x && o.Format != UCDavis10x:
		return fmt.Errorf("%w: unknown linked read format %d", ErrConfig, o.Format)
	case o.MaxReadLen <= 0:
		return fmt.Errorf("%w: max read length must be positive, got %d", ErrConfig, o.MaxReadLen)
	case o.ChunkSize < 0:
		return fmt.Errorf("%w: negative chunk size %d", ErrConfig, o.ChunkSize)
	case o.Workers < 0:
		return fmt.Errorf("%w: negative worker count %d", ErrConfig, o.Workers)
	}
	return nil
}

// encodeTag packs the first TagLen bases of b, two bits per base. ok is false
// for a short barcode or one holding anything but ACGT; such pairs are kept
// untagged with tag 0, which an all-A barcode also encodes to.
func encodeTag(b []byte) (tag uint32, ok bool) {
	if len(b) < TagLen {
		return 0, false
	}
	for _, c := range b[:TagLen] {
		var code uint32
		switch c {
		case 'A', 'a':
			code = 0
		case 'C', 'c':
			code = 1
		case 'G', 'g':
			code = 2
		case 'T', 't':
			code = 3
		default:
			return 0, false
		}
		tag = tag<<2 | code
	}
	return tag, true
}

// DecodeTag renders a tag as its barcode bases.
func DecodeTag(tag uint32) string {
	var b [TagLen]byte
	for i := TagLen - 1; i >= 0; i-- {
		b[i] = "ACGT"[tag&3]
		tag >>= 2
	}
	return string(b[:])
}

// extractTag returns the tag of a pair, whether it was valid, and the left
// read with any barcode removed, according to the source format.
func extractTag(f LinkedFormat, left *fastqRecord) (uint32, bool, []byte) {
	switch f {
	case Raw10x:
		tag, ok := encodeTag(left.Seq)
		trim := min(raw10xTrim, len(left.Seq))
		return tag, ok, left.Seq[trim:]
	case UCDavis10x:
		tag, ok := encodeTag(left.ID)
		return tag, ok, left.Seq
	}
	return 0, false, left.Seq
}

// LinkedBuilder converts two FASTQ streams into a linked read datastore in
// which pairs are ordered by tag. It sorts externally: batches of ChunkSize
// pairs are sorted and spilled to a temporary arena, then merged.
type LinkedBuilder struct {
	opts  LinkedOptions
	stats BuildStats
	log   logFunc
}

func NewLinkedBuilder(opts LinkedOptions) *LinkedBuilder {
	return &LinkedBuilder{opts: opts.withDefaults(), log: nopLog}
}

// SetLogger sets a logging function
func (b *LinkedBuilder) SetLogger(log func(format string, args ...any)) {
	b.log = log
}

// Build writes the pairs of left and right to prefix (the .lrseq suffix is
// added when missing), ordered by tag and, within a tag, by input order.
// The chunk arena is removed whether or not the build succeeds.
func (b *LinkedBuilder) Build(ctx context.Context, left, right RecordReader, prefix string) (BuildStats, error) {
	if err := b.opts.validate(); err != nil {
		return BuildStats{}, err
	}
	start := time.Now()
	path := OutputPath(prefix, KindLinked)
	b.stats = BuildStats{Path: path, Kind: KindLinked}

	arena, err := newChunkArena(b.opts.TempDir)
	if err != nil {
		return BuildStats{}, err
	}
	defer arena.Remove()

	b.log("sorting read pairs by tag in chunks of %d", b.opts.ChunkSize)
	chunks, err := b.writeChunks(ctx, arena, left, right)
	if err != nil {
		return BuildStats{}, err
	}
	b.stats.Chunks = chunks
	b.log("wrote %d sorted chunks, merging", chunks)

	w, err := Create(path, Header{
		Kind:         KindLinked,
		Alphabet:     b.opts.Alphabet,
		LinkedFormat: b.opts.Format,
		MaxSize:      uint64(b.opts.MaxReadLen),
		Name:         defaultName(b.opts.Name, prefix),
	})
	if err != nil {
		return BuildStats{}, err
	}
	if err := mergeChunks(ctx, arena, chunks, w); err != nil {
		w.Abort()
		return BuildStats{}, err
	}
	if err := w.Finalize(); err != nil {
		return BuildStats{}, err
	}

	b.stats.Reads = w.Count()
	b.stats.Pairs = w.Count() / 2
	b.stats.Elapsed = time.Since(start)
	b.log("%d read pairs carried no valid tag", b.stats.Untagged)
	b.log("%d reads were truncated to %d base pairs", b.stats.Truncated, b.opts.MaxReadLen)
	b.log("created linked sequence datastore with %d sequence pairs in %s", b.stats.Pairs, b.stats.Elapsed)
	return b.stats, nil
}

// nextPair reads one input pair and turns it into a chunk entry.
func (b *LinkedBuilder) nextPair(left, right RecordReader, n int) (chunkEntry, bool, error) {
	l, r, ok, err := readPair(left, right, n)
	if err != nil || !ok {
		return chunkEntry{}, ok, err
	}
	tag, tagged, ls := extractTag(b.opts.Format, l)
	if !tagged {
		b.stats.Untagged++
	}
	ls, cut := truncate(ls, b.opts.MaxReadLen)
	if cut {
		b.stats.Truncated++
	}
	rs, cut := truncate(r.Seq, b.opts.MaxReadLen)
	if cut {
		b.stats.Truncated++
	}
	return chunkEntry{tag: tag, left: ls, right: rs}, true, nil
}

// Stats returns the statistics of the last Build.
func (b *LinkedBuilder) Stats() BuildStats {
	return b.stats
}

// LinkedReads is an opened linked read datastore. Pairs are stored in tag
// order; Tag(i) is the tag of pair i.
type LinkedReads struct {
	*Container
}

// OpenLinked opens a linked read datastore.
func OpenLinked(path, name string) (*LinkedReads, error) {
	c, err := openKind(path, name, KindLinked)
	if err != nil {
		return nil, err
	}
	return &LinkedReads{Container: c}, nil
}

func (l *LinkedReads) PairCount() int { return l.Len() / 2 }

func (l *LinkedReads) Pair(i int) (left, right seq.Sequence, err error) {
	return GetPair(l, i)
}

// Tag returns the tag of pair i; 0 means the pair had no valid barcode.
func (l *LinkedReads) Tag(i int) (uint32, error) {
	if i < 0 || i >= len(l.tags) {
		return 0, indexError("pair", i, len(l.tags))
	}
	return l.tags[i], nil
}

// Format returns the tag convention of the source reads.
func (l *LinkedReads) Format() LinkedFormat { return l.header.LinkedFormat }

func (l *LinkedReads) String() string { return describe("", l) }
