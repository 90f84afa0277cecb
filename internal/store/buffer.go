package store

import (
	"fmt"
	"io"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/freeeve/readstore/internal/seq"
)

const (
	DefaultBlockSize    = 64 << 10
	DefaultBufferBlocks = 128
)

// BlockSource is a datastore whose raw file bytes can be read by offset.
// Every datastore returned by Open satisfies it.
type BlockSource interface {
	ReadDatastore
	Span(i int) (offset uint64, length uint32, err error)
	ReadAt(p []byte, off int64) (int, error)
}

// BufferOptions sizes an Access Buffer.
type BufferOptions struct {
	BlockSize int // bytes per cached block, default 64KiB
	Blocks    int // blocks held before eviction, default 128
}

func (o BufferOptions) withDefaults() BufferOptions {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Blocks == 0 {
		o.Blocks = DefaultBufferBlocks
	}
	return o
}

// BufferStats reports cache effectiveness.
type BufferStats struct {
	Hits   uint64
	Misses uint64
	Blocks int // blocks currently cached
}

// Buffer decorates a datastore with an LRU cache of file blocks. Reads
// through a Buffer return exactly what the underlying datastore returns.
// The Buffer does not own the datastore: Close drops the cache only.
type Buffer struct {
	src       BlockSource
	blockSize int64
	cache     *lru.Cache[int64, []byte]
	hits      atomic.Uint64
	misses    atomic.Uint64
	closed    atomic.Bool
}

// NewBuffer wraps src with a block cache.
func NewBuffer(src BlockSource, opts BufferOptions) (*Buffer, error) {
	opts = opts.withDefaults()
	if opts.BlockSize < 0 || opts.Blocks < 0 {
		return nil, fmt.Errorf("%w: buffer of %d blocks of %d bytes", ErrConfig, opts.Blocks, opts.BlockSize)
	}
	cache, err := lru.New[int64, []byte](opts.Blocks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &Buffer{
		src:       src,
		blockSize: int64(opts.BlockSize),
		cache:     cache,
	}, nil
}

// Underlying returns the wrapped datastore.
func (b *Buffer) Underlying() BlockSource { return b.src }

func (b *Buffer) Name() string           { return b.src.Name() }
func (b *Buffer) Kind() Kind             { return b.src.Kind() }
func (b *Buffer) Alphabet() seq.Alphabet { return b.src.Alphabet() }
func (b *Buffer) Len() int               { return b.src.Len() }
func (b *Buffer) MaxReadLen() int        { return b.src.MaxReadLen() }
func (b *Buffer) String() string         { return describe("Buffered ", b) }

// block returns the cached block starting at off, reading it on a miss.
func (b *Buffer) block(off int64) ([]byte, error) {
	if blk, ok := b.cache.Get(off); ok {
		b.hits.Add(1)
		return blk, nil
	}
	b.misses.Add(1)
	blk := make([]byte, b.blockSize)
	n, err := b.src.ReadAt(blk, off)
	if err != nil && !(err == io.EOF && n > 0) {
		if err == ErrClosed {
			return nil, err
		}
		return nil, ioError(fmt.Sprintf("read block at %d", off), err)
	}
	blk = blk[:n]
	b.cache.Add(off, blk)
	return blk, nil
}

// readRecord assembles the encoded bytes of read i from cached blocks.
func (b *Buffer) readRecord(i int, dst []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	off, n, err := b.src.Span(i)
	if err != nil {
		return nil, err
	}
	start, end := int64(off), int64(off)+int64(n)
	dst = dst[:0]
	for blkOff := start - start%b.blockSize; blkOff < end; blkOff += b.blockSize {
		blk, err := b.block(blkOff)
		if err != nil {
			return nil, err
		}
		lo := max(start-blkOff, 0)
		hi := min(end-blkOff, int64(len(blk)))
		if hi <= lo {
			return nil, fmt.Errorf("%w: read %d extends past end of file", ErrFormat, i)
		}
		dst = append(dst, blk[lo:hi]...)
	}
	return dst, nil
}

// Get returns a newly allocated copy of read i.
func (b *Buffer) Get(i int) (seq.Sequence, error) {
	rec, err := b.readRecord(i, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(nil, b.src.Alphabet(), rec)
}

// LoadInto decodes read i into dst and returns its length.
func (b *Buffer) LoadInto(i int, dst *seq.Sequence) (int, error) {
	bp := recordPool.Get().(*[]byte)
	defer recordPool.Put(bp)
	rec, err := b.readRecord(i, *bp)
	if err != nil {
		return 0, err
	}
	*bp = rec[:0]
	out, err := decodeRecord((*dst)[:0], b.src.Alphabet(), rec)
	if err != nil {
		return 0, err
	}
	*dst = out
	return len(out), nil
}

// PairCount returns the number of pairs, or 0 for a long read datastore.
func (b *Buffer) PairCount() int {
	if !b.Kind().hasPairs() {
		return 0
	}
	return b.Len() / 2
}

// Pair returns both reads of pair i through the cache.
func (b *Buffer) Pair(i int) (left, right seq.Sequence, err error) {
	return GetPair(b, i)
}

// Tag passes through to a linked datastore.
func (b *Buffer) Tag(i int) (uint32, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	t, ok := b.src.(interface{ Tag(int) (uint32, error) })
	if !ok {
		return 0, fmt.Errorf("%w: %s datastore has no tags", ErrKind, b.Kind())
	}
	return t.Tag(i)
}

// Stats returns hit and miss counters.
func (b *Buffer) Stats() BufferStats {
	return BufferStats{
		Hits:   b.hits.Load(),
		Misses: b.misses.Load(),
		Blocks: b.cache.Len(),
	}
}

// Close drops the cache. The underlying datastore stays open.
func (b *Buffer) Close() error {
	b.closed.Store(true)
	b.cache.Purge()
	return nil
}
