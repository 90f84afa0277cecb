package store

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"
	"sync/atomic"

	"github.com/freeeve/readstore/internal/seq"
)

// Container is an opened, read-only datastore file. The full index is held
// in memory; record bytes are read on demand with positional reads, so a
// Container may be used from many goroutines at once.
type Container struct {
	path   string
	f      *os.File
	header Header
	name   string
	index  *RecordIndex
	tags   []uint32
	closed atomic.Bool
}

// OpenContainer opens the datastore at path. A non-empty name overrides the
// name stored in the file.
func OpenContainer(path, name string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("open "+path, err)
	}
	c, err := readContainer(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.name = c.header.Name
	if name != "" {
		c.name = name
	}
	return c, nil
}

func readContainer(f *os.File, path string) (*Container, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%s: %w: file too small", path, ErrFormat)
		}
		return nil, ioError("read header "+path, err)
	}
	h, err := decodeHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, ioError("stat "+path, err)
	}
	size := uint64(info.Size())
	if h.IndexOffset > size || h.IndexSize > size-h.IndexOffset {
		return nil, fmt.Errorf("%s: %w: index region [%d, +%d) beyond file size %d",
			path, ErrFormat, h.IndexOffset, h.IndexSize, size)
	}
	if h.ReadCount > h.RecordBytes {
		return nil, fmt.Errorf("%s: %w: %d reads in %d record bytes", path, ErrFormat, h.ReadCount, h.RecordBytes)
	}

	compressed := make([]byte, h.IndexSize)
	if _, err := f.ReadAt(compressed, int64(h.IndexOffset)); err != nil {
		return nil, ioError("read index "+path, err)
	}
	nTags := 0
	if h.Kind == KindLinked {
		nTags = int(h.ReadCount / 2)
	}
	index, tags, err := decompressIndex(compressed, h.IndexChecksum, int(h.ReadCount), nTags)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := index.Validate(h.RecordBytes); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Container{
		path:   path,
		f:      f,
		header: *h,
		index:  index,
		tags:   tags,
	}, nil
}

// Path returns the file the container was opened from.
func (c *Container) Path() string { return c.path }

// Header returns a copy of the file header.
func (c *Container) Header() Header { return c.header }

// Name returns the datastore name, honouring any override given at open.
func (c *Container) Name() string { return c.name }

// DefaultName returns the name stored in the file.
func (c *Container) DefaultName() string { return c.header.Name }

// Kind returns the datastore variant.
func (c *Container) Kind() Kind { return c.header.Kind }

// Alphabet returns the encoding of the stored reads.
func (c *Container) Alphabet() seq.Alphabet { return c.header.Alphabet }

// Len returns the number of stored reads.
func (c *Container) Len() int { return c.index.Len() }

// MaxReadLen returns the length of the longest stored read.
func (c *Container) MaxReadLen() int { return int(c.header.MaxReadLen) }

// RecordBytes returns the size of the record region.
func (c *Container) RecordBytes() uint64 { return c.header.RecordBytes }

// Span returns the file offset and encoded byte length of read i.
func (c *Container) Span(i int) (offset uint64, length uint32, err error) {
	return c.index.Span(i)
}

// ReadAt reads from the underlying file at an absolute offset.
func (c *Container) ReadAt(p []byte, off int64) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	return c.f.ReadAt(p, off)
}

// ReadRecord returns the encoded bytes of read i, reusing buf when it is
// large enough.
func (c *Container) ReadRecord(i int, buf []byte) ([]byte, error) {
	off, n, err := c.index.Span(i)
	if err != nil {
		return nil, err
	}
	if cap(buf) < int(n) {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := c.ReadAt(buf, int64(off)); err != nil {
		if err == ErrClosed {
			return nil, err
		}
		return nil, ioError(fmt.Sprintf("read record %d", i), err)
	}
	return buf, nil
}

// Get returns a newly allocated copy of read i.
func (c *Container) Get(i int) (seq.Sequence, error) {
	rec, err := c.ReadRecord(i, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(nil, c.header.Alphabet, rec)
}

var recordPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

// LoadInto decodes read i into dst, growing it if needed, and returns the
// read length.
func (c *Container) LoadInto(i int, dst *seq.Sequence) (int, error) {
	bp := recordPool.Get().(*[]byte)
	defer recordPool.Put(bp)
	rec, err := c.ReadRecord(i, *bp)
	if err != nil {
		return 0, err
	}
	*bp = rec[:0]
	out, err := decodeRecord((*dst)[:0], c.header.Alphabet, rec)
	if err != nil {
		return 0, err
	}
	*dst = out
	return len(out), nil
}

// Iter starts a sequential pass over all reads.
func (c *Container) Iter() *Iterator {
	section := io.NewSectionReader(c, HeaderSize, int64(c.header.RecordBytes))
	return &Iterator{
		c: c,
		r: bufio.NewReaderSize(section, 1<<20),
	}
}

// Reads yields every read in order. Iteration stops after the first error,
// which is yielded with a nil sequence.
func (c *Container) Reads() iter.Seq2[seq.Sequence, error] {
	return func(yield func(seq.Sequence, error) bool) {
		it := c.Iter()
		for it.Next() {
			if !yield(it.Sequence(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Close releases the file. Further reads fail with ErrClosed.
func (c *Container) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.f.Close()
}

// Iterator reads records front to back through one buffered stream. It does
// not share a file cursor with the Container or other iterators.
type Iterator struct {
	c   *Container
	r   *bufio.Reader
	pos int
	buf []byte
	cur seq.Sequence
	err error
}

// Next advances to the next read. It returns false at the end or on error.
func (it *Iterator) Next() bool {
	if it.err != nil || it.pos >= it.c.Len() {
		return false
	}
	_, n, _ := it.c.index.Span(it.pos)
	if cap(it.buf) < int(n) {
		it.buf = make([]byte, n)
	}
	it.buf = it.buf[:n]
	if _, err := io.ReadFull(it.r, it.buf); err != nil {
		if err == ErrClosed {
			it.err = err
		} else {
			it.err = ioError(fmt.Sprintf("read record %d", it.pos), err)
		}
		return false
	}
	s, err := decodeRecord(nil, it.c.header.Alphabet, it.buf)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = s
	it.pos++
	return true
}

// Sequence returns the read loaded by the last successful Next.
func (it *Iterator) Sequence() seq.Sequence { return it.cur }

// Index returns the read number of the current sequence.
func (it *Iterator) Index() int { return it.pos - 1 }

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error { return it.err }
