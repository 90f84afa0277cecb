package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/readstore/internal/seq"
)

// Chunk file format (zstd stream), one entry per pair in sorted order:
//   tag (4, little endian) | uvarint len | left record | uvarint len | right record
// Records are in the container's encoded form so the merge copies them
// without re-encoding.

// chunkEntry is one pair on its way through the tag sort. In a batch left
// and right hold symbols; read back from a chunk they hold encoded records.
type chunkEntry struct {
	tag   uint32
	left  []byte
	right []byte
}

// chunkArena is the scoped temporary directory of one linked build.
type chunkArena struct {
	dir string
}

func newChunkArena(parent string) (*chunkArena, error) {
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, ioError("create temp dir", err)
	}
	dir, err := os.MkdirTemp(parent, "readstore_chunks_")
	if err != nil {
		return nil, ioError("create chunk arena", err)
	}
	return &chunkArena{dir: dir}, nil
}

func (a *chunkArena) path(i int) string {
	return filepath.Join(a.dir, fmt.Sprintf("chunk_%06d.zst", i))
}

// Remove deletes the arena and every chunk in it.
func (a *chunkArena) Remove() error {
	return os.RemoveAll(a.dir)
}

// writeChunks is phase 1 of the tag sort. Batches are read in input order on
// the calling goroutine; each is numbered before it is handed to a worker,
// so chunk contents do not depend on which worker finishes first.
func (b *LinkedBuilder) writeChunks(ctx context.Context, arena *chunkArena, left, right RecordReader) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)

	chunks := 0
	n := 0
	var readErr error
	for readErr == nil {
		batch := make([]chunkEntry, 0, min(b.opts.ChunkSize, 1<<16))
		for len(batch) < b.opts.ChunkSize {
			if err := checkCancel(gctx, n); err != nil {
				readErr = err
				break
			}
			e, ok, err := b.nextPair(left, right, n)
			if err != nil {
				readErr = err
				break
			}
			if !ok {
				readErr = io.EOF
				break
			}
			batch = append(batch, e)
			n++
		}
		if len(batch) == 0 || (readErr != nil && readErr != io.EOF) {
			break
		}
		idx := chunks
		chunks++
		g.Go(func() error {
			return writeChunk(arena.path(idx), b.opts.Alphabet, batch)
		})
	}

	werr := g.Wait()
	if readErr != nil && readErr != io.EOF {
		// A failing worker cancels gctx; report its error rather than the cancellation.
		if werr != nil && errors.Is(readErr, context.Canceled) && ctx.Err() == nil {
			return 0, werr
		}
		return 0, readErr
	}
	if werr != nil {
		return 0, werr
	}
	return chunks, nil
}

// writeChunk sorts batch stably by tag and writes it to path.
func writeChunk(path string, a seq.Alphabet, batch []chunkEntry) error {
	slices.SortStableFunc(batch, func(x, y chunkEntry) int {
		switch {
		case x.tag < y.tag:
			return -1
		case x.tag > y.tag:
			return 1
		}
		return 0
	})

	f, err := os.Create(path)
	if err != nil {
		return ioError("create chunk", err)
	}
	defer f.Close()
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 256<<10)

	var buf, rec []byte
	for _, e := range batch {
		buf = binary.LittleEndian.AppendUint32(buf[:0], e.tag)
		rec = encodeRecord(rec[:0], a, e.left)
		buf = binary.AppendUvarint(buf, uint64(len(rec)))
		buf = append(buf, rec...)
		rec = encodeRecord(rec[:0], a, e.right)
		buf = binary.AppendUvarint(buf, uint64(len(rec)))
		buf = append(buf, rec...)
		if _, err := bw.Write(buf); err != nil {
			enc.Close()
			return ioError("write chunk", err)
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return ioError("write chunk", err)
	}
	if err := enc.Close(); err != nil {
		return ioError("close chunk", err)
	}
	if err := f.Close(); err != nil {
		return ioError("close chunk", err)
	}
	return nil
}

// chunkReader streams the entries of one chunk file.
type chunkReader struct {
	f   *os.File
	dec *zstd.Decoder
	r   *bufio.Reader
}

func openChunk(path string) (*chunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("open chunk", err)
	}
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &chunkReader{f: f, dec: dec, r: bufio.NewReaderSize(dec, 256<<10)}, nil
}

// Next returns the next entry, or io.EOF after the last one.
func (c *chunkReader) Next() (chunkEntry, error) {
	var tagBuf [4]byte
	if _, err := io.ReadFull(c.r, tagBuf[:]); err != nil {
		if err == io.EOF {
			return chunkEntry{}, io.EOF
		}
		return chunkEntry{}, fmt.Errorf("%w: truncated chunk: %v", ErrFormat, err)
	}
	left, err := c.record()
	if err != nil {
		return chunkEntry{}, err
	}
	right, err := c.record()
	if err != nil {
		return chunkEntry{}, err
	}
	return chunkEntry{tag: binary.LittleEndian.Uint32(tagBuf[:]), left: left, right: right}, nil
}

func (c *chunkReader) record() ([]byte, error) {
	n, err := binary.ReadUvarint(c.r)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated chunk: %v", ErrFormat, err)
	}
	rec := make([]byte, n)
	if _, err := io.ReadFull(c.r, rec); err != nil {
		return nil, fmt.Errorf("%w: truncated chunk: %v", ErrFormat, err)
	}
	return rec, nil
}

func (c *chunkReader) Close() error {
	c.dec.Close()
	return c.f.Close()
}

// readChunk loads a whole chunk file.
func readChunk(path string) ([]chunkEntry, error) {
	c, err := openChunk(path)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	var out []chunkEntry
	for {
		e, err := c.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}
