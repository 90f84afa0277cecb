package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/freeeve/readstore/internal/seq"
)

// Writer appends reads to a new datastore file. Records go to path+".tmp";
// Finalize writes the index and header and renames the file into place.
// A Writer is not safe for concurrent use.
type Writer struct {
	path    string
	tmpPath string
	f       *os.File
	bw      *bufio.Writer
	header  Header
	index   RecordIndex
	tags    []uint32
	offset  uint64
	scratch []byte
	done    bool
}

// Create starts a datastore at path. The header supplies the kind, the
// encoding descriptor, the name and the kind-specific fields; counts and
// region offsets are filled in by Finalize.
func Create(path string, h Header) (*Writer, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	h.BitsPerSymbol = uint8(h.Alphabet.BitsPerSymbol())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ioError("create "+path, err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, ioError("create "+path, err)
	}

	w := &Writer{
		path:    path,
		tmpPath: tmpPath,
		f:       f,
		bw:      bufio.NewWriterSize(f, 1<<20),
		header:  h,
		offset:  HeaderSize,
	}
	// Placeholder header without magic until Finalize.
	if _, err := w.bw.Write(make([]byte, HeaderSize)); err != nil {
		w.Abort()
		return nil, ioError("write header placeholder", err)
	}
	return w, nil
}

// Count returns the number of reads appended so far.
func (w *Writer) Count() int {
	return w.index.Len()
}

// Alphabet returns the encoding of the datastore being written.
func (w *Writer) Alphabet() seq.Alphabet {
	return w.header.Alphabet
}

// Append encodes s and appends it, returning its 0-based read id.
func (w *Writer) Append(s seq.Sequence) (int, error) {
	w.scratch = encodeRecord(w.scratch[:0], w.header.Alphabet, s)
	return w.AppendRecord(w.scratch)
}

// AppendRecord appends an already encoded record (see encodeRecord).
func (w *Writer) AppendRecord(rec []byte) (int, error) {
	if w.done {
		return 0, ErrClosed
	}
	symbols, n := binary.Uvarint(rec)
	if n <= 0 || uint64(len(rec)-n) != uint64(w.header.Alphabet.PackedSize(int(symbols))) {
		return 0, fmt.Errorf("%w: malformed encoded record", ErrConfig)
	}
	if uint64(len(rec)) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: record of %d bytes exceeds the 4GiB limit", ErrConfig, len(rec))
	}
	if _, err := w.bw.Write(rec); err != nil {
		return 0, ioError("append record", err)
	}

	id := w.index.Len()
	w.index.Append(w.offset, uint32(len(rec)))
	w.offset += uint64(len(rec))
	if symbols > w.header.MaxReadLen {
		w.header.MaxReadLen = symbols
	}
	return id, nil
}

// AppendTag records the tag of the next pair. Only valid for linked datastores.
func (w *Writer) AppendTag(tag uint32) error {
	if w.done {
		return ErrClosed
	}
	if w.header.Kind != KindLinked {
		return fmt.Errorf("%w: tags on a %s datastore", ErrKind, w.header.Kind)
	}
	w.tags = append(w.tags, tag)
	return nil
}

// Finalize writes the index and the header, syncs and closes the file and
// moves it to its final path. The writer is unusable afterwards. On error
// the partial file is removed.
func (w *Writer) Finalize() error {
	if w.done {
		return ErrClosed
	}
	n := uint64(w.index.Len())
	if w.header.Kind.hasPairs() && n%2 != 0 {
		w.Abort()
		return fmt.Errorf("%w: %s datastore has odd read count %d", ErrConfig, w.header.Kind, n)
	}
	if w.header.Kind == KindLinked && uint64(len(w.tags)) != n/2 {
		w.Abort()
		return fmt.Errorf("%w: %d tags for %d pairs", ErrConfig, len(w.tags), n/2)
	}

	index, checksum, err := compressIndex(&w.index, w.tags)
	if err != nil {
		w.Abort()
		return err
	}
	if _, err := w.bw.Write(index); err != nil {
		w.Abort()
		return ioError("write index", err)
	}
	if err := w.bw.Flush(); err != nil {
		w.Abort()
		return ioError("flush", err)
	}

	h := w.header
	copy(h.Magic[:], Magic)
	h.Version = FormatVersion
	h.ReadCount = n
	h.RecordBytes = w.offset - HeaderSize
	h.IndexOffset = w.offset
	h.IndexSize = uint64(len(index))
	h.IndexChecksum = checksum

	// Header last, so the magic only lands once everything else is on disk.
	if err := w.f.Sync(); err != nil {
		w.Abort()
		return ioError("sync", err)
	}
	if _, err := w.f.WriteAt(encodeHeader(&h), 0); err != nil {
		w.Abort()
		return ioError("write header", err)
	}
	if err := w.f.Sync(); err != nil {
		w.Abort()
		return ioError("sync", err)
	}
	if err := w.f.Close(); err != nil {
		w.f = nil
		w.Abort()
		return ioError("close", err)
	}
	w.f = nil
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		w.Abort()
		return ioError("rename", err)
	}
	w.done = true
	w.header = h
	return nil
}

// Abort discards the partial file. It is safe to call more than once and
// after a failed Finalize; after a successful Finalize it does nothing.
func (w *Writer) Abort() error {
	if w.done && w.f == nil {
		return nil
	}
	w.done = true
	var err error
	if w.f != nil {
		err = w.f.Close()
		w.f = nil
	}
	if rmErr := os.Remove(w.tmpPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// encodeRecord appends the on-disk form of s: uvarint symbol count followed
// by the packed symbols.
func encodeRecord(dst []byte, a seq.Alphabet, s []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return a.Encode(dst, s)
}

// decodeRecord appends the symbols of rec to dst.
func decodeRecord(dst seq.Sequence, a seq.Alphabet, rec []byte) (seq.Sequence, error) {
	symbols, n := binary.Uvarint(rec)
	if n <= 0 || uint64(len(rec)-n) != uint64(a.PackedSize(int(symbols))) {
		return dst, fmt.Errorf("%w: corrupt record", ErrFormat)
	}
	return a.Decode(dst, rec[n:], int(symbols)), nil
}
