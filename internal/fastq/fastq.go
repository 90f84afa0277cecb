// Package fastq reads FASTQ records sequentially.
package fastq

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrMalformed is returned for input that is not valid FASTQ.
var ErrMalformed = errors.New("malformed fastq")

// Record is one FASTQ entry. The slices are owned by the record.
type Record struct {
	ID   []byte
	Seq  []byte
	Qual []byte
}

// RecordReader yields records until io.EOF.
type RecordReader interface {
	Read() (*Record, error)
}

// Reader parses four-line FASTQ records from an io.Reader.
type Reader struct {
	r    *bufio.Reader
	line int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 1<<20)}
}

// Read returns the next record, or io.EOF at the end of input.
func (r *Reader) Read() (*Record, error) {
	header, err := r.nextLine()
	for err == nil && len(header) == 0 {
		header, err = r.nextLine()
	}
	if err != nil {
		return nil, err
	}
	if header[0] != '@' {
		return nil, fmt.Errorf("%w: line %d: expected '@', got %q", ErrMalformed, r.line, header[0])
	}
	id := header[1:]
	if i := bytes.IndexAny(id, " \t"); i >= 0 {
		id = id[:i]
	}
	id = bytes.Clone(id)

	line, err := r.requireLine()
	if err != nil {
		return nil, err
	}
	sequence := bytes.Clone(line)
	plus, err := r.requireLine()
	if err != nil {
		return nil, err
	}
	if len(plus) == 0 || plus[0] != '+' {
		return nil, fmt.Errorf("%w: line %d: expected '+'", ErrMalformed, r.line)
	}
	qual, err := r.requireLine()
	if err != nil {
		return nil, err
	}
	if len(qual) != len(sequence) {
		return nil, fmt.Errorf("%w: line %d: quality length %d != sequence length %d",
			ErrMalformed, r.line, len(qual), len(sequence))
	}

	return &Record{
		ID:   id,
		Seq:  sequence,
		Qual: bytes.Clone(qual),
	}, nil
}

func (r *Reader) requireLine() ([]byte, error) {
	line, err := r.nextLine()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: line %d: truncated record", ErrMalformed, r.line)
	}
	return line, err
}

// nextLine returns the next line without its terminator. The slice is only
// valid until the following call.
func (r *Reader) nextLine() ([]byte, error) {
	line, err := r.r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		long := append([]byte(nil), line...)
		for err == bufio.ErrBufferFull {
			line, err = r.r.ReadSlice('\n')
			long = append(long, line...)
		}
		line = long
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	if err == io.EOF && len(line) == 0 {
		return nil, io.EOF
	}
	r.line++
	line = bytes.TrimRight(line, "\r\n")
	return line, nil
}

// File is a Reader over a file on disk, transparently decompressing .gz and
// .zst inputs.
type File struct {
	*Reader
	f     *os.File
	close func()
}

// Open opens path for reading. The compression is chosen by extension.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		src     io.Reader = f
		cleanup           = func() {}
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		src, cleanup = zr, func() { zr.Close() }
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd %s: %w", path, err)
		}
		src, cleanup = zr, zr.Close
	}

	return &File{Reader: NewReader(src), f: f, close: cleanup}, nil
}

// Close releases the decompressor and the file.
func (f *File) Close() error {
	f.close()
	return f.f.Close()
}

// SliceReader serves records from memory.
type SliceReader struct {
	records []*Record
	pos     int
}

// NewSliceReader returns a RecordReader over records.
func NewSliceReader(records ...*Record) *SliceReader {
	return &SliceReader{records: records}
}

func (s *SliceReader) Read() (*Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}
