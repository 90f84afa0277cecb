package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zstd"
)

// RecordIndex maps a logical read number to its byte span in the file.
type RecordIndex struct {
	offsets []uint64
	lengths []uint32
}

// Append adds the span of the next read.
func (x *RecordIndex) Append(offset uint64, length uint32) {
	x.offsets = append(x.offsets, offset)
	x.lengths = append(x.lengths, length)
}

// Len returns the number of indexed reads.
func (x *RecordIndex) Len() int {
	return len(x.offsets)
}

// Span returns the file offset and byte length of read i.
func (x *RecordIndex) Span(i int) (offset uint64, length uint32, err error) {
	if i < 0 || i >= len(x.offsets) {
		return 0, 0, indexError("read", i, len(x.offsets))
	}
	return x.offsets[i], x.lengths[i], nil
}

// TotalBytes returns the sum of all record lengths.
func (x *RecordIndex) TotalBytes() uint64 {
	var total uint64
	for _, l := range x.lengths {
		total += uint64(l)
	}
	return total
}

// Validate checks that records are non-empty, strictly increasing and packed
// back to back from HeaderSize, covering exactly recordBytes.
func (x *RecordIndex) Validate(recordBytes uint64) error {
	next := uint64(HeaderSize)
	for i, off := range x.offsets {
		if x.lengths[i] == 0 {
			return fmt.Errorf("%w: read %d has zero length", ErrFormat, i)
		}
		if off != next {
			return fmt.Errorf("%w: read %d at offset %d, expected %d", ErrFormat, i, off, next)
		}
		next = off + uint64(x.lengths[i])
	}
	if next-HeaderSize != recordBytes {
		return fmt.Errorf("%w: index covers %d bytes, header says %d", ErrFormat, next-HeaderSize, recordBytes)
	}
	return nil
}

// encodeIndex builds the striped index body: offsets, lengths, then tags.
func encodeIndex(x *RecordIndex, tags []uint32) []byte {
	n := x.Len()
	buf := make([]byte, n*12+len(tags)*4)

	lengthsOff := n * 8
	tagsOff := lengthsOff + n*4
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], x.offsets[i])
		binary.LittleEndian.PutUint32(buf[lengthsOff+i*4:], x.lengths[i])
	}
	for i, tag := range tags {
		binary.LittleEndian.PutUint32(buf[tagsOff+i*4:], tag)
	}
	return buf
}

// decodeIndex parses a striped index body holding n reads and nTags tags.
func decodeIndex(data []byte, n, nTags int) (*RecordIndex, []uint32, error) {
	expected := n*12 + nTags*4
	if len(data) != expected {
		return nil, nil, fmt.Errorf("%w: index size mismatch: got %d, want %d", ErrFormat, len(data), expected)
	}

	x := &RecordIndex{
		offsets: make([]uint64, n),
		lengths: make([]uint32, n),
	}
	lengthsOff := n * 8
	tagsOff := lengthsOff + n*4
	for i := 0; i < n; i++ {
		x.offsets[i] = binary.LittleEndian.Uint64(data[i*8:])
		x.lengths[i] = binary.LittleEndian.Uint32(data[lengthsOff+i*4:])
	}

	var tags []uint32
	if nTags > 0 {
		tags = make([]uint32, nTags)
		for i := range tags {
			tags[i] = binary.LittleEndian.Uint32(data[tagsOff+i*4:])
		}
	}
	return x, tags, nil
}

// compressIndex returns the zstd-compressed index body and the CRC32 of the
// uncompressed bytes.
func compressIndex(x *RecordIndex, tags []uint32) ([]byte, uint32, error) {
	body := encodeIndex(x, tags)
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, 0, fmt.Errorf("create encoder: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(body, nil), crc32.ChecksumIEEE(body), nil
}

// decompressIndex reverses compressIndex and verifies the checksum.
func decompressIndex(compressed []byte, checksum uint32, n, nTags int) (*RecordIndex, []uint32, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, nil, fmt.Errorf("create decoder: %w", err)
	}
	defer decoder.Close()

	body, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decompress index: %v", ErrFormat, err)
	}
	if crc32.ChecksumIEEE(body) != checksum {
		return nil, nil, fmt.Errorf("%w: index checksum mismatch", ErrFormat)
	}
	return decodeIndex(body, n, nTags)
}
