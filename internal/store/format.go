package store

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/freeeve/readstore/internal/seq"
)

// Datastore file layout
//
//   Header (256 bytes, little endian):
//     - Magic (4): "RDSQ"
//     - Version (2): 1
//     - Kind (1): 1 paired, 2 long, 3 linked
//     - Alphabet (1), BitsPerSymbol (1): encoding descriptor
//     - Orientation (1): paired/linked library geometry
//     - LinkedFormat (1): tag convention of linked reads
//     - NameLen (1)
//     - IndexChecksum (4): CRC32 of the uncompressed index
//     - ReadCount (8)
//     - MinSize (8), MaxSize (8), FragSize (8)
//     - MaxReadLen (8): longest stored read in symbols
//     - RecordBytes (8): size of the record region
//     - IndexOffset (8), IndexSize (8): compressed index region
//     - Reserved (48)
//     - Name (128)
//   Records: uvarint(symbol count) + packed symbols, one per read, append order
//   Index (zstd): offsets (8n) | lengths (4n) | tags (4 * n/2, linked only)
//
// The magic is written last, after the index, so a file from an interrupted
// build never opens.

const (
	Magic         = "RDSQ"
	FormatVersion = 1
	HeaderSize    = 256
	MaxNameLen    = 128
)

// Kind is the datastore variant stored in a file.
type Kind uint8

const (
	KindPaired Kind = 1
	KindLong   Kind = 2
	KindLinked Kind = 3
)

func (k Kind) Valid() bool {
	return k >= KindPaired && k <= KindLinked
}

func (k Kind) String() string {
	switch k {
	case KindPaired:
		return "paired"
	case KindLong:
		return "long"
	case KindLinked:
		return "linked"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Extension returns the customary file suffix for k.
func (k Kind) Extension() string {
	switch k {
	case KindPaired:
		return ".prseq"
	case KindLong:
		return ".loseq"
	case KindLinked:
		return ".lrseq"
	default:
		return ".rdsq"
	}
}

// hasPairs reports whether reads are stored as adjacent pairs.
func (k Kind) hasPairs() bool {
	return k == KindPaired || k == KindLinked
}

// Orientation describes the geometry of a paired library.
type Orientation uint8

const (
	// FwRv is a paired-end library.
	FwRv Orientation = 0
	// RvFw is a long mate-pair library.
	RvFw Orientation = 1
)

func (o Orientation) String() string {
	switch o {
	case FwRv:
		return "FwRv"
	case RvFw:
		return "RvFw"
	default:
		return fmt.Sprintf("orientation(%d)", uint8(o))
	}
}

// ParseOrientation parses "fwrv" or "rvfw" (case-insensitive).
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(s) {
	case "fwrv", "fr", "":
		return FwRv, nil
	case "rvfw", "rf":
		return RvFw, nil
	}
	return 0, fmt.Errorf("%w: unknown orientation %q", ErrConfig, s)
}

// LinkedFormat is the convention used to carry tags in linked-read FASTQ.
type LinkedFormat uint8

const (
	// Raw10x carries the 16bp barcode plus a 7bp spacer at the start of read 1.
	Raw10x LinkedFormat = 1
	// UCDavis10x carries the barcode as the first 16 characters of the read identifier.
	UCDavis10x LinkedFormat = 2
)

func (f LinkedFormat) String() string {
	switch f {
	case Raw10x:
		return "raw10x"
	case UCDavis10x:
		return "ucdavis10x"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseLinkedFormat parses "raw10x" or "ucdavis10x" (case-insensitive).
func ParseLinkedFormat(s string) (LinkedFormat, error) {
	switch strings.ToLower(s) {
	case "raw10x", "10x":
		return Raw10x, nil
	case "ucdavis10x", "ucdavis":
		return UCDavis10x, nil
	}
	return 0, fmt.Errorf("%w: unknown linked read format %q", ErrConfig, s)
}

// Header is the fixed-size file header.
type Header struct {
	Magic         [4]byte
	Version       uint16
	Kind          Kind
	Alphabet      seq.Alphabet
	BitsPerSymbol uint8
	Orientation   Orientation
	LinkedFormat  LinkedFormat
	IndexChecksum uint32
	ReadCount     uint64
	MinSize       uint64
	MaxSize       uint64
	FragSize      uint64
	MaxReadLen    uint64
	RecordBytes   uint64
	IndexOffset   uint64
	IndexSize     uint64
	Name          string
}

// validate checks the construction-time fields of h.
func (h *Header) validate() error {
	if !h.Kind.Valid() {
		return fmt.Errorf("%w: unknown datastore kind %d", ErrConfig, h.Kind)
	}
	if !h.Alphabet.Valid() {
		return fmt.Errorf("%w: unsupported encoding %s", ErrConfig, h.Alphabet)
	}
	if len(h.Name) > MaxNameLen {
		return fmt.Errorf("%w: name is %d bytes, max %d", ErrConfig, len(h.Name), MaxNameLen)
	}
	if !utf8.ValidString(h.Name) {
		return fmt.Errorf("%w: name is not valid UTF-8", ErrConfig)
	}
	return nil
}

func encodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = byte(h.Kind)
	buf[7] = byte(h.Alphabet)
	buf[8] = h.BitsPerSymbol
	buf[9] = byte(h.Orientation)
	buf[10] = byte(h.LinkedFormat)
	buf[11] = byte(len(h.Name))
	binary.LittleEndian.PutUint32(buf[12:16], h.IndexChecksum)
	binary.LittleEndian.PutUint64(buf[16:24], h.ReadCount)
	binary.LittleEndian.PutUint64(buf[24:32], h.MinSize)
	binary.LittleEndian.PutUint64(buf[32:40], h.MaxSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.FragSize)
	binary.LittleEndian.PutUint64(buf[48:56], h.MaxReadLen)
	binary.LittleEndian.PutUint64(buf[56:64], h.RecordBytes)
	binary.LittleEndian.PutUint64(buf[64:72], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[72:80], h.IndexSize)
	copy(buf[128:128+MaxNameLen], h.Name)
	return buf
}

func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: header too short (%d bytes)", ErrFormat, len(buf))
	}
	h := &Header{}
	copy(h.Magic[:], buf[0:4])
	if string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("%w: invalid magic %q", ErrFormat, h.Magic)
	}
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	h.Kind = Kind(buf[6])
	h.Alphabet = seq.Alphabet(buf[7])
	h.BitsPerSymbol = buf[8]
	h.Orientation = Orientation(buf[9])
	h.LinkedFormat = LinkedFormat(buf[10])
	nameLen := int(buf[11])
	h.IndexChecksum = binary.LittleEndian.Uint32(buf[12:16])
	h.ReadCount = binary.LittleEndian.Uint64(buf[16:24])
	h.MinSize = binary.LittleEndian.Uint64(buf[24:32])
	h.MaxSize = binary.LittleEndian.Uint64(buf[32:40])
	h.FragSize = binary.LittleEndian.Uint64(buf[40:48])
	h.MaxReadLen = binary.LittleEndian.Uint64(buf[48:56])
	h.RecordBytes = binary.LittleEndian.Uint64(buf[56:64])
	h.IndexOffset = binary.LittleEndian.Uint64(buf[64:72])
	h.IndexSize = binary.LittleEndian.Uint64(buf[72:80])
	if nameLen > MaxNameLen {
		return nil, fmt.Errorf("%w: name length %d", ErrFormat, nameLen)
	}
	h.Name = string(buf[128 : 128+nameLen])

	if !h.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown datastore kind %d", ErrFormat, h.Kind)
	}
	if !h.Alphabet.Valid() || int(h.BitsPerSymbol) != h.Alphabet.BitsPerSymbol() {
		return nil, fmt.Errorf("%w: unsupported encoding %s/%d bits", ErrFormat, h.Alphabet, h.BitsPerSymbol)
	}
	if h.Kind.hasPairs() && h.ReadCount%2 != 0 {
		return nil, fmt.Errorf("%w: odd read count %d in %s datastore", ErrFormat, h.ReadCount, h.Kind)
	}
	if h.IndexOffset != HeaderSize+h.RecordBytes {
		return nil, fmt.Errorf("%w: index offset %d does not follow %d record bytes", ErrFormat, h.IndexOffset, h.RecordBytes)
	}
	return h, nil
}

// OutputPath appends the customary suffix for kind unless prefix already has it.
func OutputPath(prefix string, kind Kind) string {
	if filepath.Ext(prefix) == kind.Extension() {
		return prefix
	}
	return prefix + kind.Extension()
}
