// Package seq packs nucleotide sequences into fixed-width bit encodings.
//
// Two alphabets are supported:
//   - DNA2: 2 bits per symbol, A C G T. Any other symbol is stored as A.
//   - DNA4: 4 bits per symbol, IUPAC nucleotide codes plus '-' (gap).
//     Unknown symbols are stored as N.
//
// Symbols are packed LSB-first: symbol i of a DNA2 sequence lives in byte
// i/4 at bit (i%4)*2, and of a DNA4 sequence in byte i/2 at bit (i%2)*4.
package seq

import (
	"fmt"
	"strings"
)

// Alphabet identifies a symbol encoding. The zero value is invalid.
type Alphabet uint8

const (
	DNA2 Alphabet = 1
	DNA4 Alphabet = 2
)

// Sequence is an upper-case ASCII nucleotide sequence.
type Sequence []byte

func (s Sequence) String() string { return string(s) }

// Len returns the number of symbols.
func (s Sequence) Len() int { return len(s) }

// Valid reports whether a is a known alphabet.
func (a Alphabet) Valid() bool {
	return a == DNA2 || a == DNA4
}

// BitsPerSymbol returns the encoded width of one symbol, or 0 for an
// unknown alphabet.
func (a Alphabet) BitsPerSymbol() int {
	switch a {
	case DNA2:
		return 2
	case DNA4:
		return 4
	default:
		return 0
	}
}

func (a Alphabet) String() string {
	switch a {
	case DNA2:
		return "dna2"
	case DNA4:
		return "dna4"
	default:
		return fmt.Sprintf("alphabet(%d)", uint8(a))
	}
}

// ParseAlphabet parses "dna2" or "dna4" (case-insensitive).
func ParseAlphabet(s string) (Alphabet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dna2", "2":
		return DNA2, nil
	case "dna4", "4":
		return DNA4, nil
	default:
		return 0, fmt.Errorf("unknown alphabet %q", s)
	}
}

// PackedSize returns the number of bytes needed to hold n symbols.
func (a Alphabet) PackedSize(n int) int {
	bits := a.BitsPerSymbol()
	if bits == 0 {
		return 0
	}
	return (n*bits + 7) / 8
}

// 4-bit codes follow the usual bit-set convention: A=1 C=2 G=4 T=8 and each
// ambiguity code is the union of the bases it stands for.
var (
	dna2Enc [256]byte
	dna4Enc [256]byte
	dna2Dec = [4]byte{'A', 'C', 'G', 'T'}
	dna4Dec = [16]byte{'-', 'A', 'C', 'M', 'G', 'R', 'S', 'V', 'T', 'W', 'Y', 'H', 'K', 'D', 'B', 'N'}
)

func init() {
	for i := range dna4Enc {
		dna4Enc[i] = 0x0F // N
	}
	for code, sym := range dna4Dec {
		dna4Enc[sym] = byte(code)
		dna4Enc[sym|0x20] = byte(code) // lower case; '-' maps onto itself
	}
	dna4Enc['U'] = 0x08
	dna4Enc['u'] = 0x08

	for code, sym := range dna2Dec {
		dna2Enc[sym] = byte(code)
		dna2Enc[sym|0x20] = byte(code)
	}
	dna2Enc['U'] = 3
	dna2Enc['u'] = 3
}

// Encode appends the packed form of s to dst.
func (a Alphabet) Encode(dst []byte, s []byte) []byte {
	start := len(dst)
	dst = grow(dst, a.PackedSize(len(s)))
	out := dst[start:]
	for i := range out {
		out[i] = 0
	}
	switch a {
	case DNA2:
		for i, c := range s {
			out[i>>2] |= dna2Enc[c] << ((i & 3) << 1)
		}
	case DNA4:
		for i, c := range s {
			out[i>>1] |= dna4Enc[c] << ((i & 1) << 2)
		}
	}
	return dst
}

// Decode appends n symbols unpacked from packed to dst. packed must hold at
// least PackedSize(n) bytes.
func (a Alphabet) Decode(dst Sequence, packed []byte, n int) Sequence {
	start := len(dst)
	dst = grow(dst, n)
	out := dst[start:]
	switch a {
	case DNA2:
		for i := range out {
			out[i] = dna2Dec[(packed[i>>2]>>((i&3)<<1))&0x03]
		}
	case DNA4:
		for i := range out {
			out[i] = dna4Dec[(packed[i>>1]>>((i&1)<<2))&0x0F]
		}
	}
	return dst
}

// Canonical returns s as it reads back after a round trip through a.
func (a Alphabet) Canonical(s []byte) Sequence {
	return a.Decode(nil, a.Encode(nil, s), len(s))
}

// grow extends b by n bytes, reallocating only when capacity is short.
func grow[S ~[]byte](b S, n int) S {
	if cap(b)-len(b) >= n {
		return b[:len(b)+n]
	}
	nb := make(S, len(b)+n, 2*len(b)+n)
	copy(nb, b)
	return nb
}
