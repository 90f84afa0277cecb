package store

import (
	"strings"
	"testing"

	"github.com/freeeve/readstore/internal/seq"
)

// repeatSeq returns a read of n symbols cycling through pattern.
func repeatSeq(pattern string, n int) []byte {
	return []byte(strings.Repeat(pattern, n/len(pattern)+1)[:n])
}

// writeStore writes reads to a new container of the given kind and opens it.
func writeStore(t *testing.T, kind Kind, a seq.Alphabet, reads ...string) *Container {
	t.Helper()
	path := t.TempDir() + "/test" + kind.Extension()
	w, err := Create(path, Header{Kind: kind, Alphabet: a, Name: "test"})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range reads {
		if _, err := w.Append(seq.Sequence(r)); err != nil {
			t.Fatal(err)
		}
	}
	if kind == KindLinked {
		for i := 0; i < len(reads)/2; i++ {
			if err := w.AppendTag(uint32(i + 1)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	c, err := OpenContainer(path, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
