package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/freeeve/readstore/internal/fastq"
	"github.com/freeeve/readstore/internal/seq"
)

// taggedPairs returns UCDavis10x-style inputs: pair i carries tags[i] in its
// identifier and a right read that names its input position.
func taggedPairs(tags ...uint32) (left, right *fastq.SliceReader) {
	var l, r []*fastq.Record
	for i, tag := range tags {
		l = append(l, &fastq.Record{ID: []byte(DecodeTag(tag) + "_x"), Seq: repeatSeq("ACGT", 10+i)})
		r = append(r, &fastq.Record{ID: []byte("r"), Seq: repeatSeq("TTGCA", 20+i)})
	}
	return fastq.NewSliceReader(l...), fastq.NewSliceReader(r...)
}

func TestEncodeTag(t *testing.T) {
	tests := []struct {
		barcode string
		want    uint32
		ok      bool
	}{
		{"AAAAAAAAAAAAAAAA", 0, true},
		{"AAAAAAAAAAAAAAAC", 1, true},
		{"AAAAAAAAAAAAAAAT", 3, true},
		{"AAAAAAAAAAAAAACA", 4, true},
		{"aaaaaaaaaaaaaacc", 5, true},
		{"TTTTTTTTTTTTTTTT", 0xFFFFFFFF, true},
		{"AAAAAAAAAAAAAAAN", 0, false},
		{"ACGT", 0, false},
		{"ACGTACGTACGTACGTGGGG", 0x1B1B1B1B, true},
	}
	for _, tt := range tests {
		got, ok := encodeTag([]byte(tt.barcode))
		if got != tt.want || ok != tt.ok {
			t.Errorf("encodeTag(%q): got (%#x, %v), want (%#x, %v)", tt.barcode, got, ok, tt.want, tt.ok)
		}
	}
	if got := DecodeTag(0x1B1B1B1B); got != "ACGTACGTACGTACGT" {
		t.Errorf("DecodeTag: got %s", got)
	}
}

func TestLinkedChunksAndMerge(t *testing.T) {
	tags := []uint32{3, 1, 4, 1, 5}
	b := NewLinkedBuilder(LinkedOptions{Format: UCDavis10x, MaxReadLen: 100, ChunkSize: 2})

	arena, err := newChunkArena(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	left, right := taggedPairs(tags...)
	n, err := b.writeChunks(context.Background(), arena, left, right)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("got %d chunks, want 3", n)
	}
	wantChunks := [][]uint32{{1, 3}, {1, 4}, {5}}
	for i, want := range wantChunks {
		entries, err := readChunk(arena.path(i))
		if err != nil {
			t.Fatal(err)
		}
		var got []uint32
		for _, e := range entries {
			got = append(got, e.tag)
		}
		if !slices.Equal(got, want) {
			t.Errorf("chunk %d: got tags %v, want %v", i, got, want)
		}
	}

	// Full build: merged tag order with input order breaking ties.
	left, right = taggedPairs(tags...)
	b.SetLogger(t.Logf)
	stats, err := b.Build(context.Background(), left, right, filepath.Join(t.TempDir(), "linked"))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pairs != 5 || stats.Chunks != 3 {
		t.Errorf("stats: %+v", stats)
	}
	ds, err := OpenLinked(stats.Path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	wantTags := []uint32{1, 1, 3, 4, 5}
	wantOrigin := []int{1, 3, 0, 2, 4}
	for i := range wantTags {
		tag, err := ds.Tag(i)
		if err != nil {
			t.Fatal(err)
		}
		if tag != wantTags[i] {
			t.Errorf("Tag(%d): got %d, want %d", i, tag, wantTags[i])
		}
		l, r, err := ds.Pair(i)
		if err != nil {
			t.Fatal(err)
		}
		if l.Len() != 10+wantOrigin[i] || r.Len() != 20+wantOrigin[i] {
			t.Errorf("pair %d: lengths (%d, %d), want input pair %d", i, l.Len(), r.Len(), wantOrigin[i])
		}
	}
	if _, err := ds.Tag(5); !errors.Is(err, ErrIndex) {
		t.Errorf("Tag(5): got %v, want ErrIndex", err)
	}
	if ds.Format() != UCDavis10x {
		t.Errorf("format: got %s", ds.Format())
	}
}

func TestLinkedTagsNonDecreasing(t *testing.T) {
	tags := make([]uint32, 500)
	for i := range tags {
		tags[i] = uint32((i * 7919) % 37)
	}
	left, right := taggedPairs(tags...)
	stats, err := NewLinkedBuilder(LinkedOptions{Format: UCDavis10x, MaxReadLen: 1000, ChunkSize: 64}).
		Build(context.Background(), left, right, filepath.Join(t.TempDir(), "sorted"))
	if err != nil {
		t.Fatal(err)
	}
	ds, err := OpenLinked(stats.Path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()
	if ds.PairCount() != len(tags) {
		t.Fatalf("got %d pairs", ds.PairCount())
	}
	prev := uint32(0)
	for i := 0; i < ds.PairCount(); i++ {
		tag, _ := ds.Tag(i)
		if tag < prev {
			t.Fatalf("tag %d at pair %d follows %d", tag, i, prev)
		}
		prev = tag
	}
}

func buildLinked(t *testing.T, opts LinkedOptions, tags []uint32) []byte {
	t.Helper()
	left, right := taggedPairs(tags...)
	stats, err := NewLinkedBuilder(opts).Build(context.Background(), left, right, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(stats.Path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestLinkedDeterministic(t *testing.T) {
	tags := make([]uint32, 300)
	for i := range tags {
		tags[i] = uint32((i*31 + 7) % 11)
	}
	opts := LinkedOptions{Name: "det", Format: UCDavis10x, MaxReadLen: 25, ChunkSize: 16}

	first := buildLinked(t, opts, tags)
	second := buildLinked(t, opts, tags)
	if !bytes.Equal(first, second) {
		t.Fatal("two builds of the same input differ")
	}

	for _, workers := range []int{2, 4, 8} {
		opts.Workers = workers
		if got := buildLinked(t, opts, tags); !bytes.Equal(got, first) {
			t.Errorf("%d workers: output differs from sequential build", workers)
		}
	}
}

func TestLinkedRaw10x(t *testing.T) {
	barcode := "ACGTACGTACGTACGT"
	spacer := "NNNNNNN"
	left := fastq.NewSliceReader(
		&fastq.Record{ID: []byte("a"), Seq: []byte(barcode + spacer + "GATTACAGATTACA")},
		&fastq.Record{ID: []byte("b"), Seq: []byte("ACGN")},
	)
	right := fastq.NewSliceReader(
		&fastq.Record{ID: []byte("a"), Seq: []byte("CCCCCCCCCCCC")},
		&fastq.Record{ID: []byte("b"), Seq: []byte("GG")},
	)
	b := NewLinkedBuilder(LinkedOptions{Format: Raw10x, MaxReadLen: 10, Alphabet: seq.DNA2})
	stats, err := b.Build(context.Background(), left, right, filepath.Join(t.TempDir(), "raw"))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Untagged != 1 || stats.Truncated != 2 {
		t.Errorf("stats: %+v", stats)
	}

	ds, err := OpenLinked(stats.Path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	// Untagged pair sorts first.
	want := []struct {
		tag         uint32
		left, right string
	}{
		{0, "", "GG"},
		{EncodeTag(barcode), "GATTACAGAT", "CCCCCCCCCC"},
	}
	for i, w := range want {
		tag, _ := ds.Tag(i)
		l, r, err := ds.Pair(i)
		if err != nil {
			t.Fatal(err)
		}
		if tag != w.tag || l.String() != w.left || r.String() != w.right {
			t.Errorf("pair %d: got (%#x, %s, %s), want (%#x, %s, %s)", i, tag, l, r, w.tag, w.left, w.right)
		}
	}
	if ds.MaxReadLen() != 10 {
		t.Errorf("MaxReadLen: got %d", ds.MaxReadLen())
	}
}

func TestLinkedArenaRemoved(t *testing.T) {
	tmp := t.TempDir()
	left, right := taggedPairs(1, 2, 3)
	_, err := NewLinkedBuilder(LinkedOptions{Format: UCDavis10x, MaxReadLen: 50, ChunkSize: 1, TempDir: tmp}).
		Build(context.Background(), left, right, filepath.Join(t.TempDir(), "ok"))
	if err != nil {
		t.Fatal(err)
	}
	assertEmptyDir(t, tmp)

	// Uneven inputs fail mid-build; neither chunks nor output survive.
	left, _ = taggedPairs(1, 2, 3)
	_, right = taggedPairs(1, 2)
	out := filepath.Join(t.TempDir(), "bad")
	_, err = NewLinkedBuilder(LinkedOptions{Format: UCDavis10x, MaxReadLen: 50, ChunkSize: 1, TempDir: tmp}).
		Build(context.Background(), left, right, out)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("got %v, want ErrFormat", err)
	}
	assertEmptyDir(t, tmp)
	if _, err := os.Stat(out + KindLinked.Extension()); !os.IsNotExist(err) {
		t.Error("output exists after failed build")
	}
}

type failingReader struct {
	r   RecordReader
	err error
}

func (f *failingReader) Read() (*fastq.Record, error) {
	rec, err := f.r.Read()
	if err != nil {
		return nil, f.err
	}
	return rec, nil
}

func TestLinkedReadError(t *testing.T) {
	errDisk := errors.New("disk unplugged")
	tmp := t.TempDir()
	left, _ := taggedPairs(1, 2, 3)
	_, right := taggedPairs(1)
	out := filepath.Join(t.TempDir(), "failing")
	_, err := NewLinkedBuilder(LinkedOptions{Format: UCDavis10x, MaxReadLen: 50, ChunkSize: 1, TempDir: tmp}).
		Build(context.Background(), left, &failingReader{right, errDisk}, out)
	if !errors.Is(err, ErrIO) || !errors.Is(err, errDisk) {
		t.Fatalf("got %v, want ErrIO wrapping %v", err, errDisk)
	}
	if errors.Is(err, ErrFormat) {
		t.Errorf("read failure reported as ErrFormat: %v", err)
	}
	assertEmptyDir(t, tmp)
	for _, p := range []string{out + KindLinked.Extension(), out + KindLinked.Extension() + ".tmp"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s exists after failed build", p)
		}
	}
}

func TestLinkedAllABarcodeIsTagged(t *testing.T) {
	left, right := taggedPairs(0, 7)
	stats, err := NewLinkedBuilder(LinkedOptions{Format: UCDavis10x, MaxReadLen: 50}).
		Build(context.Background(), left, right, filepath.Join(t.TempDir(), "alla"))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Untagged != 0 || stats.Pairs != 2 {
		t.Errorf("stats: %+v", stats)
	}
	ds, err := OpenLinked(stats.Path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()
	if tag, _ := ds.Tag(0); tag != 0 {
		t.Errorf("Tag(0): got %#x, want 0", tag)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%s not empty: %d entries", dir, len(entries))
	}
}

func TestLinkedOptionsValidation(t *testing.T) {
	tests := []LinkedOptions{
		{Format: 0, MaxReadLen: 10},
		{Format: Raw10x, MaxReadLen: 0},
		{Format: Raw10x, MaxReadLen: 10, ChunkSize: -1},
		{Format: Raw10x, MaxReadLen: 10, Workers: -2},
	}
	for i, opts := range tests {
		left, right := taggedPairs(1)
		_, err := NewLinkedBuilder(opts).Build(context.Background(), left, right, filepath.Join(t.TempDir(), fmt.Sprint(i)))
		if !errors.Is(err, ErrConfig) {
			t.Errorf("case %d: got %v, want ErrConfig", i, err)
		}
	}
}
