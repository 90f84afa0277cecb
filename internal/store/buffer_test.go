package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/freeeve/readstore/internal/fastq"
	"github.com/freeeve/readstore/internal/seq"
	"github.com/freeeve/readstore/internal/store"
)

func buildLongStore(t *testing.T, n int) store.ReadDatastore {
	t.Helper()
	lengths := make([]int, n)
	for i := range lengths {
		lengths[i] = 1 + (i*37)%300
	}
	stats, err := store.NewLongBuilder(store.LongOptions{Name: "buffered"}).
		Build(context.Background(), reads(lengths...), filepath.Join(t.TempDir(), "long"))
	if err != nil {
		t.Fatal(err)
	}
	ds, err := store.Open(stats.Path, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ds.Close() })
	return ds
}

func newBuffer(t *testing.T, ds store.ReadDatastore, opts store.BufferOptions) *store.Buffer {
	t.Helper()
	b, err := store.NewBuffer(ds.(store.BlockSource), opts)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBufferTransparent(t *testing.T) {
	ds := buildLongStore(t, 500)
	for _, opts := range []store.BufferOptions{
		{BlockSize: 64, Blocks: 2},
		{BlockSize: 100, Blocks: 8},
		{BlockSize: 4096, Blocks: 4},
		{},
	} {
		buf := newBuffer(t, ds, opts)
		var dst seq.Sequence
		// Forward then backward, so blocks are both reused and evicted.
		for pass := 0; pass < 2; pass++ {
			for k := 0; k < ds.Len(); k++ {
				i := k
				if pass == 1 {
					i = ds.Len() - 1 - k
				}
				want, err := ds.Get(i)
				if err != nil {
					t.Fatal(err)
				}
				got, err := buf.Get(i)
				if err != nil {
					t.Fatalf("%+v: Get(%d): %v", opts, i, err)
				}
				if got.String() != want.String() {
					t.Fatalf("%+v: read %d differs", opts, i)
				}
				if _, err := buf.LoadInto(i, &dst); err != nil {
					t.Fatal(err)
				}
				if dst.String() != want.String() {
					t.Fatalf("%+v: LoadInto(%d) differs", opts, i)
				}
			}
		}
		st := buf.Stats()
		if st.Hits == 0 || st.Misses == 0 {
			t.Errorf("%+v: stats %+v", opts, st)
		}
		if opts.Blocks > 0 && st.Blocks > opts.Blocks {
			t.Errorf("%+v: %d blocks cached, capacity %d", opts, st.Blocks, opts.Blocks)
		}
		buf.Close()
	}
}

func TestBufferHitsAfterWarmup(t *testing.T) {
	ds := buildLongStore(t, 50)
	buf := newBuffer(t, ds, store.BufferOptions{BlockSize: 1 << 16, Blocks: 4})
	for i := 0; i < ds.Len(); i++ {
		if _, err := buf.Get(i); err != nil {
			t.Fatal(err)
		}
	}
	warm := buf.Stats()
	for i := 0; i < ds.Len(); i++ {
		if _, err := buf.Get(i); err != nil {
			t.Fatal(err)
		}
	}
	st := buf.Stats()
	if st.Misses != warm.Misses {
		t.Errorf("second pass missed %d times", st.Misses-warm.Misses)
	}
	if st.Hits <= warm.Hits {
		t.Error("second pass did not hit the cache")
	}
}

func TestBufferCloseKeepsUnderlyingOpen(t *testing.T) {
	ds := buildLongStore(t, 3)
	buf := newBuffer(t, ds, store.BufferOptions{})
	if _, err := buf.Get(0); err != nil {
		t.Fatal(err)
	}
	if err := buf.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := buf.Get(0); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Get through closed buffer: got %v, want ErrClosed", err)
	}
	if _, err := ds.Get(0); err != nil {
		t.Errorf("underlying datastore closed with buffer: %v", err)
	}
	if buf.Stats().Blocks != 0 {
		t.Error("cache not dropped on Close")
	}
}

func TestBufferPairsAndTags(t *testing.T) {
	var left, right []*fastq.Record
	for i, bc := range []string{"TTTTTTTTTTTTTTTT", "AAAAAAAAAAAAAAAC", "CCCCCCCCCCCCCCCC"} {
		left = append(left, &fastq.Record{ID: []byte(bc), Seq: []byte(strings.Repeat("A", 10+i))})
		right = append(right, &fastq.Record{ID: []byte(bc), Seq: []byte(strings.Repeat("G", 20+i))})
	}
	stats, err := store.NewLinkedBuilder(store.LinkedOptions{Name: "lr", Format: store.UCDavis10x, MaxReadLen: 100}).
		Build(context.Background(), fastq.NewSliceReader(left...), fastq.NewSliceReader(right...), filepath.Join(t.TempDir(), "lr"))
	if err != nil {
		t.Fatal(err)
	}
	ds, err := store.OpenLinked(stats.Path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	buf := newBuffer(t, ds, store.BufferOptions{BlockSize: 16, Blocks: 2})
	defer buf.Close()
	if buf.PairCount() != 3 {
		t.Fatalf("PairCount: got %d", buf.PairCount())
	}
	for i := 0; i < 3; i++ {
		wl, wr, _ := ds.Pair(i)
		gl, gr, err := buf.Pair(i)
		if err != nil {
			t.Fatal(err)
		}
		if gl.String() != wl.String() || gr.String() != wr.String() {
			t.Errorf("pair %d differs", i)
		}
		wt, _ := ds.Tag(i)
		gt, err := buf.Tag(i)
		if err != nil || gt != wt {
			t.Errorf("tag %d: got %d (%v), want %d", i, gt, err, wt)
		}
	}
	if got := buf.String(); got != "Buffered Linked Read Datastore 'lr': 6 reads (3 pairs)" {
		t.Errorf("String: got %q", got)
	}

	long := newBuffer(t, buildLongStore(t, 2), store.BufferOptions{})
	if _, err := long.Tag(0); !errors.Is(err, store.ErrKind) {
		t.Errorf("Tag on long store: got %v, want ErrKind", err)
	}
}

func TestBufferConcurrent(t *testing.T) {
	ds := buildLongStore(t, 300)
	buf := newBuffer(t, ds, store.BufferOptions{BlockSize: 256, Blocks: 16})
	var wg sync.WaitGroup
	for g := 0; g < 6; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := g; i < ds.Len(); i += 5 {
				want, _ := ds.Get(i)
				got, err := buf.Get(i)
				if err != nil || got.String() != want.String() {
					t.Errorf("read %d: %v", i, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}
