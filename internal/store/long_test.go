package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/freeeve/readstore/internal/store"
)

func TestLongBuild(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "nanopore")
	b := store.NewLongBuilder(store.LongOptions{MinSize: 1000})
	b.SetLogger(t.Logf)

	stats, err := b.Build(context.Background(), reads(5000, 999, 1000, 20000, 10), prefix)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Reads != 3 || stats.Discarded != 2 {
		t.Errorf("got reads %d discarded %d, want 3 2", stats.Reads, stats.Discarded)
	}

	ds, err := store.OpenLong(stats.Path, "ont")
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()
	for i, want := range []int{5000, 1000, 20000} {
		s, err := ds.Get(i)
		if err != nil {
			t.Fatal(err)
		}
		if s.Len() != want {
			t.Errorf("read %d: got %d symbols, want %d", i, s.Len(), want)
		}
	}
	if ds.MaxReadLen() != 20000 || ds.MinSize() != 1000 {
		t.Errorf("metadata: max read %d min size %d", ds.MaxReadLen(), ds.MinSize())
	}
	if got := ds.String(); got != "Long Read Datastore 'ont': 3 reads" {
		t.Errorf("String: got %q", got)
	}
	if _, _, err := store.GetPair(ds, 0); !errors.Is(err, store.ErrKind) {
		t.Errorf("GetPair on long store: got %v, want ErrKind", err)
	}
}

func TestLongBuildRejectsNegativeMin(t *testing.T) {
	_, err := store.NewLongBuilder(store.LongOptions{MinSize: -1}).
		Build(context.Background(), reads(10), filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, store.ErrConfig) {
		t.Errorf("got %v, want ErrConfig", err)
	}
}
