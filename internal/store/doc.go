// Package store provides disk-backed, read-only datastores of sequencing
// reads.
//
// Datastore kinds:
//   - Paired (.prseq): short paired reads, truncated to a maximum length,
//     pairs with a too short read dropped. Pair i is reads 2i and 2i+1.
//   - Long (.loseq): variable length single reads above a minimum length.
//   - Linked (.lrseq): paired reads sorted by their 16bp proximity tag, with
//     a tag per pair. Built by an external tag sort: sorted chunks are spilled
//     to a temporary arena and k-way merged.
//
// Every kind shares one container format (see format.go): a fixed header, the
// packed records back to back, and a zstd-compressed record index. The index
// is loaded on open; reads are served with positional reads, so an opened
// datastore is safe for concurrent use. A Buffer adds an LRU block cache in
// front of any datastore.
package store
