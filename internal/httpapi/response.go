package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/freeeve/readstore/internal/seq"
	"github.com/freeeve/readstore/internal/store"
)

// InfoResponse describes the served datastore.
type InfoResponse struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Alphabet   string `json:"alphabet"`
	Reads      int    `json:"reads"`
	Pairs      int    `json:"pairs,omitempty"`
	MaxReadLen int    `json:"max_read_len"`
	Summary    string `json:"summary"`
}

type ReadResponse struct {
	Index    int    `json:"index"`
	Length   int    `json:"length"`
	Sequence string `json:"sequence"`
}

type PairResponse struct {
	Index int          `json:"index"`
	Left  ReadResponse `json:"left"`
	Right ReadResponse `json:"right"`
	Tag   *TagResponse `json:"tag,omitempty"`
}

type TagResponse struct {
	Index   int    `json:"index"`
	Tag     uint32 `json:"tag"`
	Barcode string `json:"barcode,omitempty"` // empty for untagged pairs
}

type errorResponse struct {
	Error string `json:"error"`
}

func toRead(i int, s seq.Sequence) ReadResponse {
	return ReadResponse{Index: i, Length: s.Len(), Sequence: s.String()}
}

func toTag(i int, tag uint32) *TagResponse {
	tr := &TagResponse{Index: i, Tag: tag}
	if tag != 0 {
		tr.Barcode = store.DecodeTag(tag)
	}
	return tr
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
