package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/freeeve/readstore/internal/store"
)

// Handler serves read-only lookups against one opened datastore.
type Handler struct {
	ds  store.ReadDatastore
	log zerolog.Logger
}

type tagger interface {
	Tag(i int) (uint32, error)
}

// NewRouter creates the HTTP router for ds. ds may be a Buffer.
func NewRouter(log zerolog.Logger, ds store.ReadDatastore) http.Handler {
	h := &Handler{ds: ds, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /v1/info", h.info)
	mux.HandleFunc("GET /v1/reads/{i}", h.read)
	mux.HandleFunc("GET /v1/pairs/{i}", h.pair)
	mux.HandleFunc("GET /v1/tags/{i}", h.tag)

	return RequestID(AccessLog(log, mux))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	resp := InfoResponse{
		Name:       h.ds.Name(),
		Kind:       h.ds.Kind().String(),
		Alphabet:   h.ds.Alphabet().String(),
		Reads:      h.ds.Len(),
		MaxReadLen: h.ds.MaxReadLen(),
		Summary:    fmt.Sprint(h.ds),
	}
	if h.ds.Kind() != store.KindLong {
		resp.Pairs = h.ds.Len() / 2
	}
	writeJSON(w, resp)
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	i, ok := h.index(w, r)
	if !ok {
		return
	}
	s, err := h.ds.Get(i)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, toRead(i, s))
}

func (h *Handler) pair(w http.ResponseWriter, r *http.Request) {
	i, ok := h.index(w, r)
	if !ok {
		return
	}
	left, right, err := store.GetPair(h.ds, i)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := PairResponse{Index: i, Left: toRead(2*i, left), Right: toRead(2*i+1, right)}
	if t, ok := h.ds.(tagger); ok && h.ds.Kind() == store.KindLinked {
		tag, err := t.Tag(i)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Tag = toTag(i, tag)
	}
	writeJSON(w, resp)
}

func (h *Handler) tag(w http.ResponseWriter, r *http.Request) {
	i, ok := h.index(w, r)
	if !ok {
		return
	}
	t, isTagged := h.ds.(tagger)
	if !isTagged || h.ds.Kind() != store.KindLinked {
		writeError(w, http.StatusBadRequest, h.ds.Kind().String()+" datastore has no tags")
		return
	}
	tag, err := t.Tag(i)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, toTag(i, tag))
}

// index parses the {i} path value, answering 400 when it is not an integer.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(r.PathValue("i"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index "+strconv.Quote(r.PathValue("i")))
		return 0, false
	}
	return i, true
}

// fail maps datastore errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrIndex):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("datastore read")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
