package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sydlexius/anisongdb/internal/api/middleware"
	"github.com/sydlexius/anisongdb/internal/search"
	"github.com/sydlexius/anisongdb/internal/song"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"artists": r.artistStore.Snapshot().Len(),
	}
	if corpus, ok := r.corpus.Peek(); ok {
		resp["songs"] = corpus.Len()
		resp["corpus_loaded"] = true
	} else {
		resp["corpus_loaded"] = false
	}
	if r.eventBus != nil {
		resp["events_dropped"] = r.eventBus.Dropped()
	}
	if r.maintenance != nil {
		st, err := r.maintenance.Status(req.Context())
		if err != nil {
			r.logger.Warn("reading database status", "error", err)
		} else {
			resp["database"] = st
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// index builds a search index over the current corpus and artist graph.
func (r *Router) index(ctx context.Context) (*search.Index, error) {
	corpus, err := r.corpus.Get(ctx)
	if err != nil {
		return nil, err
	}
	return search.NewIndex(corpus, r.artistStore.Snapshot(), r.logger), nil
}

// clampMax applies the server's result ceiling to a requested maximum.
func (r *Router) clampMax(n int) int {
	if n <= 0 || n > r.maxResults {
		return r.maxResults
	}
	return n
}

func (r *Router) writeInternal(w http.ResponseWriter, req *http.Request, msg string, err error) {
	r.logger.Error(msg, "error", err, "request_id", middleware.RequestID(req.Context()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

// decodeJSON reads a single JSON object from the request body into v.
func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// intQuery extracts an integer query parameter with a default value.
func intQuery(req *http.Request, key string, def int) (int, error) {
	v := req.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

// boolQuery extracts a boolean query parameter with a default value.
func boolQuery(req *http.Request, key string, def bool) (bool, error) {
	v := req.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New("invalid " + key)
	}
	return b, nil
}

// typesQuery parses the types parameter. An absent parameter allows every
// type; a present but empty one allows none.
func typesQuery(req *http.Request) (song.TypeSet, error) {
	q := req.URL.Query()
	if !q.Has("types") {
		return song.AllTypes, nil
	}
	return song.ParseTypeSet(q.Get("types"))
}
