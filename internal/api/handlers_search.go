package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sydlexius/anisongdb/internal/match"
	"github.com/sydlexius/anisongdb/internal/search"
	"github.com/sydlexius/anisongdb/internal/song"
)

// handleSearchAnime searches songs by anime name.
// GET /api/v1/anime?search=&partial_match=&ignore_special_character=&case_sensitive=&types=&max=
func (r *Router) handleSearchAnime(w http.ResponseWriter, req *http.Request) {
	text := req.URL.Query().Get("search")
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "search is required")
		return
	}

	opts := search.DefaultOptions()
	var err error
	if opts.PartialMatch, err = boolQuery(req, "partial_match", opts.PartialMatch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.IgnoreSpecialCharacters, err = boolQuery(req, "ignore_special_character", opts.IgnoreSpecialCharacters); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.CaseSensitive, err = boolQuery(req, "case_sensitive", opts.CaseSensitive); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.SongTypes, err = typesQuery(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxResults, err := intQuery(req, "max", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.MaxResults = r.clampMax(maxResults)

	ix, err := r.index(req.Context())
	if err != nil {
		r.writeInternal(w, req, "loading corpus", err)
		return
	}
	res, err := ix.SearchAnime(text, opts)
	if err != nil {
		writeMatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSearchResponse(r.artistStore.Snapshot(), res))
}

// artistFilterBody is the artist filter as sent by clients. An absent
// max_other_artist means the default rather than zero.
type artistFilterBody struct {
	search.Filter
	GroupGranularity int  `json:"group_granularity"`
	MaxOtherArtists  *int `json:"max_other_artist"`
}

// searchBody is the combined search request.
type searchBody struct {
	Anime           *search.Filter         `json:"anime_search_filter"`
	SongName        *search.Filter         `json:"song_name_search_filter"`
	Artist          *artistFilterBody      `json:"artist_search_filter"`
	Composer        *search.ComposerFilter `json:"composer_search_filter"`
	AndLogic        bool                   `json:"and_logic"`
	IgnoreDuplicate bool                   `json:"ignore_duplicate"`
	Opening         *bool                  `json:"opening_filter"`
	Ending          *bool                  `json:"ending_filter"`
	Insert          *bool                  `json:"insert_filter"`
	MaxResults      int                    `json:"max_nb_songs"`
}

func (b searchBody) request(maxResults int) search.Request {
	req := search.Request{
		Anime:           b.Anime,
		SongName:        b.SongName,
		Composer:        b.Composer,
		AndLogic:        b.AndLogic,
		IgnoreDuplicate: b.IgnoreDuplicate,
		MaxResults:      maxResults,
	}
	if b.Artist != nil {
		maxOther := search.DefaultMaxOtherArtists
		if b.Artist.MaxOtherArtists != nil {
			maxOther = *b.Artist.MaxOtherArtists
		}
		req.Artist = &search.ArtistFilter{
			Filter:           b.Artist.Filter,
			GroupGranularity: b.Artist.GroupGranularity,
			MaxOtherArtists:  maxOther,
		}
	}
	toggles := []struct {
		on  *bool
		typ song.Type
	}{
		{b.Opening, song.Opening},
		{b.Ending, song.Ending},
		{b.Insert, song.Insert},
	}
	for _, t := range toggles {
		if t.on == nil || *t.on {
			req.SongTypes |= song.NewTypeSet(t.typ)
		}
	}
	return req
}

// handleSearch runs a combined search.
// POST /api/v1/search
func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) {
	var body searchBody
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ix, err := r.index(req.Context())
	if err != nil {
		r.writeInternal(w, req, "loading corpus", err)
		return
	}
	res, err := ix.Search(body.request(r.clampMax(body.MaxResults)))
	if err != nil {
		writeMatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSearchResponse(r.artistStore.Snapshot(), res))
}

func writeMatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, match.ErrInvalidPattern) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
