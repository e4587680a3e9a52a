package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/match"
	"github.com/sydlexius/anisongdb/internal/resolver"
	"github.com/sydlexius/anisongdb/internal/song"
)

// exampleLimit is how many example anime the artist detail lists.
const exampleLimit = 5

type lineUpDTO struct {
	LineUpID int         `json:"line_up_id"`
	Type     artist.Type `json:"type"`
	Members  []memberDTO `json:"members"`
}

type artistDetail struct {
	artist.Artist
	LineUps  []lineUpDTO `json:"line_ups"`
	Groups   []memberDTO `json:"groups"`
	Examples []string    `json:"examples"`
}

// artistFromPath returns the graph snapshot and the artist named by the
// {id} path value, writing the error response itself on failure.
func (r *Router) artistFromPath(w http.ResponseWriter, req *http.Request) (*artist.Graph, artist.Artist, bool) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid artist id")
		return nil, artist.Artist{}, false
	}
	g := r.artistStore.Snapshot()
	a, ok := g.Artist(id)
	if !ok {
		writeError(w, http.StatusNotFound, "artist not found")
		return nil, artist.Artist{}, false
	}
	return g, a, true
}

// handleGetArtist returns an artist with its line-ups, groups and example anime.
// GET /api/v1/artists/{id}
func (r *Router) handleGetArtist(w http.ResponseWriter, req *http.Request) {
	g, a, ok := r.artistFromPath(w, req)
	if !ok {
		return
	}
	d := artistDetail{
		Artist:   a,
		LineUps:  make([]lineUpDTO, 0),
		Groups:   groupRefs(g, g.Groups(a.ID)),
		Examples: []string{},
	}
	for _, lu := range g.LineUps(a.ID) {
		ms := members(g, g.Members(a.ID, lu.LineUpID))
		if ms == nil {
			ms = []memberDTO{}
		}
		d.LineUps = append(d.LineUps, lineUpDTO{LineUpID: lu.LineUpID, Type: lu.Type, Members: ms})
	}
	if corpus, err := r.corpus.Get(req.Context()); err != nil {
		r.logger.Warn("loading corpus for artist examples", "artist_id", a.ID, "error", err)
	} else if ex := corpus.ExampleAnime(a.ID, exampleLimit); len(ex) > 0 {
		d.Examples = ex
	}
	writeJSON(w, http.StatusOK, d)
}

// handleArtistMembers lists the members of a group line-up, or of every
// line-up when line_up is absent.
// GET /api/v1/artists/{id}/members?line_up=
func (r *Router) handleArtistMembers(w http.ResponseWriter, req *http.Request) {
	g, a, ok := r.artistFromPath(w, req)
	if !ok {
		return
	}
	edges := g.AllMembers(a.ID)
	if req.URL.Query().Has("line_up") {
		lu, err := intQuery(req, "line_up", 0)
		if err != nil || lu < 0 || lu >= len(g.LineUps(a.ID)) {
			writeError(w, http.StatusBadRequest, "invalid line_up")
			return
		}
		edges = g.Members(a.ID, lu)
	}
	out := members(g, edges)
	if out == nil {
		out = []memberDTO{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleArtistGroups lists the group line-ups an artist belongs to.
// GET /api/v1/artists/{id}/groups
func (r *Router) handleArtistGroups(w http.ResponseWriter, req *http.Request) {
	g, a, ok := r.artistFromPath(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, groupRefs(g, g.Groups(a.ID)))
}

// handleArtistSongs lists the songs crediting an artist in one role.
// GET /api/v1/artists/{id}/songs?role=&max=
func (r *Router) handleArtistSongs(w http.ResponseWriter, req *http.Request) {
	g, a, ok := r.artistFromPath(w, req)
	if !ok {
		return
	}
	role := song.RolePerformer
	if v := req.URL.Query().Get("role"); v != "" {
		role = song.Role(strings.ToLower(v))
		if !slices.Contains(song.Roles, role) {
			writeError(w, http.StatusBadRequest, "invalid role")
			return
		}
	}
	maxResults, err := intQuery(req, "max", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := r.clampMax(maxResults)

	corpus, err := r.corpus.Get(req.Context())
	if err != nil {
		r.writeInternal(w, req, "loading corpus", err)
		return
	}
	records := corpus.SongsByArtist(a.ID, role)
	truncated := len(records) > limit
	if truncated {
		records = records[:limit]
	}
	resp := searchResponse{Count: len(records), Truncated: truncated, Songs: make([]songDTO, 0, len(records))}
	for _, rec := range records {
		resp.Songs = append(resp.Songs, newSongDTO(g, rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

type resolveBody struct {
	Name string `json:"name"`
	// LineUp selects the member line-up when the name resolves to a
	// single artist with several line-ups.
	LineUp *int `json:"line_up,omitempty"`
}

type resolveResponse struct {
	Name       string                  `json:"name"`
	Candidates []resolver.Candidate    `json:"candidates"`
	MemberRef  *artist.LineUpRef       `json:"member_ref,omitempty"`
	LineUps    []resolver.LineUpOption `json:"line_ups,omitempty"`
}

// handleResolveArtist lists the artists a name could refer to. When exactly
// one matches, the reference it would take as a group member is included.
// POST /api/v1/artists/resolve
func (r *Router) handleResolveArtist(w http.ResponseWriter, req *http.Request) {
	var body resolveBody
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	g := r.artistStore.Snapshot()
	candidates, err := r.resolver.CandidatesIn(g, body.Name)
	if err != nil {
		if errors.Is(err, match.ErrInvalidPattern) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.writeInternal(w, req, "resolving artist", err)
		return
	}
	resp := resolveResponse{Name: body.Name, Candidates: candidates}
	if resp.Candidates == nil {
		resp.Candidates = []resolver.Candidate{}
	}

	if len(candidates) == 1 {
		ref, err := resolver.MemberRef(g, candidates[0].ArtistID, body.LineUp)
		var ambiguous *resolver.AmbiguousLineUpError
		switch {
		case err == nil:
			resp.MemberRef = &ref
		case errors.As(err, &ambiguous):
			resp.LineUps = ambiguous.Options
		default:
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
