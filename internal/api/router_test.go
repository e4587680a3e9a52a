package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sydlexius/anisongdb/internal/api/middleware"
	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/database"
	"github.com/sydlexius/anisongdb/internal/event"
	"github.com/sydlexius/anisongdb/internal/maintenance"
	"github.com/sydlexius/anisongdb/internal/resolver"
	"github.com/sydlexius/anisongdb/internal/song"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRouter: persons Yui(1) and Mio(2), composer Kz(6). Group HTT(5) has
// line-up 0 {Yui, Mio} and line-up 1 {Yui}.
func testRouter(t *testing.T, maxResults int) *Router {
	t.Helper()
	g, err := artist.NewGraph(
		[]artist.Artist{
			{ID: 1, Names: []string{"Yui"}, IsVocalist: true, Type: artist.TypePerson},
			{ID: 2, Names: []string{"Mio"}, IsVocalist: true, Type: artist.TypePerson},
			{ID: 5, Names: []string{"Ho-kago Tea Time", "HTT"}, IsVocalist: true, Type: artist.TypeGroup},
			{ID: 6, Names: []string{"Kz"}, IsComposer: true, Type: artist.TypePerson},
		},
		[]artist.LineUp{
			{ArtistID: 5, LineUpID: 0, Type: artist.TypeGroup},
			{ArtistID: 5, LineUpID: 1, Type: artist.TypeGroup},
		},
		[]artist.Membership{
			{GroupID: 5, GroupLineUpID: 0, MemberID: 1, MemberLineUpID: artist.NoLineUp},
			{GroupID: 5, GroupLineUpID: 0, MemberID: 2, MemberLineUpID: artist.NoLineUp},
			{GroupID: 5, GroupLineUpID: 1, MemberID: 1, MemberLineUpID: artist.NoLineUp},
		},
	)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	kon := &song.Anime{AnnID: 10, Name: "K-On!"}
	other := &song.Anime{AnnID: 20, Name: "Other Show"}
	ref := func(id int64, lu int) []artist.LineUpRef { return []artist.LineUpRef{{ArtistID: id, LineUpID: lu}} }
	corpus := song.NewCorpus([]song.Record{
		{Anime: kon, Song: song.Song{ID: 1, AnnID: 10, Type: song.Opening, Number: 1, Name: "Cagayake!GIRLS", Artist: "HTT",
			Artists: ref(5, 0), Composers: ref(6, artist.NoLineUp)}},
		{Anime: kon, Song: song.Song{ID: 2, AnnID: 10, Type: song.Ending, Number: 1, Name: "Don't say lazy", Artist: "Mio",
			Artists: ref(2, artist.NoLineUp)}},
		{Anime: other, Song: song.Song{ID: 3, AnnID: 20, Type: song.Opening, Number: 1, Name: "Duet", Artist: "Yui",
			Artists: ref(1, artist.NoLineUp)}},
	})

	logger := testLogger()
	store := artist.NewStore(g, nil, nil, logger)
	cache := song.NewCache(func(context.Context) (*song.Corpus, error) { return corpus, nil }, 0, nil, logger)
	return NewRouter(RouterDeps{
		ArtistStore: store,
		Corpus:      cache,
		Resolver:    resolver.New(store, cache, 0, logger),
		Logger:      logger,
		MaxResults:  maxResults,
	})
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return v
}

func songIDs(resp searchResponse) []int64 {
	ids := make([]int64, 0, len(resp.Songs))
	for _, s := range resp.Songs {
		ids = append(ids, s.SongID)
	}
	return ids
}

func TestHealth(t *testing.T) {
	h := testRouter(t, 0).Handler()
	w := do(t, h, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "ok" || body["artists"] != float64(4) || body["corpus_loaded"] != false {
		t.Errorf("health = %v", body)
	}
}

func TestHealth_DatabaseAndEvents(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	r := testRouter(t, 0)
	r.maintenance = maintenance.NewService(db, ":memory:", 24, testLogger())
	r.eventBus = event.NewBus(testLogger(), 1)
	r.eventBus.Publish(event.Event{Type: event.GraphReloaded})
	r.eventBus.Publish(event.Event{Type: event.GraphReloaded})

	body := decode[map[string]any](t, do(t, r.Handler(), http.MethodGet, "/api/v1/health", ""))
	if body["events_dropped"] != float64(1) {
		t.Errorf("events_dropped = %v, want 1", body["events_dropped"])
	}
	st, ok := body["database"].(map[string]any)
	if !ok {
		t.Fatalf("database = %v", body["database"])
	}
	if st["schedule_interval_hours"] != float64(24) || st["schema_version"] == float64(0) {
		t.Errorf("database = %v", st)
	}
}

func TestSearchAnime(t *testing.T) {
	h := testRouter(t, 0).Handler()

	tests := []struct {
		name   string
		target string
		status int
		want   []int64
	}{
		{"partial by default", "/api/v1/anime?search=k-on", http.StatusOK, []int64{1, 2}},
		{"type filter", "/api/v1/anime?search=k-on&types=ED", http.StatusOK, []int64{2}},
		{"full match misses", "/api/v1/anime?search=k-o&partial_match=false", http.StatusOK, []int64{}},
		{"max", "/api/v1/anime?search=k-on&max=1", http.StatusOK, []int64{1}},
		{"missing search", "/api/v1/anime", http.StatusBadRequest, nil},
		{"bad bool", "/api/v1/anime?search=x&case_sensitive=maybe", http.StatusBadRequest, nil},
		{"bad types", "/api/v1/anime?search=x&types=OP,XX", http.StatusBadRequest, nil},
		{"bad max", "/api/v1/anime?search=x&max=ten", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			if diff := cmp.Diff(tt.want, songIDs(decode[searchResponse](t, w))); diff != "" {
				t.Errorf("songs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSearchAnime_ServerCap(t *testing.T) {
	h := testRouter(t, 1).Handler()
	resp := decode[searchResponse](t, do(t, h, http.MethodGet, "/api/v1/anime?search=k-on&max=50", ""))
	if resp.Count != 1 || !resp.Truncated {
		t.Errorf("count = %d truncated = %v, want 1 and true", resp.Count, resp.Truncated)
	}
}

func TestSearchAnime_Credits(t *testing.T) {
	h := testRouter(t, 0).Handler()
	resp := decode[searchResponse](t, do(t, h, http.MethodGet, "/api/v1/anime?search=k-on&types=OP", ""))
	if len(resp.Songs) != 1 {
		t.Fatalf("songs = %d, want 1", len(resp.Songs))
	}
	got := resp.Songs[0]
	if got.AnimeName != "K-On!" || got.SongTypeLabel != "OP" {
		t.Errorf("anime = %q type = %q", got.AnimeName, got.SongTypeLabel)
	}
	want := []creditDTO{{
		ID:       5,
		Names:    []string{"Ho-kago Tea Time", "HTT"},
		Type:     artist.TypeGroup,
		LineUpID: 0,
		Members: []memberDTO{
			{ID: 1, Names: []string{"Yui"}, LineUpID: artist.NoLineUp},
			{ID: 2, Names: []string{"Mio"}, LineUpID: artist.NoLineUp},
		},
	}}
	if diff := cmp.Diff(want, got.Artists); diff != "" {
		t.Errorf("artists (-want +got):\n%s", diff)
	}
	if len(got.Composers) != 1 || got.Composers[0].ID != 6 || got.Composers[0].Members != nil {
		t.Errorf("composers = %+v", got.Composers)
	}
}

func TestSearch(t *testing.T) {
	h := testRouter(t, 0).Handler()

	tests := []struct {
		name   string
		body   string
		status int
		want   []int64
	}{
		{
			name:   "song name",
			body:   `{"song_name_search_filter": {"search": "lazy", "partial_match": true}}`,
			status: http.StatusOK,
			want:   []int64{2},
		},
		{
			name:   "openings only",
			body:   `{"ending_filter": false, "insert_filter": false}`,
			status: http.StatusOK,
			want:   []int64{1, 3},
		},
		{
			name: "and logic",
			body: `{"anime_search_filter": {"search": "k-on", "partial_match": true},
				"song_name_search_filter": {"search": "duet", "partial_match": true}, "and_logic": true}`,
			status: http.StatusOK,
			want:   []int64{},
		},
		{
			name:   "max",
			body:   `{"max_nb_songs": 2}`,
			status: http.StatusOK,
			want:   []int64{1, 2},
		},
		{name: "unknown field", body: `{"bogus": 1}`, status: http.StatusBadRequest},
		{name: "trailing data", body: `{} {}`, status: http.StatusBadRequest},
		{name: "not json", body: `nope`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/search", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			if diff := cmp.Diff(tt.want, songIDs(decode[searchResponse](t, w))); diff != "" {
				t.Errorf("songs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSearch_NoTypesWarns(t *testing.T) {
	h := testRouter(t, 0).Handler()
	w := do(t, h, http.MethodPost, "/api/v1/search", `{"opening_filter": false, "ending_filter": false, "insert_filter": false}`)
	resp := decode[searchResponse](t, w)
	if resp.Count != 0 || len(resp.Warnings) != 1 {
		t.Errorf("count = %d warnings = %+v", resp.Count, resp.Warnings)
	}
}

func TestSearchBody_Request(t *testing.T) {
	var body searchBody
	if err := json.Unmarshal([]byte(`{"artist_search_filter": {"search": "Yui", "group_granularity": 1}, "ending_filter": false}`), &body); err != nil {
		t.Fatal(err)
	}
	req := body.request(10)
	if req.Artist == nil || req.Artist.MaxOtherArtists != 99 || req.Artist.GroupGranularity != 1 {
		t.Errorf("artist filter = %+v", req.Artist)
	}
	if want := song.NewTypeSet(song.Opening, song.Insert); req.SongTypes != want {
		t.Errorf("types = %v, want %v", req.SongTypes, want)
	}
	if req.MaxResults != 10 {
		t.Errorf("max = %d, want 10", req.MaxResults)
	}

	if err := json.Unmarshal([]byte(`{"artist_search_filter": {"search": "Yui", "max_other_artist": 0}}`), &body); err != nil {
		t.Fatal(err)
	}
	if got := body.request(10).Artist.MaxOtherArtists; got != 0 {
		t.Errorf("explicit max_other_artist = %d, want 0", got)
	}
}
