package api

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sydlexius/anisongdb/internal/artist"
)

func TestGetArtist(t *testing.T) {
	h := testRouter(t, 0).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/artists/5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[artistDetail](t, w)
	if got.ID != 5 || got.Type != artist.TypeGroup {
		t.Errorf("artist = %+v", got.Artist)
	}
	if len(got.LineUps) != 2 || len(got.LineUps[0].Members) != 2 || len(got.LineUps[1].Members) != 1 {
		t.Errorf("line-ups = %+v", got.LineUps)
	}
	if diff := cmp.Diff([]string{"K-On!"}, got.Examples); diff != "" {
		t.Errorf("examples (-want +got):\n%s", diff)
	}

	yui := decode[artistDetail](t, do(t, h, http.MethodGet, "/api/v1/artists/1", ""))
	want := []memberDTO{
		{ID: 5, Names: []string{"Ho-kago Tea Time", "HTT"}, LineUpID: 0},
		{ID: 5, Names: []string{"Ho-kago Tea Time", "HTT"}, LineUpID: 1},
	}
	if diff := cmp.Diff(want, yui.Groups); diff != "" {
		t.Errorf("groups (-want +got):\n%s", diff)
	}
}

func TestGetArtist_Errors(t *testing.T) {
	h := testRouter(t, 0).Handler()
	if w := do(t, h, http.MethodGet, "/api/v1/artists/99", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown artist status = %d, want 404", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/artists/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestArtistMembers(t *testing.T) {
	h := testRouter(t, 0).Handler()

	tests := []struct {
		target string
		status int
		want   []int64
	}{
		{"/api/v1/artists/5/members", http.StatusOK, []int64{1, 2}},
		{"/api/v1/artists/5/members?line_up=1", http.StatusOK, []int64{1}},
		{"/api/v1/artists/1/members", http.StatusOK, []int64{}},
		{"/api/v1/artists/5/members?line_up=2", http.StatusBadRequest, nil},
		{"/api/v1/artists/5/members?line_up=x", http.StatusBadRequest, nil},
		{"/api/v1/artists/42/members", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			ids := []int64{}
			for _, m := range decode[[]memberDTO](t, w) {
				ids = append(ids, m.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("members (-want +got):\n%s", diff)
			}
		})
	}
}

func TestArtistSongs(t *testing.T) {
	h := testRouter(t, 0).Handler()

	tests := []struct {
		target string
		status int
		want   []int64
	}{
		{"/api/v1/artists/2/songs", http.StatusOK, []int64{2}},
		{"/api/v1/artists/6/songs?role=composer", http.StatusOK, []int64{1}},
		{"/api/v1/artists/6/songs", http.StatusOK, []int64{}},
		{"/api/v1/artists/6/songs?role=dancer", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
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

func TestResolveArtist(t *testing.T) {
	h := testRouter(t, 0).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/artists/resolve", `{"name": "mio"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[resolveResponse](t, w)
	if len(got.Candidates) != 1 || got.Candidates[0].ArtistID != 2 {
		t.Fatalf("candidates = %+v", got.Candidates)
	}
	if diff := cmp.Diff(&artist.LineUpRef{ArtistID: 2, LineUpID: artist.NoLineUp}, got.MemberRef); diff != "" {
		t.Errorf("member ref (-want +got):\n%s", diff)
	}

	// HTT has two line-ups, so without a choice the options are listed.
	got = decode[resolveResponse](t, do(t, h, http.MethodPost, "/api/v1/artists/resolve", `{"name": "HTT"}`))
	if got.MemberRef != nil || len(got.LineUps) != 2 {
		t.Errorf("member ref = %v line-ups = %+v", got.MemberRef, got.LineUps)
	}
	got = decode[resolveResponse](t, do(t, h, http.MethodPost, "/api/v1/artists/resolve", `{"name": "HTT", "line_up": 1}`))
	if diff := cmp.Diff(&artist.LineUpRef{ArtistID: 5, LineUpID: 1}, got.MemberRef); diff != "" {
		t.Errorf("member ref (-want +got):\n%s", diff)
	}

	got = decode[resolveResponse](t, do(t, h, http.MethodPost, "/api/v1/artists/resolve", `{"name": "nobody here"}`))
	if len(got.Candidates) != 0 || got.Candidates == nil {
		t.Errorf("candidates = %#v, want empty list", got.Candidates)
	}
}

func TestResolveArtist_BadRequests(t *testing.T) {
	h := testRouter(t, 0).Handler()
	for _, body := range []string{`{"name": "  "}`, `{}`, `{"name": "HTT", "line_up": 7}`, `[]`} {
		if w := do(t, h, http.MethodPost, "/api/v1/artists/resolve", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}
