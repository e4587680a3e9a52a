package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sydlexius/anisongdb/internal/artist"
)

// lineUpFixture: 1 and 2 are persons, 3 is a duo with one line-up, 5 is a
// group with two line-ups.
func lineUpFixture(t *testing.T) (*Resolver, *artist.Store) {
	t.Helper()
	artists := []artist.Artist{
		{ID: 1, Names: []string{"Yui"}},
		{ID: 2, Names: []string{"Mio"}},
		{ID: 3, Names: []string{"Duo"}, Type: artist.TypeGroup},
		{ID: 4, Names: []string{"Ritsu"}},
		{ID: 5, Names: []string{"Ho-kago Tea Time"}, Type: artist.TypeGroup},
	}
	lineUps := []artist.LineUp{
		{ArtistID: 3, LineUpID: 0},
		{ArtistID: 5, LineUpID: 0},
		{ArtistID: 5, LineUpID: 1},
	}
	edges := []artist.Membership{
		{GroupID: 3, GroupLineUpID: 0, MemberID: 1, MemberLineUpID: artist.NoLineUp},
		{GroupID: 3, GroupLineUpID: 0, MemberID: 2, MemberLineUpID: artist.NoLineUp},
		{GroupID: 5, GroupLineUpID: 0, MemberID: 1, MemberLineUpID: artist.NoLineUp},
		{GroupID: 5, GroupLineUpID: 1, MemberID: 1, MemberLineUpID: artist.NoLineUp},
		{GroupID: 5, GroupLineUpID: 1, MemberID: 4, MemberLineUpID: artist.NoLineUp},
	}
	return newResolver(t, artists, lineUps, edges)
}

func intPtr(i int) *int { return &i }

func TestMemberRef(t *testing.T) {
	_, store := lineUpFixture(t)
	g := store.Snapshot()

	tests := []struct {
		name     string
		id       int64
		explicit *int
		want     artist.LineUpRef
		wantErr  error
	}{
		{"person", 1, nil, artist.LineUpRef{ArtistID: 1, LineUpID: artist.NoLineUp}, nil},
		{"single line-up", 3, nil, artist.LineUpRef{ArtistID: 3, LineUpID: 0}, nil},
		{"several line-ups", 5, nil, artist.LineUpRef{}, ErrAmbiguousLineUp},
		{"several line-ups explicit", 5, intPtr(1), artist.LineUpRef{ArtistID: 5, LineUpID: 1}, nil},
		{"whole group explicit", 5, intPtr(artist.NoLineUp), artist.LineUpRef{ArtistID: 5, LineUpID: artist.NoLineUp}, nil},
		{"unknown artist", 99, nil, artist.LineUpRef{}, artist.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MemberRef(g, tt.id, tt.explicit)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("MemberRef error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("MemberRef: %v", err)
			}
			if got != tt.want {
				t.Errorf("MemberRef = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := MemberRef(g, 5, intPtr(2)); err == nil {
		t.Error("expected error for out-of-range explicit line-up")
	}
}

func TestMemberRef_AmbiguousListsLineUps(t *testing.T) {
	_, store := lineUpFixture(t)

	_, err := MemberRef(store.Snapshot(), 5, nil)
	var amb *AmbiguousLineUpError
	if !errors.As(err, &amb) {
		t.Fatalf("error = %v, want *AmbiguousLineUpError", err)
	}
	want := []LineUpOption{
		{LineUpID: 0, MemberNames: []string{"Yui"}},
		{LineUpID: 1, MemberNames: []string{"Yui", "Ritsu"}},
	}
	if diff := cmp.Diff(want, amb.Options); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveLineUpAndAddLineUp(t *testing.T) {
	r, store := lineUpFixture(t)
	ctx := context.Background()
	opts := DefaultOptions()
	opts.AllowCreate = true

	refs, err := r.ResolveLineUp(ctx, []MemberSpec{
		{Name: "mio"},
		{Name: "Duo"},
		{Name: "Azusa"},
	}, opts)
	if err != nil {
		t.Fatalf("ResolveLineUp: %v", err)
	}
	want := []artist.LineUpRef{
		{ArtistID: 2, LineUpID: artist.NoLineUp},
		{ArtistID: 3, LineUpID: 0},
		{ArtistID: 6, LineUpID: artist.NoLineUp},
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}

	id, err := r.AddLineUp(ctx, 5, artist.TypeGroup, refs)
	if err != nil {
		t.Fatalf("AddLineUp: %v", err)
	}
	if id != 2 {
		t.Errorf("new line-up id = %d, want 2", id)
	}
	members := store.Snapshot().Members(5, 2)
	if len(members) != 3 {
		t.Errorf("members of new line-up = %d, want 3", len(members))
	}

	if _, err := r.ResolveLineUp(ctx, []MemberSpec{{Name: "Ho-kago Tea Time"}}, opts); !errors.Is(err, ErrAmbiguousLineUp) {
		t.Errorf("ResolveLineUp error = %v, want ErrAmbiguousLineUp", err)
	}
}
