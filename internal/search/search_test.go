package search

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sydlexius/anisongdb/internal/song"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func songIDs(rs []song.Record) []int64 {
	ids := make([]int64, len(rs))
	for i, r := range rs {
		ids[i] = r.Song.ID
	}
	return ids
}

func narutoIndex() *Index {
	naruto := &song.Anime{AnnID: 1, Name: "Naruto"}
	corpus := song.NewCorpus([]song.Record{
		{Anime: naruto, Song: song.Song{ID: 1, AnnID: 1, Type: song.Opening, Number: 1, Name: "R★O★C★K★S", Artist: "Hound Dog"}},
	})
	return NewIndex(corpus, nil, testLogger())
}

func TestSearchAnime_NarutoScenario(t *testing.T) {
	ix := narutoIndex()

	opts := DefaultOptions()
	opts.SongTypes = song.NewTypeSet(song.Opening)
	res, err := ix.SearchAnime("naru", opts)
	if err != nil {
		t.Fatalf("SearchAnime: %v", err)
	}
	if diff := cmp.Diff([]int64{1}, songIDs(res.Records)); diff != "" {
		t.Errorf("naru/OP mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", res.Warnings)
	}

	opts.SongTypes = song.NewTypeSet(song.Ending)
	res, err = ix.SearchAnime("naru", opts)
	if err != nil {
		t.Fatalf("SearchAnime: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("naru/ED returned %d records, want 0", len(res.Records))
	}

	opts.SongTypes = song.AllTypes
	res, err = ix.SearchAnime("zzz", opts)
	if err != nil {
		t.Fatalf("SearchAnime: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("zzz returned %d records, want 0", len(res.Records))
	}
}

func TestSearchAnime_EmptyAllowList(t *testing.T) {
	ix := narutoIndex()

	for _, text := range []string{"naru", "", "zzz"} {
		opts := DefaultOptions()
		opts.SongTypes = song.NewTypeSet()
		res, err := ix.SearchAnime(text, opts)
		if err != nil {
			t.Fatalf("SearchAnime(%q): %v", text, err)
		}
		if len(res.Records) != 0 {
			t.Errorf("SearchAnime(%q) with empty allow-list returned %d records", text, len(res.Records))
		}
		if len(res.Warnings) != 1 || res.Warnings[0].Kind != WarnEmptySongTypes {
			t.Errorf("warnings = %+v, want one %s", res.Warnings, WarnEmptySongTypes)
		}
	}
}

func bigCorpus(n int) *song.Corpus {
	anime := &song.Anime{AnnID: 1, Name: "Gintama", Romaji: strPtr("Gintama")}
	other := &song.Anime{AnnID: 2, Name: "Silver Soul", Romaji: strPtr("Gintama'")}
	records := make([]song.Record, 0, n)
	for i := range n {
		a := anime
		if i%2 == 1 {
			a = other
		}
		records = append(records, song.Record{Anime: a, Song: song.Song{
			ID:   int64(i + 1),
			Type: song.Types[i%3],
			Name: fmt.Sprintf("song %d", i+1),
		}})
	}
	return song.NewCorpus(records)
}

func TestSearchAnime_StrictCapInCorpusOrder(t *testing.T) {
	ix := NewIndex(bigCorpus(30), nil, testLogger())
	opts := DefaultOptions()
	opts.MaxResults = 5

	res, err := ix.SearchAnime("gintama", opts)
	if err != nil {
		t.Fatalf("SearchAnime: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2, 3, 4, 5}, songIDs(res.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if !res.Truncated {
		t.Error("expected Truncated to be set")
	}

	opts.MaxResults = 0
	res, err = ix.SearchAnime("gintama", opts)
	if err != nil {
		t.Fatalf("SearchAnime: %v", err)
	}
	if len(res.Records) != 30 || res.Truncated {
		t.Errorf("records = %d truncated = %v, want 30 and false", len(res.Records), res.Truncated)
	}
}

func TestSearchAnime_MatchesRomaji(t *testing.T) {
	ix := NewIndex(bigCorpus(4), nil, testLogger())
	opts := DefaultOptions()
	opts.PartialMatch = false

	res, err := ix.SearchAnime("gintama'", opts)
	if err != nil {
		t.Fatalf("SearchAnime: %v", err)
	}
	if diff := cmp.Diff([]int64{2, 4}, songIDs(res.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchAnime_CaseSensitive(t *testing.T) {
	ix := narutoIndex()
	opts := DefaultOptions()
	opts.CaseSensitive = true

	res, err := ix.SearchAnime("naruto", opts)
	if err != nil {
		t.Fatalf("SearchAnime: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("case-sensitive lowercase search returned %d records", len(res.Records))
	}
	res, _ = ix.SearchAnime("Naruto", opts)
	if len(res.Records) != 1 {
		t.Errorf("case-sensitive exact-case search returned %d records, want 1", len(res.Records))
	}
}

func TestSearchAnime_SkipsMalformedRecords(t *testing.T) {
	good := &song.Anime{AnnID: 1, Name: "Naruto"}
	blank := &song.Anime{AnnID: 2, Name: ""}
	corpus := song.NewCorpus([]song.Record{
		{Anime: good, Song: song.Song{ID: 1, Type: song.Opening}},
		{Anime: blank, Song: song.Song{ID: 2, Type: song.Opening}},
		{Anime: good, Song: song.Song{ID: 3, Type: song.Type(0)}},
		{Song: song.Song{ID: 4, Type: song.Ending}},
		{Anime: good, Song: song.Song{ID: 5, Type: song.Ending}},
	})
	ix := NewIndex(corpus, nil, testLogger())

	res, err := ix.SearchAnime("naruto", DefaultOptions())
	if err != nil {
		t.Fatalf("SearchAnime: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 5}, songIDs(res.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	want := []Warning{{Kind: WarnMalformedRecords, Message: "3 malformed records were skipped", Count: 3}}
	if diff := cmp.Diff(want, res.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestNewIndex_NilGraph(t *testing.T) {
	ix := NewIndex(nil, nil, testLogger())
	res, err := ix.SearchAnime("anything", DefaultOptions())
	if err != nil {
		t.Fatalf("SearchAnime on nil corpus: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("records = %d, want 0", len(res.Records))
	}
	if ix.graph == nil {
		t.Error("nil graph should be replaced by an empty one")
	}
}
