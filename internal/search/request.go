package search

import (
	"fmt"
	"strings"

	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/match"
	"github.com/sydlexius/anisongdb/internal/song"
)

// DefaultMaxOtherArtists is the number of outside performers tolerated on a
// line-up when the caller does not say.
const DefaultMaxOtherArtists = 99

// Filter is one name filter. A filter with blank Search text is ignored.
type Filter struct {
	Search                  string `json:"search"`
	IgnoreSpecialCharacters bool   `json:"ignore_special_character"`
	PartialMatch            bool   `json:"partial_match"`
	CaseSensitive           bool   `json:"case_sensitive"`
}

func (f *Filter) active() bool {
	return f != nil && strings.TrimSpace(f.Search) != ""
}

func (f *Filter) compile(what string) (*match.Pattern, error) {
	p, err := match.Compile(f.Search, match.Options{
		IgnoreSpecialCharacters: f.IgnoreSpecialCharacters,
		PartialMatch:            f.PartialMatch,
	})
	if err != nil {
		return nil, fmt.Errorf("compiling %s filter: %w", what, err)
	}
	return p, nil
}

// ArtistFilter matches performers. A performer line-up matches a searched
// artist when it is that artist, or when at least max(GroupGranularity, 1)
// of its people belong to the searched artist and at most MaxOtherArtists
// do not.
type ArtistFilter struct {
	Filter
	GroupGranularity int `json:"group_granularity"`
	MaxOtherArtists  int `json:"max_other_artist"`
}

func (f *ArtistFilter) active() bool {
	return f != nil && f.Filter.active()
}

// ComposerFilter matches composers, and arrangers too when Arrangement is
// set.
type ComposerFilter struct {
	Filter
	Arrangement bool `json:"arrangement"`
}

func (f *ComposerFilter) active() bool {
	return f != nil && f.Filter.active()
}

// Request is a combined search. Active filters are joined with AND when
// AndLogic is set and with OR otherwise. With no active filter every song
// of an allowed type matches.
type Request struct {
	Anime    *Filter
	SongName *Filter
	Artist   *ArtistFilter
	Composer *ComposerFilter

	AndLogic bool
	// IgnoreDuplicate keeps only the first song of each song name and
	// artist text pair.
	IgnoreDuplicate bool
	SongTypes       song.TypeSet
	// MaxResults caps the result. Zero or less means DefaultMaxResults.
	MaxResults int
}

// predicate tests one valid record.
type predicate func(r *song.Record) bool

// Search runs a combined request over the corpus.
func (ix *Index) Search(req Request) (Result, error) {
	preds, err := ix.predicates(req)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if req.SongTypes.Empty() {
		res.Warnings = append(res.Warnings, emptyTypesWarning())
		return res, nil
	}
	limit := limitOf(req.MaxResults)

	type dupKey struct{ name, artist string }
	seen := make(map[dupKey]bool)
	malformed := 0

	ix.corpus.Each(func(r *song.Record) bool {
		if err := r.Validate(); err != nil {
			malformed++
			return true
		}
		if !req.SongTypes.Has(r.Song.Type) {
			return true
		}
		if !combine(preds, req.AndLogic, r) {
			return true
		}
		if req.IgnoreDuplicate {
			k := dupKey{r.Song.Name, r.Song.Artist}
			if seen[k] {
				return true
			}
			seen[k] = true
		}
		if len(res.Records) >= limit {
			res.Truncated = true
			return false
		}
		res.Records = append(res.Records, *r)
		return true
	})

	if malformed > 0 {
		res.Warnings = append(res.Warnings, malformedWarning(malformed))
	}
	return res, nil
}

func combine(preds []predicate, and bool, r *song.Record) bool {
	if len(preds) == 0 {
		return true
	}
	for _, p := range preds {
		ok := p(r)
		if and && !ok {
			return false
		}
		if !and && ok {
			return true
		}
	}
	return and
}

func (ix *Index) predicates(req Request) ([]predicate, error) {
	var preds []predicate

	if req.Anime.active() {
		p, err := req.Anime.compile("anime")
		if err != nil {
			return nil, err
		}
		cs := req.Anime.CaseSensitive
		preds = append(preds, func(r *song.Record) bool {
			if p.MatchAny(r.Anime.SearchNames(), cs) || p.MatchAny(r.Anime.AltNames, cs) {
				return true
			}
			return r.Anime.English != nil && p.Match(*r.Anime.English, cs)
		})
	}

	if req.SongName.active() {
		p, err := req.SongName.compile("song name")
		if err != nil {
			return nil, err
		}
		cs := req.SongName.CaseSensitive
		preds = append(preds, func(r *song.Record) bool {
			return p.Match(r.Song.Name, cs)
		})
	}

	if req.Artist.active() {
		pred, err := ix.artistPredicate(req.Artist)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}

	if req.Composer.active() {
		pred, err := ix.composerPredicate(req.Composer)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}

	return preds, nil
}

// matchingArtists returns the IDs of artists with a name matching p.
func (ix *Index) matchingArtists(p *match.Pattern, caseSensitive bool) []int64 {
	var ids []int64
	ix.graph.Each(func(a *artist.Artist) bool {
		if p.MatchAny(a.Names, caseSensitive) {
			ids = append(ids, a.ID)
		}
		return true
	})
	return ids
}

func (ix *Index) artistPredicate(f *ArtistFilter) (predicate, error) {
	p, err := f.compile("artist")
	if err != nil {
		return nil, err
	}
	ids := ix.matchingArtists(p, f.CaseSensitive)
	if len(ids) == 0 {
		// Nothing in the graph; fall back to the credited artist text.
		cs := f.CaseSensitive
		return func(r *song.Record) bool { return p.Match(r.Song.Artist, cs) }, nil
	}

	m := newLineUpMatcher(ix.graph, ids, f.GroupGranularity, f.MaxOtherArtists)
	return func(r *song.Record) bool {
		for _, ref := range r.Song.Artists {
			if m.matches(ref) {
				return true
			}
		}
		return false
	}, nil
}

func (ix *Index) composerPredicate(f *ComposerFilter) (predicate, error) {
	p, err := f.compile("composer")
	if err != nil {
		return nil, err
	}
	wanted := make(map[int64]bool)
	for _, id := range ix.matchingArtists(p, f.CaseSensitive) {
		wanted[id] = true
	}
	arrangement := f.Arrangement
	return func(r *song.Record) bool {
		for _, ref := range r.Song.Composers {
			if wanted[ref.ArtistID] {
				return true
			}
		}
		if arrangement {
			for _, ref := range r.Song.Arrangers {
				if wanted[ref.ArtistID] {
					return true
				}
			}
		}
		return false
	}, nil
}

// lineUpMatcher decides whether a performer reference counts as one of the
// searched artists.
type lineUpMatcher struct {
	graph      *artist.Graph
	direct     map[int64]bool
	rosters    []map[int64]bool
	minShared  int
	maxOutside int
	memo       map[artist.LineUpRef]bool
}

func newLineUpMatcher(g *artist.Graph, ids []int64, granularity, maxOther int) *lineUpMatcher {
	m := &lineUpMatcher{
		graph:      g,
		direct:     make(map[int64]bool, len(ids)),
		minShared:  max(granularity, 1),
		maxOutside: maxOther,
		memo:       make(map[artist.LineUpRef]bool),
	}
	if m.maxOutside < 0 {
		m.maxOutside = DefaultMaxOtherArtists
	}
	for _, id := range ids {
		m.direct[id] = true
		roster := make(map[int64]bool)
		for _, p := range g.Flatten(artist.LineUpRef{ArtistID: id, LineUpID: artist.NoLineUp}) {
			roster[p] = true
		}
		m.rosters = append(m.rosters, roster)
	}
	return m
}

func (m *lineUpMatcher) matches(ref artist.LineUpRef) bool {
	if m.direct[ref.ArtistID] {
		return true
	}
	if v, ok := m.memo[ref]; ok {
		return v
	}
	people := m.graph.Flatten(ref)
	result := false
	for _, roster := range m.rosters {
		shared, outside := 0, 0
		for _, p := range people {
			if roster[p] {
				shared++
			} else {
				outside++
			}
		}
		if shared >= m.minShared && outside <= m.maxOutside {
			result = true
			break
		}
	}
	m.memo[ref] = result
	return result
}
