// Package search filters the song corpus by anime, song, artist and composer
// names.
package search

import (
	"fmt"
	"log/slog"

	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/match"
	"github.com/sydlexius/anisongdb/internal/song"
)

// DefaultMaxResults caps a search when the caller gives no limit.
const DefaultMaxResults = 250

// Options controls an anime name search.
type Options struct {
	IgnoreSpecialCharacters bool
	PartialMatch            bool
	CaseSensitive           bool
	// MaxResults caps the result. Zero or less means DefaultMaxResults.
	MaxResults int
	// SongTypes is an allow-list. An empty set lets nothing through.
	SongTypes song.TypeSet
}

// DefaultOptions returns the options used when the caller sets none.
func DefaultOptions() Options {
	return Options{
		IgnoreSpecialCharacters: true,
		PartialMatch:            true,
		CaseSensitive:           false,
		MaxResults:              DefaultMaxResults,
		SongTypes:               song.AllTypes,
	}
}

func (o Options) matchOptions() match.Options {
	return match.Options{IgnoreSpecialCharacters: o.IgnoreSpecialCharacters, PartialMatch: o.PartialMatch}
}

// WarningKind classifies a search warning.
type WarningKind string

// Warning kinds.
const (
	// WarnEmptySongTypes means the song type allow-list was empty, so the
	// result is empty regardless of the query.
	WarnEmptySongTypes WarningKind = "empty_song_types"
	// WarnMalformedRecords means some corpus records could not be searched
	// and were skipped.
	WarnMalformedRecords WarningKind = "malformed_records"
)

// Warning reports a problem that did not stop the search.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
	Count   int         `json:"count,omitempty"`
}

// Result is the outcome of a search. Records are in corpus order.
type Result struct {
	Records   []song.Record `json:"records"`
	Warnings  []Warning     `json:"warnings,omitempty"`
	Truncated bool          `json:"truncated"`
}

// Index searches one corpus snapshot, resolving artist filters against one
// graph snapshot. It holds no mutable state and is safe for concurrent use.
type Index struct {
	corpus *song.Corpus
	graph  *artist.Graph
	logger *slog.Logger
}

// NewIndex creates an index. A nil graph disables line-up aware artist
// matching.
func NewIndex(corpus *song.Corpus, graph *artist.Graph, logger *slog.Logger) *Index {
	if graph == nil {
		graph = artist.Empty()
	}
	return &Index{
		corpus: corpus,
		graph:  graph,
		logger: logger.With("component", "search"),
	}
}

// SearchAnime returns the songs whose anime canonical or romaji name
// matches text and whose type is allowed, in corpus order, stopping once
// MaxResults records are collected.
func (ix *Index) SearchAnime(text string, opts Options) (Result, error) {
	p, err := match.Compile(text, opts.matchOptions())
	if err != nil {
		return Result{}, fmt.Errorf("compiling anime search: %w", err)
	}

	var res Result
	if opts.SongTypes.Empty() {
		res.Warnings = append(res.Warnings, emptyTypesWarning())
		return res, nil
	}
	limit := limitOf(opts.MaxResults)

	malformed := 0
	ix.corpus.Each(func(r *song.Record) bool {
		if err := r.Validate(); err != nil {
			malformed++
			ix.logger.Debug("skipping malformed record", "song_id", r.Song.ID, "error", err)
			return true
		}
		if !opts.SongTypes.Has(r.Song.Type) {
			return true
		}
		if !p.MatchAny(r.Anime.SearchNames(), opts.CaseSensitive) {
			return true
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

func limitOf(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	return n
}

func emptyTypesWarning() Warning {
	return Warning{
		Kind:    WarnEmptySongTypes,
		Message: "no song types are allowed, so no songs can match",
	}
}

func malformedWarning(n int) Warning {
	return Warning{
		Kind:    WarnMalformedRecords,
		Message: fmt.Sprintf("%d malformed records were skipped", n),
		Count:   n,
	}
}
