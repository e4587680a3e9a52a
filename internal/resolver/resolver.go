// Package resolver maps free-text artist names to artist identities in the
// graph, and builds line-up-qualified member references.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/match"
)

const (
	// DefaultThreshold is the candidate count above which partial matching
	// is narrowed to full matching.
	DefaultThreshold = 10

	// ExampleLimit is how many example anime are attached to a candidate.
	ExampleLimit = 3
)

// Candidate is one artist that matched a name.
type Candidate struct {
	ArtistID int64    `json:"artist_id"`
	Name     string   `json:"name"`
	Names    []string `json:"names"`
	Examples []string `json:"examples"`
}

// ExampleSource supplies context for candidates, typically the anime an
// artist already appears on.
type ExampleSource interface {
	ExampleAnime(artistID int64, limit int) []string
}

// Decision is a policy's answer for an ambiguous name: either one of the
// candidate IDs or a request to create a new artist.
type Decision struct {
	ArtistID  int64
	CreateNew bool
}

// Policy picks between several candidates. Implementations may prompt a
// human or apply an automatic rule.
type Policy interface {
	Choose(ctx context.Context, name string, candidates []Candidate) (Decision, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, name string, candidates []Candidate) (Decision, error)

// Choose calls f.
func (f PolicyFunc) Choose(ctx context.Context, name string, candidates []Candidate) (Decision, error) {
	return f(ctx, name, candidates)
}

// Options controls one resolution.
type Options struct {
	// AllowCreate creates a new artist named after the input when nothing
	// matches or when the policy asks for it.
	AllowCreate bool
	// Policy is consulted when several artists match. Without one the
	// result is an *AmbiguousError.
	Policy Policy
	// IsVocalist and IsComposer are the capability flags of a created
	// artist.
	IsVocalist bool
	IsComposer bool
}

// DefaultOptions creates vocalists and consults no policy.
func DefaultOptions() Options {
	return Options{IsVocalist: true}
}

// Result is the outcome of Resolve.
type Result struct {
	ArtistID   int64       `json:"artist_id"`
	Created    bool        `json:"created"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Resolver resolves names against the graph held by a store.
type Resolver struct {
	store     *artist.Store
	examples  ExampleSource
	threshold int
	logger    *slog.Logger
}

// New creates a resolver. examples may be nil. A threshold of zero or less
// uses DefaultThreshold.
func New(store *artist.Store, examples ExampleSource, threshold int, logger *slog.Logger) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Resolver{
		store:     store,
		examples:  examples,
		threshold: threshold,
		logger:    logger.With("component", "resolver"),
	}
}

// Candidates returns every artist with a name matching the input, in graph
// order, each with up to ExampleLimit example anime. Matching is partial
// and case-insensitive; above the threshold it is narrowed to full matches.
func (r *Resolver) Candidates(name string) ([]Candidate, error) {
	return r.candidates(r.store.Snapshot(), name)
}

// CandidatesIn is Candidates against a graph snapshot the caller already
// holds, so follow-up lookups see the same graph.
func (r *Resolver) CandidatesIn(g *artist.Graph, name string) ([]Candidate, error) {
	return r.candidates(g, name)
}

func (r *Resolver) candidates(g *artist.Graph, name string) ([]Candidate, error) {
	ids, err := matchIDs(g, name, match.Options{IgnoreSpecialCharacters: true, PartialMatch: true})
	if err != nil {
		return nil, err
	}
	if len(ids) > r.threshold {
		r.logger.Debug("too many partial matches, narrowing to full match", "name", name, "matches", len(ids))
		ids, err = matchIDs(g, name, match.Options{IgnoreSpecialCharacters: true, PartialMatch: false})
		if err != nil {
			return nil, err
		}
	}

	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		a, _ := g.Artist(id)
		c := Candidate{ArtistID: id, Name: a.Name(), Names: a.Names}
		if r.examples != nil {
			c.Examples = r.examples.ExampleAnime(id, ExampleLimit)
		}
		out = append(out, c)
	}
	return out, nil
}

func matchIDs(g *artist.Graph, name string, opts match.Options) ([]int64, error) {
	p, err := match.Compile(name, opts)
	if err != nil {
		return nil, err
	}
	var ids []int64
	g.Each(func(a *artist.Artist) bool {
		if p.MatchAny(a.Names, false) {
			ids = append(ids, a.ID)
		}
		return true
	})
	return ids, nil
}

// Resolve maps name to a single artist ID. With no match it fails with
// ErrNotFound unless creation is allowed. With several matches the policy
// decides; without a policy the error is an *AmbiguousError.
func (r *Resolver) Resolve(ctx context.Context, name string, opts Options) (Result, error) {
	candidates, err := r.Candidates(name)
	if err != nil {
		return Result{}, err
	}

	switch len(candidates) {
	case 0:
		if !opts.AllowCreate {
			return Result{}, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return r.create(ctx, name, opts, nil)
	case 1:
		return Result{ArtistID: candidates[0].ArtistID, Candidates: candidates}, nil
	}

	if opts.Policy == nil {
		return Result{Candidates: candidates}, &AmbiguousError{Name: name, Candidates: candidates}
	}
	d, err := opts.Policy.Choose(ctx, name, candidates)
	if err != nil {
		return Result{Candidates: candidates}, fmt.Errorf("disambiguating %q: %w", name, err)
	}
	if d.CreateNew {
		if !opts.AllowCreate {
			return Result{Candidates: candidates}, fmt.Errorf("%w: creation of %q not allowed", ErrInvalidDecision, name)
		}
		return r.create(ctx, name, opts, candidates)
	}
	if !slices.ContainsFunc(candidates, func(c Candidate) bool { return c.ArtistID == d.ArtistID }) {
		return Result{Candidates: candidates}, fmt.Errorf("%w: %d is not a candidate for %q", ErrInvalidDecision, d.ArtistID, name)
	}
	return Result{ArtistID: d.ArtistID, Candidates: candidates}, nil
}

// create inserts an artist named name. seen are the candidates the caller
// decided against; if another writer added a matching artist since they were
// computed, nothing is created and the fresh matches are returned instead.
func (r *Resolver) create(ctx context.Context, name string, opts Options, seen []Candidate) (Result, error) {
	known := make(map[int64]bool, len(seen))
	for _, c := range seen {
		known[c.ArtistID] = true
	}

	var (
		id      int64
		current []Candidate
		raced   bool
	)
	_, err := r.store.Update(ctx, func(tx *artist.Txn) error {
		var err error
		current, err = r.candidates(tx.Base(), name)
		if err != nil {
			return err
		}
		raced = slices.ContainsFunc(current, func(c Candidate) bool { return !known[c.ArtistID] })
		if raced {
			return nil
		}
		id, err = tx.InsertArtist([]string{name}, opts.IsVocalist, opts.IsComposer)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("creating artist %q: %w", name, err)
	}

	if raced {
		r.logger.Debug("artist appeared while resolving, not creating", "name", name, "matches", len(current))
		if len(seen) == 0 && len(current) == 1 {
			return Result{ArtistID: current[0].ArtistID, Candidates: current}, nil
		}
		return Result{Candidates: current}, &AmbiguousError{Name: name, Candidates: current}
	}
	r.logger.Info("created artist", "name", name, "artist_id", id)
	return Result{ArtistID: id, Created: true, Candidates: seen}, nil
}
