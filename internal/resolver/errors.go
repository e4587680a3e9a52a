package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sydlexius/anisongdb/internal/artist"
)

var (
	// ErrNotFound is returned when a name matches no artist and creation is
	// not allowed.
	ErrNotFound = errors.New("artist name not found")

	// ErrAmbiguous is returned when a name matches several artists and no
	// policy picked one.
	ErrAmbiguous = errors.New("artist name is ambiguous")

	// ErrAmbiguousLineUp is returned when a member with several line-ups is
	// added to a group without saying which line-up is meant.
	ErrAmbiguousLineUp = errors.New("member line-up is ambiguous")

	// ErrInvalidDecision is returned when a policy picks an artist that is
	// not a candidate, or asks to create one when creation is not allowed.
	ErrInvalidDecision = errors.New("invalid disambiguation decision")
)

// AmbiguousError carries the candidates of an unresolved name.
type AmbiguousError struct {
	Name       string
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		ids[i] = fmt.Sprintf("%d %s", c.ArtistID, c.Name)
	}
	return fmt.Sprintf("%v: %q matches %d artists (%s)", ErrAmbiguous, e.Name, len(e.Candidates), strings.Join(ids, ", "))
}

func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }

// LineUpOption describes one line-up a caller can choose from.
type LineUpOption struct {
	LineUpID    int      `json:"line_up_id"`
	MemberNames []string `json:"member_names"`
}

// AmbiguousLineUpError lists the line-ups of a member so the caller can pick
// one explicitly.
type AmbiguousLineUpError struct {
	ArtistID int64
	Name     string
	Options  []LineUpOption
}

func (e *AmbiguousLineUpError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: %d %s has %d line-ups", ErrAmbiguousLineUp, e.ArtistID, e.Name, len(e.Options))
	for _, o := range e.Options {
		fmt.Fprintf(&b, "; %d: %s", o.LineUpID, strings.Join(o.MemberNames, ", "))
	}
	return b.String()
}

func (e *AmbiguousLineUpError) Unwrap() error { return ErrAmbiguousLineUp }

func lineUpOptions(g *artist.Graph, artistID int64) []LineUpOption {
	lineUps := g.LineUps(artistID)
	opts := make([]LineUpOption, len(lineUps))
	for i, l := range lineUps {
		members := g.Members(artistID, l.LineUpID)
		ids := make([]int64, len(members))
		for j, m := range members {
			ids[j] = m.MemberID
		}
		opts[i] = LineUpOption{LineUpID: l.LineUpID, MemberNames: g.Names(ids)}
	}
	return opts
}
