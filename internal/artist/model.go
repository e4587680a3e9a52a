package artist

import (
	"fmt"
	"strings"
)

// NoLineUp is the line-up ID of a reference that does not point at a
// specific line-up, either because the artist is not a group or because the
// whole group is meant.
const NoLineUp = -1

// Type discriminates the kind of artist.
type Type string

// Artist types.
const (
	TypePerson    Type = "person"
	TypeGroup     Type = "group"
	TypeChoir     Type = "choir"
	TypeOrchestra Type = "orchestra"
)

// ParseType converts a stored or user-supplied string into a Type.
// Empty input maps to TypePerson.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypePerson, nil
	case TypePerson, TypeGroup, TypeChoir, TypeOrchestra:
		return t, nil
	default:
		return "", fmt.Errorf("unknown artist type %q", s)
	}
}

// Artist is one artist identity. Names are ordered; the first is the
// canonical display name.
type Artist struct {
	ID         int64    `json:"id"`
	Names      []string `json:"names"`
	IsVocalist bool     `json:"vocalist"`
	IsComposer bool     `json:"composer"`
	Type       Type     `json:"type"`
}

// Name returns the canonical display name.
func (a Artist) Name() string {
	if len(a.Names) == 0 {
		return ""
	}
	return a.Names[0]
}

func (a Artist) clone() Artist {
	a.Names = append([]string(nil), a.Names...)
	return a
}

// uniqueNames filters names in place, keeping the first occurrence of each.
func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// LineUp is one historical roster of a group. LineUpID is local to the
// owning artist and dense from 0.
type LineUp struct {
	ArtistID int64 `json:"artist_id"`
	LineUpID int   `json:"line_up_id"`
	Type     Type  `json:"type"`
}

// LineUpRef is a line-up-qualified artist reference. LineUpID is NoLineUp
// when no specific line-up applies.
type LineUpRef struct {
	ArtistID int64 `json:"artist_id"`
	LineUpID int   `json:"line_up_id"`
}

func (r LineUpRef) String() string {
	return fmt.Sprintf("%d/%d", r.ArtistID, r.LineUpID)
}

// Membership is one edge of the graph: the member, as constituted in its own
// line-up, belongs to a group line-up.
type Membership struct {
	GroupID        int64 `json:"group_id"`
	GroupLineUpID  int   `json:"group_line_up_id"`
	MemberID       int64 `json:"member_id"`
	MemberLineUpID int   `json:"member_line_up_id"`
}

// Group returns the group side of the edge.
func (m Membership) Group() LineUpRef {
	return LineUpRef{ArtistID: m.GroupID, LineUpID: m.GroupLineUpID}
}

// Member returns the member side of the edge.
func (m Membership) Member() LineUpRef {
	return LineUpRef{ArtistID: m.MemberID, LineUpID: m.MemberLineUpID}
}

func (m Membership) String() string {
	return fmt.Sprintf("%d/%d <- %d/%d", m.GroupID, m.GroupLineUpID, m.MemberID, m.MemberLineUpID)
}
