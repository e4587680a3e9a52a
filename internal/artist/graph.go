package artist

import (
	"fmt"
	"slices"
)

// Graph is an immutable snapshot of artists, their line-ups and the
// membership edges between them. The edge list is the source of truth; the
// group and member indexes are derived from it when the graph is built.
type Graph struct {
	artists []Artist
	byID    map[int64]int
	lineUps map[int64][]LineUp
	edges   []Membership

	membersOf map[LineUpRef][]Membership
	groupsOf  map[int64][]LineUpRef
	groupSide map[int64]bool
}

// Empty returns a graph with no artists.
func Empty() *Graph {
	g, _ := NewGraph(nil, nil, nil)
	return g
}

// NewGraph validates the given entities and builds both adjacency indexes.
// Artists keep the given order. Line-ups may be given in any order but must
// be dense per artist. Edges keep the given order.
func NewGraph(artists []Artist, lineUps []LineUp, edges []Membership) (*Graph, error) {
	const op = "building artist graph"

	g := &Graph{
		artists:   make([]Artist, 0, len(artists)),
		byID:      make(map[int64]int, len(artists)),
		lineUps:   make(map[int64][]LineUp),
		edges:     make([]Membership, 0, len(edges)),
		membersOf: make(map[LineUpRef][]Membership),
		groupsOf:  make(map[int64][]LineUpRef),
		groupSide: make(map[int64]bool),
	}

	for _, a := range artists {
		if _, dup := g.byID[a.ID]; dup {
			return nil, invariantf(op, "duplicate artist id %d", a.ID)
		}
		if len(a.Names) == 0 {
			return nil, invariantf(op, "artist %d has no names", a.ID)
		}
		if n := len(uniqueNames(slices.Clone(a.Names))); n != len(a.Names) {
			return nil, invariantf(op, "artist %d has duplicate names", a.ID)
		}
		if a.Type == "" {
			a.Type = TypePerson
		}
		g.byID[a.ID] = len(g.artists)
		g.artists = append(g.artists, a.clone())
	}

	for _, l := range lineUps {
		if _, ok := g.byID[l.ArtistID]; !ok {
			return nil, invariantf(op, "line-up %d of unknown artist %d", l.LineUpID, l.ArtistID)
		}
		if l.Type == "" {
			l.Type = TypeGroup
		}
		g.lineUps[l.ArtistID] = append(g.lineUps[l.ArtistID], l)
	}
	for id, ls := range g.lineUps {
		slices.SortStableFunc(ls, func(a, b LineUp) int { return a.LineUpID - b.LineUpID })
		for i, l := range ls {
			if l.LineUpID != i {
				return nil, invariantf(op, "artist %d line-up ids are not dense: found %d at position %d", id, l.LineUpID, i)
			}
		}
	}

	seen := make(map[Membership]struct{}, len(edges))
	for _, m := range edges {
		if err := g.checkEdge(op, m); err != nil {
			return nil, err
		}
		if _, dup := seen[m]; dup {
			return nil, duplicateEdge(op, m)
		}
		seen[m] = struct{}{}

		g.edges = append(g.edges, m)
		g.membersOf[m.Group()] = append(g.membersOf[m.Group()], m)
		g.groupsOf[m.MemberID] = append(g.groupsOf[m.MemberID], m.Group())
		g.groupSide[m.GroupID] = true
	}

	return g, nil
}

func (g *Graph) checkEdge(op string, m Membership) error {
	if m.GroupID == m.MemberID {
		return invariantf(op, "artist %d cannot be a member of itself", m.GroupID)
	}
	if _, ok := g.byID[m.GroupID]; !ok {
		return invariantf(op, "edge %s: unknown group %d", m, m.GroupID)
	}
	if _, ok := g.byID[m.MemberID]; !ok {
		return invariantf(op, "edge %s: unknown member %d", m, m.MemberID)
	}
	if !g.hasLineUp(m.GroupID, m.GroupLineUpID) {
		return invariantf(op, "edge %s: group %d has no line-up %d", m, m.GroupID, m.GroupLineUpID)
	}
	if m.MemberLineUpID != NoLineUp && !g.hasLineUp(m.MemberID, m.MemberLineUpID) {
		return invariantf(op, "edge %s: member %d has no line-up %d", m, m.MemberID, m.MemberLineUpID)
	}
	return nil
}

func (g *Graph) hasLineUp(artistID int64, lineUpID int) bool {
	return lineUpID >= 0 && lineUpID < len(g.lineUps[artistID])
}

// Len returns the number of artists.
func (g *Graph) Len() int { return len(g.artists) }

// Artist returns the artist with the given ID.
func (g *Graph) Artist(id int64) (Artist, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Artist{}, false
	}
	return g.artists[i].clone(), true
}

// Artists returns every artist in insertion order.
func (g *Graph) Artists() []Artist {
	out := make([]Artist, len(g.artists))
	for i, a := range g.artists {
		out[i] = a.clone()
	}
	return out
}

// Each calls fn for every artist in insertion order without copying. fn
// must not modify the artist. Iteration stops when fn returns false.
func (g *Graph) Each(fn func(a *Artist) bool) {
	for i := range g.artists {
		if !fn(&g.artists[i]) {
			return
		}
	}
}

// MaxID returns the highest artist ID, or 0 for an empty graph.
func (g *Graph) MaxID() int64 {
	var maxID int64
	for _, a := range g.artists {
		maxID = max(maxID, a.ID)
	}
	return maxID
}

// LineUps returns the line-ups of an artist ordered by line-up ID.
func (g *Graph) LineUps(artistID int64) []LineUp {
	return slices.Clone(g.lineUps[artistID])
}

// Edges returns every membership edge in insertion order.
func (g *Graph) Edges() []Membership {
	return slices.Clone(g.edges)
}

// Members returns the members of one line-up of a group, in edge order.
func (g *Graph) Members(groupID int64, lineUpID int) []Membership {
	return slices.Clone(g.membersOf[LineUpRef{ArtistID: groupID, LineUpID: lineUpID}])
}

// AllMembers returns the members of every line-up of a group, walking
// line-ups in ID order and keeping only the first edge seen for each member.
// A member that rejoins a later line-up is therefore attributed to the
// earliest line-up it appears in.
func (g *Graph) AllMembers(groupID int64) []Membership {
	var out []Membership
	seen := make(map[int64]bool)
	for _, l := range g.lineUps[groupID] {
		for _, m := range g.membersOf[LineUpRef{ArtistID: groupID, LineUpID: l.LineUpID}] {
			if seen[m.MemberID] {
				continue
			}
			seen[m.MemberID] = true
			out = append(out, m)
		}
	}
	return out
}

// Groups returns every (group, group line-up) pair the artist belongs to.
func (g *Graph) Groups(artistID int64) []LineUpRef {
	return slices.Clone(g.groupsOf[artistID])
}

// IsGroup reports whether at least one edge names the artist on the group
// side.
func (g *Graph) IsGroup(artistID int64) bool {
	return g.groupSide[artistID]
}

// Flatten returns the IDs of the leaf artists reachable from ref, walking
// through nested groups. A reference to an artist without members yields
// that artist. NoLineUp on a group means every line-up. Each ID appears
// once, in discovery order.
func (g *Graph) Flatten(ref LineUpRef) []int64 {
	var out []int64
	added := make(map[int64]bool)
	visited := make(map[LineUpRef]bool)

	var walk func(r LineUpRef)
	walk = func(r LineUpRef) {
		if visited[r] {
			return
		}
		visited[r] = true

		var members []Membership
		if r.LineUpID == NoLineUp {
			members = g.AllMembers(r.ArtistID)
		} else {
			members = g.membersOf[r]
		}
		if len(members) == 0 {
			if !added[r.ArtistID] {
				added[r.ArtistID] = true
				out = append(out, r.ArtistID)
			}
			return
		}
		for _, m := range members {
			walk(m.Member())
		}
	}
	walk(ref)
	return out
}

// Names returns the canonical names of the given artists, skipping unknown
// IDs.
func (g *Graph) Names(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if i, ok := g.byID[id]; ok {
			out = append(out, g.artists[i].Name())
		}
	}
	return out
}

// CrossCheck verifies that an edge list read from the group side and one
// read from the member side describe the same edges. It fails on the first
// edge present in one view but not the other.
func CrossCheck(groupView, memberView []Membership) error {
	const op = "cross-checking membership views"

	fromGroups := make(map[Membership]int, len(groupView))
	for _, m := range groupView {
		fromGroups[m]++
	}
	fromMembers := make(map[Membership]int, len(memberView))
	for _, m := range memberView {
		fromMembers[m]++
	}

	for _, m := range groupView {
		if fromMembers[m] != fromGroups[m] {
			return invariantf(op, "edge %s seen %d times from groups but %d times from members", m, fromGroups[m], fromMembers[m])
		}
	}
	for _, m := range memberView {
		if _, ok := fromGroups[m]; !ok {
			return invariantf(op, "edge %s missing from group view", m)
		}
	}
	if len(groupView) != len(memberView) {
		return invariantf(op, "group view has %d edges, member view has %d", len(groupView), len(memberView))
	}
	return nil
}

// String summarizes the graph for logging.
func (g *Graph) String() string {
	return fmt.Sprintf("artist graph: %d artists, %d groups, %d edges", len(g.artists), len(g.groupSide), len(g.edges))
}
