package resolver

import (
	"context"
	"fmt"

	"github.com/sydlexius/anisongdb/internal/artist"
)

// MemberRef returns the reference to record when memberID joins a group.
// A member without line-ups is referenced with artist.NoLineUp, a member
// with exactly one line-up with line-up 0. A member with several line-ups
// needs an explicit choice; without one the error is an
// *AmbiguousLineUpError listing them.
func MemberRef(g *artist.Graph, memberID int64, explicit *int) (artist.LineUpRef, error) {
	a, ok := g.Artist(memberID)
	if !ok {
		return artist.LineUpRef{}, fmt.Errorf("member %w: %d", artist.ErrNotFound, memberID)
	}
	count := len(g.LineUps(memberID))

	if explicit != nil {
		id := *explicit
		if id != artist.NoLineUp && (id < 0 || id >= count) {
			return artist.LineUpRef{}, fmt.Errorf("member %d %s has no line-up %d", memberID, a.Name(), id)
		}
		return artist.LineUpRef{ArtistID: memberID, LineUpID: id}, nil
	}

	switch count {
	case 0:
		return artist.LineUpRef{ArtistID: memberID, LineUpID: artist.NoLineUp}, nil
	case 1:
		return artist.LineUpRef{ArtistID: memberID, LineUpID: 0}, nil
	default:
		return artist.LineUpRef{}, &AmbiguousLineUpError{
			ArtistID: memberID,
			Name:     a.Name(),
			Options:  lineUpOptions(g, memberID),
		}
	}
}

// MemberSpec names one member of a line-up being built. LineUp selects the
// member's own line-up when it has several.
type MemberSpec struct {
	Name   string `json:"name"`
	LineUp *int   `json:"line_up,omitempty"`
}

// ResolveLineUp resolves each member name and applies the member line-up
// rule, returning the references in input order. It stops at the first
// failure.
func (r *Resolver) ResolveLineUp(ctx context.Context, members []MemberSpec, opts Options) ([]artist.LineUpRef, error) {
	refs := make([]artist.LineUpRef, 0, len(members))
	for _, m := range members {
		res, err := r.Resolve(ctx, m.Name, opts)
		if err != nil {
			return nil, err
		}
		ref, err := MemberRef(r.store.Snapshot(), res.ArtistID, m.LineUp)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", m.Name, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// AddLineUp appends a new line-up to a group with the given members and
// returns its ID.
func (r *Resolver) AddLineUp(ctx context.Context, groupID int64, typ artist.Type, members []artist.LineUpRef) (int, error) {
	var lineUpID int
	_, err := r.store.Update(ctx, func(tx *artist.Txn) error {
		var err error
		lineUpID, err = tx.NextLineUp(groupID, typ)
		if err != nil {
			return err
		}
		for _, m := range members {
			if err := tx.AddMember(groupID, lineUpID, m.ArtistID, m.LineUpID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("adding line-up to group %d: %w", groupID, err)
	}
	return lineUpID, nil
}
