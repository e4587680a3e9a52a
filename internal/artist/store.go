package artist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sydlexius/anisongdb/internal/event"
)

// ChangeSet lists the entities added by one committed transaction, in the
// order they were added.
type ChangeSet struct {
	Artists []Artist
	LineUps []LineUp
	Edges   []Membership
}

// Empty reports whether the change set adds nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Artists) == 0 && len(c.LineUps) == 0 && len(c.Edges) == 0
}

// Sink persists committed change sets. A Sink error aborts the commit and
// the in-memory graph is left unchanged.
type Sink interface {
	Commit(ctx context.Context, changes ChangeSet) error
}

// Store holds the current artist graph. Readers take snapshots without
// locking; writers are serialized and publish a new snapshot on commit.
type Store struct {
	mu       sync.Mutex
	current  atomic.Pointer[Graph]
	sink     Sink
	eventBus *event.Bus
	logger   *slog.Logger
}

// NewStore creates a store seeded with g. sink and bus may be nil.
func NewStore(g *Graph, sink Sink, bus *event.Bus, logger *slog.Logger) *Store {
	if g == nil {
		g = Empty()
	}
	s := &Store{
		sink:     sink,
		eventBus: bus,
		logger:   logger.With("component", "artist-store"),
	}
	s.current.Store(g)
	return s
}

// Snapshot returns the last committed graph.
func (s *Store) Snapshot() *Graph {
	return s.current.Load()
}

// Reset replaces the current graph, for example after reloading it from
// the database. It waits for any running transaction to finish.
func (s *Store) Reset(g *Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(g)
}

// Update runs fn as one transaction against a private copy of the current
// graph. If fn succeeds, the resulting graph is validated, handed to the
// sink and then published. Only one transaction runs at a time.
func (s *Store) Update(ctx context.Context, fn func(tx *Txn) error) (ChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.current.Load()
	tx := newTxn(base)
	if err := fn(tx); err != nil {
		return ChangeSet{}, err
	}
	if tx.changes.Empty() {
		return ChangeSet{}, nil
	}

	next, err := NewGraph(tx.artists, tx.lineUps, tx.edges)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("validating transaction: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return ChangeSet{}, err
	}
	if s.sink != nil {
		if err := s.sink.Commit(ctx, tx.changes); err != nil {
			return ChangeSet{}, fmt.Errorf("persisting artist changes: %w", err)
		}
	}

	s.current.Store(next)
	s.logger.Debug("artist graph updated",
		"artists_added", len(tx.changes.Artists),
		"line_ups_added", len(tx.changes.LineUps),
		"edges_added", len(tx.changes.Edges))

	for _, a := range tx.changes.Artists {
		s.eventBus.Publish(event.Event{
			Type: event.ArtistCreated,
			Data: map[string]any{"artist_id": a.ID, "name": a.Name()},
		})
	}
	return tx.changes, nil
}

// Txn is a pending set of graph mutations. It is only valid inside the
// function passed to Store.Update.
type Txn struct {
	base    *Graph
	artists []Artist
	byID    map[int64]int
	lineUps []LineUp
	counts  map[int64]int
	edges   []Membership
	edgeSet map[Membership]struct{}
	maxID   int64
	changes ChangeSet
}

func newTxn(g *Graph) *Txn {
	tx := &Txn{
		base:    g,
		artists: g.Artists(),
		byID:    make(map[int64]int, g.Len()),
		counts:  make(map[int64]int),
		edges:   g.Edges(),
		edgeSet: make(map[Membership]struct{}, len(g.edges)),
		maxID:   g.MaxID(),
	}
	for i, a := range tx.artists {
		tx.byID[a.ID] = i
	}
	for id, ls := range g.lineUps {
		tx.lineUps = append(tx.lineUps, ls...)
		tx.counts[id] = len(ls)
	}
	for _, m := range tx.edges {
		tx.edgeSet[m] = struct{}{}
	}
	return tx
}

// InsertArtist adds a new person artist and returns its ID, one above the
// highest existing ID. The first name is the canonical one.
func (tx *Txn) InsertArtist(names []string, isVocalist, isComposer bool) (int64, error) {
	id := tx.maxID + 1
	err := tx.PutArtist(Artist{
		ID:         id,
		Names:      names,
		IsVocalist: isVocalist,
		IsComposer: isComposer,
		Type:       TypePerson,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// PutArtist adds an artist with a caller-chosen ID. Repeated names are
// dropped, keeping the first occurrence.
func (tx *Txn) PutArtist(a Artist) error {
	const op = "inserting artist"
	if len(a.Names) == 0 {
		return invariantf(op, "artist %d has no names", a.ID)
	}
	if _, dup := tx.byID[a.ID]; dup {
		return invariantf(op, "duplicate artist id %d", a.ID)
	}
	if a.Type == "" {
		a.Type = TypePerson
	}
	a = a.clone()
	a.Names = uniqueNames(a.Names)
	tx.byID[a.ID] = len(tx.artists)
	tx.artists = append(tx.artists, a)
	tx.maxID = max(tx.maxID, a.ID)
	tx.changes.Artists = append(tx.changes.Artists, a)
	return nil
}

// InsertLineUp registers the next line-up of an artist. lineUpID must equal
// the number of line-ups the artist already has.
func (tx *Txn) InsertLineUp(artistID int64, lineUpID int, typ Type) error {
	const op = "inserting line-up"
	if _, ok := tx.byID[artistID]; !ok {
		return fmt.Errorf("%s: %w: %d", op, ErrNotFound, artistID)
	}
	if next := tx.counts[artistID]; lineUpID != next {
		return invariantf(op, "artist %d: line-up id %d given, next dense id is %d", artistID, lineUpID, next)
	}
	if typ == "" {
		typ = TypeGroup
	}
	l := LineUp{ArtistID: artistID, LineUpID: lineUpID, Type: typ}
	tx.lineUps = append(tx.lineUps, l)
	tx.counts[artistID]++
	tx.changes.LineUps = append(tx.changes.LineUps, l)
	return nil
}

// NextLineUp registers a new line-up with the next dense ID and returns it.
func (tx *Txn) NextLineUp(artistID int64, typ Type) (int, error) {
	id := tx.counts[artistID]
	if err := tx.InsertLineUp(artistID, id, typ); err != nil {
		return 0, err
	}
	return id, nil
}

// AddMember adds one membership edge. Adding an existing edge fails with
// ErrDuplicateEdge.
func (tx *Txn) AddMember(groupID int64, groupLineUpID int, memberID int64, memberLineUpID int) error {
	const op = "adding member"
	m := Membership{
		GroupID:        groupID,
		GroupLineUpID:  groupLineUpID,
		MemberID:       memberID,
		MemberLineUpID: memberLineUpID,
	}
	if _, ok := tx.byID[groupID]; !ok {
		return fmt.Errorf("%s: group %w: %d", op, ErrNotFound, groupID)
	}
	if _, ok := tx.byID[memberID]; !ok {
		return fmt.Errorf("%s: member %w: %d", op, ErrNotFound, memberID)
	}
	if groupID == memberID {
		return invariantf(op, "artist %d cannot be a member of itself", groupID)
	}
	if groupLineUpID < 0 || groupLineUpID >= tx.counts[groupID] {
		return invariantf(op, "group %d has no line-up %d", groupID, groupLineUpID)
	}
	if memberLineUpID != NoLineUp && (memberLineUpID < 0 || memberLineUpID >= tx.counts[memberID]) {
		return invariantf(op, "member %d has no line-up %d", memberID, memberLineUpID)
	}
	if _, dup := tx.edgeSet[m]; dup {
		return duplicateEdge(op, m)
	}
	tx.edgeSet[m] = struct{}{}
	tx.edges = append(tx.edges, m)
	tx.changes.Edges = append(tx.changes.Edges, m)
	return nil
}

// Base returns the committed graph the transaction started from. No other
// transaction can commit while this one runs, so it is the latest graph.
func (tx *Txn) Base() *Graph {
	return tx.base
}

// Artist returns an artist as seen by this transaction.
func (tx *Txn) Artist(id int64) (Artist, bool) {
	i, ok := tx.byID[id]
	if !ok {
		return Artist{}, false
	}
	return tx.artists[i].clone(), true
}

// LineUpCount returns how many line-ups the artist has in this transaction.
func (tx *Txn) LineUpCount(artistID int64) int {
	return tx.counts[artistID]
}
