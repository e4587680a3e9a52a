package artist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sydlexius/anisongdb/internal/database"
)

// Service persists the artist graph in SQLite. It implements Sink so a
// Store can write committed transactions through it.
type Service struct {
	db *sql.DB
}

// NewService creates an artist service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

var _ Sink = (*Service)(nil)

// Commit writes a change set in a single SQL transaction.
func (s *Service) Commit(ctx context.Context, changes ChangeSet) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, a := range changes.Artists {
			if err := insertArtist(ctx, tx, a); err != nil {
				return err
			}
		}
		for _, l := range changes.LineUps {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO line_ups (artist_id, line_up_id, line_up_type) VALUES (?, ?, ?)`,
				l.ArtistID, l.LineUpID, string(l.Type),
			); err != nil {
				return fmt.Errorf("inserting line-up %d of artist %d: %w", l.LineUpID, l.ArtistID, err)
			}
		}
		if len(changes.Edges) == 0 {
			return nil
		}

		var order int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(inserted_order), 0) FROM artist_members`,
		).Scan(&order); err != nil {
			return fmt.Errorf("reading member order: %w", err)
		}
		for _, m := range changes.Edges {
			order++
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO artist_members (group_id, group_line_up_id, member_id, member_line_up_id, inserted_order)
				VALUES (?, ?, ?, ?, ?)
			`, m.GroupID, m.GroupLineUpID, m.MemberID, m.MemberLineUpID, order); err != nil {
				return fmt.Errorf("inserting membership %s: %w", m, err)
			}
		}
		return nil
	})
}

func insertArtist(ctx context.Context, tx *sql.Tx, a Artist) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO artists (id, artist_type, vocalist, composer) VALUES (?, ?, ?, ?)`,
		a.ID, string(a.Type), boolToInt(a.IsVocalist), boolToInt(a.IsComposer),
	); err != nil {
		return fmt.Errorf("inserting artist %d: %w", a.ID, err)
	}
	for _, name := range a.Names {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artist_names (artist_id, name) VALUES (?, ?)`,
			a.ID, name,
		); err != nil {
			return fmt.Errorf("inserting name %q of artist %d: %w", name, a.ID, err)
		}
	}
	return nil
}

// LoadGraph reads every artist, line-up and membership edge and builds a
// validated Graph. Edges are read twice, once joined from the group side
// and once from the member side, and the two views must agree.
func (s *Service) LoadGraph(ctx context.Context) (*Graph, error) {
	artists, err := s.loadArtists(ctx)
	if err != nil {
		return nil, err
	}
	lineUps, err := s.loadLineUps(ctx)
	if err != nil {
		return nil, err
	}

	groupView, err := s.loadEdges(ctx, `
		SELECT a.id, m.group_line_up_id, m.member_id, m.member_line_up_id
		FROM artists a
		JOIN artist_members m ON m.group_id = a.id
		ORDER BY m.inserted_order`)
	if err != nil {
		return nil, fmt.Errorf("loading members of groups: %w", err)
	}
	memberView, err := s.loadEdges(ctx, `
		SELECT m.group_id, m.group_line_up_id, a.id, m.member_line_up_id
		FROM artists a
		JOIN artist_members m ON m.member_id = a.id
		ORDER BY m.inserted_order`)
	if err != nil {
		return nil, fmt.Errorf("loading groups of members: %w", err)
	}
	if err := CrossCheck(groupView, memberView); err != nil {
		return nil, err
	}

	return NewGraph(artists, lineUps, groupView)
}

func (s *Service) loadArtists(ctx context.Context) ([]Artist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, artist_type, vocalist, composer FROM artists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("loading artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var artists []Artist
	index := make(map[int64]int)
	for rows.Next() {
		var a Artist
		var typ string
		var vocalist, composer int
		if err := rows.Scan(&a.ID, &typ, &vocalist, &composer); err != nil {
			return nil, fmt.Errorf("scanning artist: %w", err)
		}
		if a.Type, err = ParseType(typ); err != nil {
			return nil, fmt.Errorf("artist %d: %w", a.ID, err)
		}
		a.IsVocalist = vocalist == 1
		a.IsComposer = composer == 1
		index[a.ID] = len(artists)
		artists = append(artists, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artists: %w", err)
	}

	nameRows, err := s.db.QueryContext(ctx,
		`SELECT artist_id, name FROM artist_names ORDER BY inserted_order`)
	if err != nil {
		return nil, fmt.Errorf("loading artist names: %w", err)
	}
	defer nameRows.Close() //nolint:errcheck

	for nameRows.Next() {
		var id int64
		var name string
		if err := nameRows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning artist name: %w", err)
		}
		if i, ok := index[id]; ok {
			artists[i].Names = append(artists[i].Names, name)
		}
	}
	if err := nameRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artist names: %w", err)
	}
	return artists, nil
}

func (s *Service) loadLineUps(ctx context.Context) ([]LineUp, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artist_id, line_up_id, line_up_type FROM line_ups ORDER BY artist_id, line_up_id`)
	if err != nil {
		return nil, fmt.Errorf("loading line-ups: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var lineUps []LineUp
	for rows.Next() {
		var l LineUp
		var typ string
		if err := rows.Scan(&l.ArtistID, &l.LineUpID, &typ); err != nil {
			return nil, fmt.Errorf("scanning line-up: %w", err)
		}
		if l.Type, err = ParseType(typ); err != nil {
			return nil, fmt.Errorf("line-up %d of artist %d: %w", l.LineUpID, l.ArtistID, err)
		}
		lineUps = append(lineUps, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating line-ups: %w", err)
	}
	return lineUps, nil
}

func (s *Service) loadEdges(ctx context.Context, query string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var edges []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.GroupID, &m.GroupLineUpID, &m.MemberID, &m.MemberLineUpID); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		edges = append(edges, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

// Count returns the number of stored artists.
func (s *Service) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artists`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting artists: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
