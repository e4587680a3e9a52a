package artist

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sydlexius/anisongdb/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestService_CommitAndLoadGraph(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	store := NewStore(Empty(), svc, nil, testLogger())
	_, err := store.Update(ctx, func(tx *Txn) error {
		for _, a := range testGraph(t).Artists() {
			if err := tx.PutArtist(a); err != nil {
				return err
			}
		}
		for _, id := range []int64{5, 5, 9} {
			if _, err := tx.NextLineUp(id, TypeGroup); err != nil {
				return err
			}
		}
		for _, m := range testGraph(t).Edges() {
			if err := tx.AddMember(m.GroupID, m.GroupLineUpID, m.MemberID, m.MemberLineUpID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := svc.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	want := store.Snapshot()

	if diff := cmp.Diff(want.Artists(), loaded.Artists()); diff != "" {
		t.Errorf("artists mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Edges(), loaded.Edges()); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.LineUps(5), loaded.LineUps(5)); diff != "" {
		t.Errorf("line-ups mismatch (-want +got):\n%s", diff)
	}

	n, err := svc.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 5 {
		t.Errorf("Count = %d, want 5", n)
	}
}

func TestService_NameOrderPreserved(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	names := []string{"Zeta", "Alpha", "Mu"}
	if err := svc.Commit(ctx, ChangeSet{Artists: []Artist{{ID: 1, Names: names, Type: TypePerson}}}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	g, err := svc.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	a, ok := g.Artist(1)
	if !ok {
		t.Fatal("artist 1 not loaded")
	}
	if diff := cmp.Diff(names, a.Names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestService_LoadGraphRejectsGappedLineUps(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	stmts := []string{
		`INSERT INTO artists (id, artist_type) VALUES (1, 'group')`,
		`INSERT INTO artist_names (artist_id, name) VALUES (1, 'Gap Band')`,
		`INSERT INTO line_ups (artist_id, line_up_id) VALUES (1, 0)`,
		`INSERT INTO line_ups (artist_id, line_up_id) VALUES (1, 2)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}

	_, err := NewService(db).LoadGraph(ctx)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("LoadGraph error = %v, want ErrInvariant", err)
	}
}

func TestService_CommitRollsBackOnConflict(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	err := svc.Commit(ctx, ChangeSet{Artists: []Artist{
		{ID: 1, Names: []string{"One"}, Type: TypePerson},
		{ID: 1, Names: []string{"One again"}, Type: TypePerson},
	}})
	if err == nil {
		t.Fatal("expected primary key conflict")
	}

	n, err := svc.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d after rollback, want 0", n)
	}
}
