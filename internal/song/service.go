package song

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/database"
)

// Service persists anime, songs and song credits in SQLite.
type Service struct {
	db *sql.DB
}

// NewService creates a song service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// SaveAnime writes an anime and its songs in one transaction. An existing
// anime with the same AnnID is updated and its name, genre and tag sets are
// replaced. Songs with a zero ID are inserted and get their new ID assigned.
func (s *Service) SaveAnime(ctx context.Context, a *Anime, songs []Song) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO animes (ann_id, expand_name, english_name, japanese_name, romaji_name, vintage, anime_type)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ann_id) DO UPDATE SET
				expand_name = excluded.expand_name,
				english_name = excluded.english_name,
				japanese_name = excluded.japanese_name,
				romaji_name = excluded.romaji_name,
				vintage = excluded.vintage,
				anime_type = excluded.anime_type
		`, a.AnnID, a.Name, a.English, a.Japanese, a.Romaji, a.Vintage, a.Type); err != nil {
			return fmt.Errorf("saving anime %d: %w", a.AnnID, err)
		}

		sets := []struct {
			table, column string
			values        []string
		}{
			{"anime_alt_names", "name", a.AltNames},
			{"anime_genres", "genre", a.Genres},
			{"anime_tags", "tag", a.Tags},
		}
		for _, set := range sets {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+set.table+` WHERE ann_id = ?`, a.AnnID); err != nil {
				return fmt.Errorf("clearing %s of anime %d: %w", set.table, a.AnnID, err)
			}
			for _, v := range set.values {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO `+set.table+` (ann_id, `+set.column+`) VALUES (?, ?)`,
					a.AnnID, v,
				); err != nil {
					return fmt.Errorf("inserting %s %q of anime %d: %w", set.column, v, a.AnnID, err)
				}
			}
		}

		for i := range songs {
			sg := &songs[i]
			sg.AnnID = a.AnnID
			if err := insertSong(ctx, tx, sg); err != nil {
				return err
			}
			for _, role := range Roles {
				if err := replaceRefs(ctx, tx, sg.ID, role, sg.Refs(role)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func insertSong(ctx context.Context, tx *sql.Tx, sg *Song) error {
	if sg.ID != 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO songs (id, ann_song_id, ann_id, song_type, song_number, song_name, song_artist,
				song_difficulty, song_category, hq, mq, audio)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sg.ID, sg.AnnSongID, sg.AnnID, int(sg.Type), sg.Number, sg.Name, sg.Artist,
			sg.Difficulty, sg.Category, sg.Links.HQ, sg.Links.MQ, sg.Links.Audio)
		if err != nil {
			return fmt.Errorf("inserting song %d: %w", sg.ID, err)
		}
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO songs (ann_song_id, ann_id, song_type, song_number, song_name, song_artist,
			song_difficulty, song_category, hq, mq, audio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sg.AnnSongID, sg.AnnID, int(sg.Type), sg.Number, sg.Name, sg.Artist,
		sg.Difficulty, sg.Category, sg.Links.HQ, sg.Links.MQ, sg.Links.Audio)
	if err != nil {
		return fmt.Errorf("inserting song %q of anime %d: %w", sg.Name, sg.AnnID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading new song id: %w", err)
	}
	sg.ID = id
	return nil
}

func replaceRefs(ctx context.Context, tx *sql.Tx, songID int64, role Role, refs []artist.LineUpRef) error {
	table, err := role.table()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE song_id = ?`, songID); err != nil {
		return fmt.Errorf("clearing %s credits of song %d: %w", role, songID, err)
	}
	for i, ref := range dedupeRefs(append([]artist.LineUpRef(nil), refs...)) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (song_id, artist_id, line_up_id, position) VALUES (?, ?, ?, ?)`,
			songID, ref.ArtistID, ref.LineUpID, i,
		); err != nil {
			return fmt.Errorf("crediting %s %s on song %d: %w", role, ref, songID, err)
		}
	}
	return nil
}

// LinkArtists replaces the credits of one role on a song.
func (s *Service) LinkArtists(ctx context.Context, songID int64, role Role, refs []artist.LineUpRef) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs WHERE id = ?`, songID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking song %d: %w", songID, err)
		}
		if exists == 0 {
			return fmt.Errorf("song %d: %w", songID, ErrSongNotFound)
		}
		return replaceRefs(ctx, tx, songID, role, refs)
	})
}

// LoadCorpus reads every song joined with its anime and credits, in song ID
// order. Records are returned as stored; malformed ones are left for the
// search index to skip.
func (s *Service) LoadCorpus(ctx context.Context) (*Corpus, error) {
	animes, err := s.loadAnimes(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ann_song_id, ann_id, song_type, song_number, song_name, song_artist,
			song_difficulty, song_category, hq, mq, audio
		FROM songs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("loading songs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var records []Record
	index := make(map[int64]int)
	for rows.Next() {
		var sg Song
		var typ int
		var difficulty sql.NullFloat64
		var category, hq, mq, audio sql.NullString
		if err := rows.Scan(&sg.ID, &sg.AnnSongID, &sg.AnnID, &typ, &sg.Number, &sg.Name, &sg.Artist,
			&difficulty, &category, &hq, &mq, &audio); err != nil {
			return nil, fmt.Errorf("scanning song: %w", err)
		}
		sg.Type = Type(typ)
		sg.Difficulty = nullFloat(difficulty)
		sg.Category = nullString(category)
		sg.Links = Links{HQ: nullString(hq), MQ: nullString(mq), Audio: nullString(audio)}

		index[sg.ID] = len(records)
		records = append(records, Record{Anime: animes[sg.AnnID], Song: sg})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating songs: %w", err)
	}

	for _, role := range Roles {
		if err := s.loadRefs(ctx, role, records, index); err != nil {
			return nil, err
		}
	}
	for i := range records {
		sg := &records[i].Song
		sg.Artists = dedupeRefs(sg.Artists)
		sg.Composers = dedupeRefs(sg.Composers)
		sg.Arrangers = dedupeRefs(sg.Arrangers)
	}

	return NewCorpus(records), nil
}

func (s *Service) loadAnimes(ctx context.Context) (map[int64]*Anime, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ann_id, expand_name, english_name, japanese_name, romaji_name, vintage, anime_type
		FROM animes`)
	if err != nil {
		return nil, fmt.Errorf("loading animes: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	animes := make(map[int64]*Anime)
	for rows.Next() {
		var a Anime
		var en, jp, romaji, vintage, typ sql.NullString
		if err := rows.Scan(&a.AnnID, &a.Name, &en, &jp, &romaji, &vintage, &typ); err != nil {
			return nil, fmt.Errorf("scanning anime: %w", err)
		}
		a.English = nullString(en)
		a.Japanese = nullString(jp)
		a.Romaji = nullString(romaji)
		a.Vintage = nullString(vintage)
		a.Type = nullString(typ)
		animes[a.AnnID] = &a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating animes: %w", err)
	}

	sets := []struct {
		query string
		add   func(a *Anime, v string)
	}{
		{`SELECT ann_id, name FROM anime_alt_names ORDER BY rowid`, func(a *Anime, v string) { a.AltNames = append(a.AltNames, v) }},
		{`SELECT ann_id, genre FROM anime_genres ORDER BY rowid`, func(a *Anime, v string) { a.Genres = append(a.Genres, v) }},
		{`SELECT ann_id, tag FROM anime_tags ORDER BY rowid`, func(a *Anime, v string) { a.Tags = append(a.Tags, v) }},
	}
	for _, set := range sets {
		if err := scanPairs(ctx, s.db, set.query, func(annID int64, v string) {
			if a, ok := animes[annID]; ok {
				set.add(a, v)
			}
		}); err != nil {
			return nil, fmt.Errorf("loading anime attributes: %w", err)
		}
	}
	return animes, nil
}

func scanPairs(ctx context.Context, db *sql.DB, query string, fn func(int64, string)) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var id int64
		var v string
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		fn(id, v)
	}
	return rows.Err()
}

func (s *Service) loadRefs(ctx context.Context, role Role, records []Record, index map[int64]int) error {
	table, err := role.table()
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT song_id, artist_id, line_up_id FROM `+table+` ORDER BY song_id, position`)
	if err != nil {
		return fmt.Errorf("loading %s credits: %w", role, err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var songID int64
		var ref artist.LineUpRef
		if err := rows.Scan(&songID, &ref.ArtistID, &ref.LineUpID); err != nil {
			return fmt.Errorf("scanning %s credit: %w", role, err)
		}
		i, ok := index[songID]
		if !ok {
			continue
		}
		sg := &records[i].Song
		switch role {
		case RolePerformer:
			sg.Artists = append(sg.Artists, ref)
		case RoleComposer:
			sg.Composers = append(sg.Composers, ref)
		case RoleArranger:
			sg.Arrangers = append(sg.Arrangers, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating %s credits: %w", role, err)
	}
	return nil
}

// Counts returns the number of stored anime and songs.
func (s *Service) Counts(ctx context.Context) (animes, songs int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM animes), (SELECT COUNT(*) FROM songs)`,
	).Scan(&animes, &songs)
	if err != nil {
		return 0, 0, fmt.Errorf("counting songs: %w", err)
	}
	return animes, songs, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	return &nf.Float64
}
