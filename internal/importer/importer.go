// Package importer loads the artist and song JSON exports into a fresh
// database through the artist store and the song service.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/event"
	"github.com/sydlexius/anisongdb/internal/song"
)

// ErrNotEmpty is returned when the target database already holds artists.
var ErrNotEmpty = errors.New("database already contains artists")

// ErrUnknownReference is returned when a song credits an artist or line-up
// that the artist export does not define.
var ErrUnknownReference = errors.New("unknown artist reference")

// progressEvery controls how often anime progress is logged.
const progressEvery = 1000

// Result summarizes what was imported.
type Result struct {
	Artists int `json:"artists"`
	LineUps int `json:"line_ups"`
	Members int `json:"members"`
	Animes  int `json:"animes"`
	Songs   int `json:"songs"`
}

// Importer writes decoded exports to storage.
type Importer struct {
	store    *artist.Store
	songs    *song.Service
	eventBus *event.Bus
	logger   *slog.Logger
}

// New creates an importer. bus may be nil.
func New(store *artist.Store, songs *song.Service, bus *event.Bus, logger *slog.Logger) *Importer {
	return &Importer{
		store:    store,
		songs:    songs,
		eventBus: bus,
		logger:   logger.With("component", "importer"),
	}
}

// DecodeArtists reads the artist export, a JSON object keyed by artist ID.
func DecodeArtists(r io.Reader) (map[int64]ArtistEntry, error) {
	var raw map[string]ArtistEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding artist export: %w", err)
	}
	out := make(map[int64]ArtistEntry, len(raw))
	for key, entry := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("artist export: invalid artist id %q: %w", key, err)
		}
		out[id] = entry
	}
	return out, nil
}

// DecodeSongs reads the song export, a JSON array of anime entries.
func DecodeSongs(r io.Reader) ([]AnimeEntry, error) {
	var animes []AnimeEntry
	if err := json.NewDecoder(r).Decode(&animes); err != nil {
		return nil, fmt.Errorf("decoding song export: %w", err)
	}
	return animes, nil
}

// ImportFiles decodes both export files and imports them.
func (im *Importer) ImportFiles(ctx context.Context, songsPath, artistsPath string) (Result, error) {
	artists, err := decodeFile(artistsPath, DecodeArtists)
	if err != nil {
		return Result{}, err
	}
	animes, err := decodeFile(songsPath, DecodeSongs)
	if err != nil {
		return Result{}, err
	}
	return im.Import(ctx, artists, animes)
}

func decodeFile[T any](path string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return zero, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck
	v, err := decode(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Import writes the artists in one store transaction, then every anime with
// its songs. The artist export is staged and every song reference checked
// against it first, so invalid input of either kind writes nothing.
func (im *Importer) Import(ctx context.Context, artists map[int64]ArtistEntry, animes []AnimeEntry) (Result, error) {
	if im.store.Snapshot().Len() > 0 {
		return Result{}, ErrNotEmpty
	}

	staging := artist.NewStore(nil, nil, nil, im.logger)
	if _, err := staging.Update(ctx, func(tx *artist.Txn) error {
		return applyArtists(tx, artists)
	}); err != nil {
		return Result{}, fmt.Errorf("importing artists: %w", err)
	}
	staged := staging.Snapshot()

	type converted struct {
		anime *song.Anime
		songs []song.Song
	}
	pending := make([]converted, 0, len(animes))
	for _, entry := range animes {
		a, songs, err := convertAnime(staged, entry)
		if err != nil {
			return Result{}, err
		}
		pending = append(pending, converted{anime: a, songs: songs})
	}

	var res Result
	changes, err := im.store.Update(ctx, func(tx *artist.Txn) error {
		return applyArtists(tx, artists)
	})
	if err != nil {
		return Result{}, fmt.Errorf("importing artists: %w", err)
	}
	res.Artists = len(changes.Artists)
	res.LineUps = len(changes.LineUps)
	res.Members = len(changes.Edges)
	im.logger.Info("artists imported", "artists", res.Artists, "line_ups", res.LineUps, "members", res.Members)

	for i, p := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := im.songs.SaveAnime(ctx, p.anime, p.songs); err != nil {
			return res, fmt.Errorf("importing anime %d: %w", p.anime.AnnID, err)
		}
		res.Animes++
		res.Songs += len(p.songs)
		if (i+1)%progressEvery == 0 {
			im.logger.Info("import progress", "animes", res.Animes, "songs", res.Songs)
		}
	}

	im.logger.Info("import completed", "animes", res.Animes, "songs", res.Songs)
	im.eventBus.Publish(event.Event{
		Type: event.ImportCompleted,
		Data: map[string]any{
			"artists": res.Artists,
			"animes":  res.Animes,
			"songs":   res.Songs,
		},
	})
	return res, nil
}

// applyArtists inserts every artist, then every line-up, then every
// membership edge, so members may be defined after the groups naming them.
func applyArtists(tx *artist.Txn, entries map[int64]ArtistEntry) error {
	ids := make([]int64, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		e := entries[id]
		typ, err := artist.ParseType(e.Type)
		if err != nil {
			return fmt.Errorf("artist %d: %w", id, err)
		}
		if e.Type == "" && len(e.Members) > 0 {
			typ = artist.TypeGroup
		}
		if err := tx.PutArtist(artist.Artist{
			ID:         id,
			Names:      e.Names,
			IsVocalist: e.IsVocalist,
			IsComposer: e.IsComposer,
			Type:       typ,
		}); err != nil {
			return err
		}
	}

	for _, id := range ids {
		for lineUp := range entries[id].Members {
			if err := tx.InsertLineUp(id, lineUp, artist.TypeGroup); err != nil {
				return err
			}
		}
	}

	for _, id := range ids {
		for lineUp, roster := range entries[id].Members {
			for _, m := range roster {
				if err := tx.AddMember(id, lineUp, m.ID, m.LineUp); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func convertAnime(g *artist.Graph, e AnimeEntry) (*song.Anime, []song.Song, error) {
	a := &song.Anime{
		AnnID:    e.AnnID,
		Name:     e.Name,
		English:  e.English,
		Japanese: e.Japanese,
		Romaji:   e.Romaji,
		AltNames: e.AltNames,
		Genres:   e.Genres,
		Tags:     e.Tags,
		Vintage:  e.Vintage,
		Type:     e.Type,
	}

	songs := make([]song.Song, 0, len(e.Songs))
	for _, se := range e.Songs {
		sg := song.Song{
			AnnSongID:  -1,
			Type:       song.Type(se.Type),
			Number:     se.Number,
			Name:       se.Name,
			Artist:     se.Artist,
			Difficulty: se.Difficulty,
			Category:   se.Category,
			Links: song.Links{
				HQ:    se.Links.HQ,
				MQ:    se.Links.MQ,
				Audio: se.Links.Audio,
			},
		}
		if se.AnnSongID != nil {
			sg.AnnSongID = *se.AnnSongID
		}
		var err error
		if sg.Artists, err = convertRefs(g, se.ArtistIDs); err != nil {
			return nil, nil, fmt.Errorf("anime %d song %q: %w", e.AnnID, se.Name, err)
		}
		if sg.Composers, err = convertRefs(g, se.ComposerIDs); err != nil {
			return nil, nil, fmt.Errorf("anime %d song %q: %w", e.AnnID, se.Name, err)
		}
		if sg.Arrangers, err = convertRefs(g, se.ArrangerIDs); err != nil {
			return nil, nil, fmt.Errorf("anime %d song %q: %w", e.AnnID, se.Name, err)
		}
		songs = append(songs, sg)
	}
	return a, songs, nil
}

func convertRefs(g *artist.Graph, dtos []RefDTO) ([]artist.LineUpRef, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	refs := make([]artist.LineUpRef, 0, len(dtos))
	for _, d := range dtos {
		ref := artist.LineUpRef{ArtistID: d.ID, LineUpID: d.LineUp}
		if _, ok := g.Artist(d.ID); !ok {
			return nil, fmt.Errorf("%w: artist %d", ErrUnknownReference, d.ID)
		}
		if d.LineUp != artist.NoLineUp && (d.LineUp < 0 || d.LineUp >= len(g.LineUps(d.ID))) {
			return nil, fmt.Errorf("%w: line-up %s", ErrUnknownReference, ref)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
