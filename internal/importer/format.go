package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ArtistEntry is one value of the artist export, keyed by artist ID.
// Members holds one roster per line-up, in line-up order.
type ArtistEntry struct {
	Names      []string   `json:"names"`
	IsVocalist bool       `json:"vocalist"`
	IsComposer bool       `json:"composer"`
	Type       string     `json:"artist_type,omitempty"`
	Members    [][]RefDTO `json:"members"`
}

// AnimeEntry is one element of the song export.
type AnimeEntry struct {
	AnnID    int64       `json:"annId"`
	Name     string      `json:"animeExpandName"`
	English  *string     `json:"animeENName,omitempty"`
	Japanese *string     `json:"animeJPName,omitempty"`
	Romaji   *string     `json:"animeRomajiName,omitempty"`
	Vintage  *string     `json:"animeVintage,omitempty"`
	Type     *string     `json:"animeType,omitempty"`
	Tags     []string    `json:"tags,omitempty"`
	Genres   []string    `json:"genres,omitempty"`
	AltNames []string    `json:"altNames,omitempty"`
	Songs    []SongEntry `json:"songs"`
}

// SongEntry is one song of an anime in the song export.
type SongEntry struct {
	AnnSongID   *int64   `json:"annSongId"`
	Type        int      `json:"songType"`
	Number      int      `json:"songNumber"`
	Name        string   `json:"songName"`
	Artist      string   `json:"songArtist"`
	Difficulty  *float64 `json:"songDifficulty,omitempty"`
	Category    *string  `json:"songCategory,omitempty"`
	Links       LinksDTO `json:"links"`
	ArtistIDs   []RefDTO `json:"artist_ids"`
	ComposerIDs []RefDTO `json:"composer_ids,omitempty"`
	ArrangerIDs []RefDTO `json:"arranger_ids,omitempty"`
}

// LinksDTO holds the media links of a song entry.
type LinksDTO struct {
	HQ    *string `json:"HQ,omitempty"`
	MQ    *string `json:"MQ,omitempty"`
	Audio *string `json:"audio,omitempty"`
}

// RefDTO is an [id, line_up] pair. The ID may be encoded as a number or a
// string and the line-up may be absent, which means no particular line-up.
type RefDTO struct {
	ID     int64
	LineUp int
}

// UnmarshalJSON decodes an [id] or [id, line_up] array.
func (r *RefDTO) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("decoding artist reference: %w", err)
	}
	if len(parts) == 0 || len(parts) > 2 {
		return fmt.Errorf("artist reference %s: want [id, line_up]", data)
	}
	id, err := flexInt(parts[0])
	if err != nil {
		return fmt.Errorf("artist reference %s: %w", data, err)
	}
	r.ID = id
	r.LineUp = -1
	if len(parts) == 2 && !bytes.Equal(bytes.TrimSpace(parts[1]), []byte("null")) {
		lu, err := flexInt(parts[1])
		if err != nil {
			return fmt.Errorf("artist reference %s: %w", data, err)
		}
		r.LineUp = int(lu)
	}
	return nil
}

// flexInt decodes a JSON number or a string holding one.
func flexInt(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("invalid id %s", raw)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return n, nil
}
