package song

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sydlexius/anisongdb/internal/artist"
)

// Type is the kind of theme song.
type Type int

// Song types, as stored.
const (
	Opening Type = 1
	Ending  Type = 2
	Insert  Type = 3
)

// Types lists every known song type.
var Types = []Type{Opening, Ending, Insert}

// Valid reports whether t is a known song type.
func (t Type) Valid() bool {
	return t >= Opening && t <= Insert
}

func (t Type) String() string {
	switch t {
	case Opening:
		return "OP"
	case Ending:
		return "ED"
	case Insert:
		return "IN"
	default:
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseType accepts the short code, the long name or the stored number.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "op", "opening", "1":
		return Opening, nil
	case "ed", "ending", "2":
		return Ending, nil
	case "in", "ins", "insert", "3":
		return Insert, nil
	default:
		return 0, fmt.Errorf("unknown song type %q", s)
	}
}

// TypeSet is a set of song types used as an allow-list. The zero value is
// empty and allows nothing.
type TypeSet uint8

// NewTypeSet returns a set holding the given types. Unknown types are
// ignored.
func NewTypeSet(types ...Type) TypeSet {
	var s TypeSet
	for _, t := range types {
		if t.Valid() {
			s |= 1 << uint(t)
		}
	}
	return s
}

// AllTypes allows every known song type.
var AllTypes = NewTypeSet(Types...)

// Has reports whether t is in the set.
func (s TypeSet) Has(t Type) bool {
	return t.Valid() && s&(1<<uint(t)) != 0
}

// Empty reports whether the set allows nothing.
func (s TypeSet) Empty() bool { return s == 0 }

// Slice returns the members of the set in type order.
func (s TypeSet) Slice() []Type {
	var out []Type
	for _, t := range Types {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// ParseTypeSet parses a comma-separated list such as "op,ed".
func ParseTypeSet(s string) (TypeSet, error) {
	var set TypeSet
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseType(part)
		if err != nil {
			return 0, err
		}
		set |= NewTypeSet(t)
	}
	return set, nil
}

// Role is the part an artist plays on a song.
type Role string

// Artist roles.
const (
	RolePerformer Role = "artist"
	RoleComposer  Role = "composer"
	RoleArranger  Role = "arranger"
)

// Roles lists every role.
var Roles = []Role{RolePerformer, RoleComposer, RoleArranger}

func (r Role) table() (string, error) {
	switch r {
	case RolePerformer:
		return "song_artists", nil
	case RoleComposer:
		return "song_composers", nil
	case RoleArranger:
		return "song_arrangers", nil
	default:
		return "", fmt.Errorf("unknown artist role %q", r)
	}
}

// Anime is one anime entry. Optional names are nil when unknown.
type Anime struct {
	AnnID    int64    `json:"annId"`
	Name     string   `json:"animeExpandName"`
	English  *string  `json:"animeENName,omitempty"`
	Japanese *string  `json:"animeJPName,omitempty"`
	Romaji   *string  `json:"animeRomajiName,omitempty"`
	AltNames []string `json:"animeAltName,omitempty"`
	Genres   []string `json:"genres,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Vintage  *string  `json:"animeVintage,omitempty"`
	Type     *string  `json:"animeType,omitempty"`
}

// SearchNames returns the names used for anime search: the canonical name
// and, if known, the romaji name.
func (a *Anime) SearchNames() []string {
	names := []string{a.Name}
	if a.Romaji != nil && *a.Romaji != "" {
		names = append(names, *a.Romaji)
	}
	return names
}

// Links holds the media URLs of a song.
type Links struct {
	HQ    *string `json:"HQ,omitempty"`
	MQ    *string `json:"MQ,omitempty"`
	Audio *string `json:"audio,omitempty"`
}

// Song is one theme song of an anime. Artist references are
// line-up-qualified.
type Song struct {
	ID         int64              `json:"songId"`
	AnnSongID  int64              `json:"annSongId"`
	AnnID      int64              `json:"annId"`
	Type       Type               `json:"songType"`
	Number     int                `json:"songNumber"`
	Name       string             `json:"songName"`
	Artist     string             `json:"songArtist"`
	Difficulty *float64           `json:"songDifficulty,omitempty"`
	Category   *string            `json:"songCategory,omitempty"`
	Links      Links              `json:"links"`
	Artists    []artist.LineUpRef `json:"artists"`
	Composers  []artist.LineUpRef `json:"composers"`
	Arrangers  []artist.LineUpRef `json:"arrangers"`
}

// Refs returns the references of the given role.
func (s *Song) Refs(role Role) []artist.LineUpRef {
	switch role {
	case RolePerformer:
		return s.Artists
	case RoleComposer:
		return s.Composers
	case RoleArranger:
		return s.Arrangers
	default:
		return nil
	}
}

// Credits reports whether the artist appears on the song in any role,
// ignoring line-ups.
func (s *Song) Credits(artistID int64) bool {
	for _, role := range Roles {
		if slices.ContainsFunc(s.Refs(role), func(r artist.LineUpRef) bool { return r.ArtistID == artistID }) {
			return true
		}
	}
	return false
}

// Record is a song joined with its anime. Records of the same anime share
// the Anime pointer.
type Record struct {
	Anime *Anime
	Song  Song
}

// ErrSongNotFound is returned when a song ID does not exist.
var ErrSongNotFound = errors.New("song not found")

// Malformed record reasons.
var (
	ErrMissingAnime     = errors.New("record has no anime")
	ErrMissingAnimeName = errors.New("anime has no name")
	ErrUnknownSongType  = errors.New("unknown song type")
)

// Validate reports why a record cannot be searched, or nil.
func (r *Record) Validate() error {
	if r.Anime == nil {
		return ErrMissingAnime
	}
	if strings.TrimSpace(r.Anime.Name) == "" {
		return fmt.Errorf("anime %d: %w", r.Anime.AnnID, ErrMissingAnimeName)
	}
	if !r.Song.Type.Valid() {
		return fmt.Errorf("song %d: %w: %d", r.Song.ID, ErrUnknownSongType, int(r.Song.Type))
	}
	return nil
}

// dedupeRefs drops repeated references, keeping the first.
func dedupeRefs(refs []artist.LineUpRef) []artist.LineUpRef {
	if len(refs) < 2 {
		return refs
	}
	seen := make(map[artist.LineUpRef]bool, len(refs))
	out := refs[:0]
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
