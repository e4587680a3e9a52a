package api

import (
	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/search"
	"github.com/sydlexius/anisongdb/internal/song"
)

// memberDTO names one side of a membership edge.
type memberDTO struct {
	ID       int64    `json:"id"`
	Names    []string `json:"names"`
	LineUpID int      `json:"line_up_id"`
}

// creditDTO is an artist credited on a song, with the members of the
// credited line-up when it is a group.
type creditDTO struct {
	ID       int64       `json:"id"`
	Names    []string    `json:"names"`
	Type     artist.Type `json:"type"`
	LineUpID int         `json:"line_up_id"`
	Members  []memberDTO `json:"members,omitempty"`
}

type songDTO struct {
	AnnID         int64       `json:"annId"`
	AnimeName     string      `json:"animeExpandName"`
	AnimeEnglish  *string     `json:"animeENName,omitempty"`
	AnimeJapanese *string     `json:"animeJPName,omitempty"`
	AnimeRomaji   *string     `json:"animeRomajiName,omitempty"`
	AnimeVintage  *string     `json:"animeVintage,omitempty"`
	AnimeType     *string     `json:"animeType,omitempty"`
	AnimeAltNames []string    `json:"animeAltName,omitempty"`
	SongID        int64       `json:"songId"`
	AnnSongID     int64       `json:"annSongId"`
	SongType      song.Type   `json:"songType"`
	SongTypeLabel string      `json:"songTypeLabel"`
	SongNumber    int         `json:"songNumber"`
	SongName      string      `json:"songName"`
	SongArtist    string      `json:"songArtist"`
	Difficulty    *float64    `json:"songDifficulty,omitempty"`
	Category      *string     `json:"songCategory,omitempty"`
	HQ            *string     `json:"HQ,omitempty"`
	MQ            *string     `json:"MQ,omitempty"`
	Audio         *string     `json:"audio,omitempty"`
	Artists       []creditDTO `json:"artists"`
	Composers     []creditDTO `json:"composers"`
	Arrangers     []creditDTO `json:"arrangers"`
}

type searchResponse struct {
	Count     int              `json:"count"`
	Truncated bool             `json:"truncated"`
	Warnings  []search.Warning `json:"warnings,omitempty"`
	Songs     []songDTO        `json:"songs"`
}

func newSearchResponse(g *artist.Graph, res search.Result) searchResponse {
	out := searchResponse{
		Count:     len(res.Records),
		Truncated: res.Truncated,
		Warnings:  res.Warnings,
		Songs:     make([]songDTO, 0, len(res.Records)),
	}
	for _, rec := range res.Records {
		out.Songs = append(out.Songs, newSongDTO(g, rec))
	}
	return out
}

func newSongDTO(g *artist.Graph, rec song.Record) songDTO {
	s := rec.Song
	d := songDTO{
		SongID:        s.ID,
		AnnSongID:     s.AnnSongID,
		SongType:      s.Type,
		SongTypeLabel: s.Type.String(),
		SongNumber:    s.Number,
		SongName:      s.Name,
		SongArtist:    s.Artist,
		Difficulty:    s.Difficulty,
		Category:      s.Category,
		HQ:            s.Links.HQ,
		MQ:            s.Links.MQ,
		Audio:         s.Links.Audio,
		Artists:       credits(g, s.Artists),
		Composers:     credits(g, s.Composers),
		Arrangers:     credits(g, s.Arrangers),
	}
	if a := rec.Anime; a != nil {
		d.AnnID = a.AnnID
		d.AnimeName = a.Name
		d.AnimeEnglish = a.English
		d.AnimeJapanese = a.Japanese
		d.AnimeRomaji = a.Romaji
		d.AnimeVintage = a.Vintage
		d.AnimeType = a.Type
		d.AnimeAltNames = a.AltNames
	}
	return d
}

func credits(g *artist.Graph, refs []artist.LineUpRef) []creditDTO {
	out := make([]creditDTO, 0, len(refs))
	for _, ref := range refs {
		c := creditDTO{ID: ref.ArtistID, LineUpID: ref.LineUpID}
		if a, ok := g.Artist(ref.ArtistID); ok {
			c.Names = a.Names
			c.Type = a.Type
		}
		c.Members = members(g, lineUpMembers(g, ref))
		out = append(out, c)
	}
	return out
}

// lineUpMembers returns the edges of the referenced line-up, or of every
// line-up when none is specified.
func lineUpMembers(g *artist.Graph, ref artist.LineUpRef) []artist.Membership {
	if ref.LineUpID == artist.NoLineUp {
		return g.AllMembers(ref.ArtistID)
	}
	return g.Members(ref.ArtistID, ref.LineUpID)
}

func members(g *artist.Graph, edges []artist.Membership) []memberDTO {
	if len(edges) == 0 {
		return nil
	}
	out := make([]memberDTO, 0, len(edges))
	for _, m := range edges {
		d := memberDTO{ID: m.MemberID, LineUpID: m.MemberLineUpID}
		if a, ok := g.Artist(m.MemberID); ok {
			d.Names = a.Names
		}
		out = append(out, d)
	}
	return out
}

func groupRefs(g *artist.Graph, refs []artist.LineUpRef) []memberDTO {
	out := make([]memberDTO, 0, len(refs))
	for _, ref := range refs {
		d := memberDTO{ID: ref.ArtistID, LineUpID: ref.LineUpID}
		if a, ok := g.Artist(ref.ArtistID); ok {
			d.Names = a.Names
		}
		out = append(out, d)
	}
	return out
}
