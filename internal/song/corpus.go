package song

import "github.com/sydlexius/anisongdb/internal/artist"

// Corpus is an immutable, ordered collection of song records. Song order is
// the order records were given in, normally song ID order.
type Corpus struct {
	records []Record
	byID    map[int64]int
	credits map[int64][]int
}

// NewCorpus indexes records. The slice is owned by the corpus afterwards.
func NewCorpus(records []Record) *Corpus {
	c := &Corpus{
		records: records,
		byID:    make(map[int64]int, len(records)),
		credits: make(map[int64][]int),
	}
	for i := range records {
		s := &records[i].Song
		c.byID[s.ID] = i
		seen := make(map[int64]bool)
		for _, role := range Roles {
			for _, ref := range s.Refs(role) {
				if seen[ref.ArtistID] {
					continue
				}
				seen[ref.ArtistID] = true
				c.credits[ref.ArtistID] = append(c.credits[ref.ArtistID], i)
			}
		}
	}
	return c
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// Each calls fn for every record in corpus order until fn returns false.
// fn must not modify the record.
func (c *Corpus) Each(fn func(r *Record) bool) {
	if c == nil {
		return
	}
	for i := range c.records {
		if !fn(&c.records[i]) {
			return
		}
	}
}

// Song returns the record of a song by its local ID.
func (c *Corpus) Song(id int64) (Record, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Record{}, false
	}
	return c.records[i], true
}

// SongsByArtist returns every record crediting the artist in the given
// role, in corpus order. An empty role matches any role.
func (c *Corpus) SongsByArtist(artistID int64, role Role) []Record {
	var out []Record
	for _, i := range c.credits[artistID] {
		r := c.records[i]
		if role == "" || refsContain(r.Song.Refs(role), artistID) {
			out = append(out, r)
		}
	}
	return out
}

// ExampleAnime returns up to limit distinct names of anime the artist is
// credited on in any role, in corpus order. A limit of zero or less means
// no limit.
func (c *Corpus) ExampleAnime(artistID int64, limit int) []string {
	var out []string
	seen := make(map[int64]bool)
	for _, i := range c.credits[artistID] {
		a := c.records[i].Anime
		if a == nil || seen[a.AnnID] {
			continue
		}
		seen[a.AnnID] = true
		out = append(out, a.Name)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func refsContain(refs []artist.LineUpRef, artistID int64) bool {
	for _, r := range refs {
		if r.ArtistID == artistID {
			return true
		}
	}
	return false
}
