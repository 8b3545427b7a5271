// Package models holds the movie and favorite types shared by the catalog
// client, the favorites engine and the remote document store.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
	"github.com/tidwall/gjson"
)

// MovieID identifies a movie in the catalog. Stores may persist it as a
// JSON number or as a string, so decoding accepts both and comparisons
// go through Key.
type MovieID int64

// Key returns the canonical string form used for membership checks and
// as the remote document key.
func (id MovieID) Key() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id MovieID) String() string {
	return id.Key()
}

// UnmarshalJSON accepts 42, 42.0 and "42".
func (id *MovieID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		parsed, err := ParseMovieID(s)
		if err != nil {
			return err
		}

		*id = parsed

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("movie id: %w", err)
	}

	if v, err := n.Int64(); err == nil {
		*id = MovieID(v)
		return nil
	}

	f, err := n.Float64()
	if err != nil || f != float64(int64(f)) {
		return fmt.Errorf("movie id %s is not an integer", n)
	}

	*id = MovieID(int64(f))

	return nil
}

// ParseMovieID parses the string form of a movie id.
func ParseMovieID(s string) (MovieID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid movie id %q", s)
	}

	return MovieID(v), nil
}

// Genre is a catalog genre descriptor. List endpoints only carry the id.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON accepts either {"id":18,"name":"Drama"} or a bare 18.
func (g *Genre) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		var id int
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("genre: %w", err)
		}

		*g = Genre{ID: id}

		return nil
	}

	type plain Genre

	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	*g = Genre(p)

	return nil
}

// FavoriteRecord is one movie a user marked as favorite. Descriptive
// fields are copied from the catalog when the favorite is created and are
// never re-fetched.
type FavoriteRecord struct {
	ID          MovieID `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	Overview    string  `json:"overview"`
	Genres      []Genre `json:"genres"`

	// SavedAt is assigned by the remote store and only used to order the
	// remote list. Zero for records that have never been synced.
	SavedAt time.Time `json:"-"`
}

// Key returns the record's id in string form.
func (r FavoriteRecord) Key() string {
	return r.ID.Key()
}

// Normalized returns a copy with nil slices replaced so the record always
// encodes genres as an array.
func (r FavoriteRecord) Normalized() FavoriteRecord {
	if r.Genres == nil {
		r.Genres = []Genre{}
	}

	return r
}

// ReleaseYear returns the four digit year of ReleaseDate, or "" when the
// date is missing or malformed.
func (r FavoriteRecord) ReleaseYear() string {
	if len(r.ReleaseDate) < 4 {
		return ""
	}

	if _, err := strconv.Atoi(r.ReleaseDate[:4]); err != nil {
		return ""
	}

	return r.ReleaseDate[:4]
}

// FavoriteDocument is a favorite as stored by the remote backend: the
// record's fields plus the server-assigned save time.
type FavoriteDocument struct {
	FavoriteRecord

	Timestamp time.Time `json:"timestamp"`
}

// Record returns the favorite with SavedAt set from the timestamp.
func (d FavoriteDocument) Record() FavoriteRecord {
	r := d.FavoriteRecord.Normalized()
	r.SavedAt = d.Timestamp

	return r
}

// NewFavoriteDocument wraps a stored record for the wire.
func NewFavoriteDocument(r FavoriteRecord) FavoriteDocument {
	return FavoriteDocument{FavoriteRecord: r.Normalized(), Timestamp: r.SavedAt}
}

// CastMember is a credited actor from the details endpoint.
type CastMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path,omitempty"`
}

// MovieDetails is the full catalog entry for a single movie.
type MovieDetails struct {
	FavoriteRecord

	Runtime int          `json:"runtime,omitempty"`
	Tagline string       `json:"tagline,omitempty"`
	Cast    []CastMember `json:"cast"`
}

// ParseMovie validates a catalog movie object and converts it into a fully
// populated FavoriteRecord. Results without a positive id or a title are
// rejected. Missing overview and genres default to empty values. Genres
// are read from "genres" objects when present, otherwise from "genre_ids".
func ParseMovie(raw gjson.Result) (FavoriteRecord, error) {
	if !raw.IsObject() {
		return FavoriteRecord{}, fmt.Errorf("%w: not an object", apperrors.ErrInvalidMovie)
	}

	id := raw.Get("id")
	if id.Type != gjson.Number || id.Int() <= 0 || float64(id.Int()) != id.Float() {
		return FavoriteRecord{}, fmt.Errorf("%w: missing or invalid id %q", apperrors.ErrInvalidMovie, id.Raw)
	}

	title := strings.TrimSpace(raw.Get("title").String())
	if title == "" {
		return FavoriteRecord{}, fmt.Errorf("%w: movie %d has no title", apperrors.ErrInvalidMovie, id.Int())
	}

	rec := FavoriteRecord{
		ID:          MovieID(id.Int()),
		Title:       title,
		PosterPath:  raw.Get("poster_path").String(),
		ReleaseDate: raw.Get("release_date").String(),
		VoteAverage: raw.Get("vote_average").Float(),
		Overview:    raw.Get("overview").String(),
		Genres:      []Genre{},
	}

	if genres := raw.Get("genres"); genres.IsArray() {
		for _, g := range genres.Array() {
			if g.IsObject() {
				rec.Genres = append(rec.Genres, Genre{ID: int(g.Get("id").Int()), Name: g.Get("name").String()})
			}
		}
	} else if ids := raw.Get("genre_ids"); ids.IsArray() {
		for _, g := range ids.Array() {
			rec.Genres = append(rec.Genres, Genre{ID: int(g.Int())})
		}
	}

	return rec, nil
}

// ParseMovieDetails parses a details response (with appended credits).
func ParseMovieDetails(raw gjson.Result) (MovieDetails, error) {
	rec, err := ParseMovie(raw)
	if err != nil {
		return MovieDetails{}, err
	}

	details := MovieDetails{
		FavoriteRecord: rec,
		Runtime:        int(raw.Get("runtime").Int()),
		Tagline:        raw.Get("tagline").String(),
		Cast:           []CastMember{},
	}

	raw.Get("credits.cast").ForEach(func(_, c gjson.Result) bool {
		details.Cast = append(details.Cast, CastMember{
			ID:          c.Get("id").Int(),
			Name:        c.Get("name").String(),
			Character:   c.Get("character").String(),
			ProfilePath: c.Get("profile_path").String(),
		})

		return true
	})

	return details, nil
}
