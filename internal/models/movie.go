package models

import (
	"strconv"
	"strings"
)

// MovieRecord is one catalog entry after normalization and merge.
// Sequences are never nil once a record leaves the normalizer.
type MovieRecord struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	Genres      []string `json:"genres"`
	Keywords    []string `json:"keywords"`
	Director    string   `json:"director"`
	Actors      []string `json:"actors"`
	ReleaseDate string   `json:"release_date"`
	VoteAverage float64  `json:"vote_average"`
	VoteCount   int64    `json:"vote_count"`
	Runtime     int64    `json:"runtime"`
	PosterPath  string   `json:"poster_path"`
}

// KeywordRecord is one row of the keywords table.
type KeywordRecord struct {
	ID       int64
	Keywords []string
}

// CreditRecord is one row of the credits table.
type CreditRecord struct {
	ID       int64
	Director string
	Actors   []string
}

// MovieSummary is the shape returned to API callers, built either from a
// recommendation response or from the local catalog.
type MovieSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	Genres      []string `json:"genres"`
	Director    string   `json:"director,omitempty"`
	Actors      []string `json:"actors,omitempty"`
	VoteAverage float64  `json:"vote_average"`
	VoteCount   int64    `json:"vote_count"`
	Runtime     int64    `json:"runtime,omitempty"`
	PosterPath  string   `json:"poster_path"`
	ReleaseDate string   `json:"release_date,omitempty"`
}

// IsBlankTitle reports whether a title is empty, whitespace only or the
// literal "nan" left behind by spreadsheet exports.
func IsBlankTitle(title string) bool {
	t := strings.TrimSpace(title)
	return t == "" || strings.EqualFold(t, "nan")
}

// Summary projects a catalog record onto the API shape.
func (m MovieRecord) Summary() MovieSummary {
	genres := m.Genres
	if genres == nil {
		genres = []string{}
	}
	return MovieSummary{
		ID:          strconv.FormatInt(m.ID, 10),
		Title:       m.Title,
		Overview:    m.Overview,
		Genres:      genres,
		Director:    m.Director,
		Actors:      m.Actors,
		VoteAverage: m.VoteAverage,
		VoteCount:   m.VoteCount,
		Runtime:     m.Runtime,
		PosterPath:  m.PosterPath,
		ReleaseDate: m.ReleaseDate,
	}
}
