// Package formatter maps merged records onto the recommendation service's
// item and interaction payloads and partitions them into batches.
package formatter

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"movie-recommender/internal/common/metrics"
	"movie-recommender/internal/ingest/parser"
	"movie-recommender/internal/models"
)

const (
	DefaultMovieBatchSize  = 500
	DefaultRatingBatchSize = 1000

	// MaxOverviewRunes bounds the overview sent for each item.
	MaxOverviewRunes = 1000
)

// FormatReport counts formatter input and skips.
type FormatReport struct {
	Input                int `json:"input"`
	Output               int `json:"output"`
	SkippedEmptyTitle    int `json:"skipped_empty_title"`
	SkippedMissingRating int `json:"skipped_missing_rating"`
}

// FormatMovie builds the item payload for a merged movie. It returns false
// when the title is blank; that check is repeated here even though the
// normalizer already applied it.
func FormatMovie(m models.MovieRecord) (models.ItemPayload, bool) {
	title := strings.TrimSpace(m.Title)
	if models.IsBlankTitle(title) {
		return models.ItemPayload{}, false
	}
	return models.ItemPayload{
		ItemID: strconv.FormatInt(m.ID, 10),
		Values: models.ItemValues{
			Title:       title,
			Overview:    TruncateRunes(m.Overview, MaxOverviewRunes),
			Genres:      parser.CapNames(m.Genres, parser.MaxGenres),
			Keywords:    parser.CapNames(m.Keywords, parser.MaxKeywords),
			Director:    m.Director,
			Actors:      parser.CapNames(m.Actors, parser.MaxActors),
			ReleaseDate: m.ReleaseDate,
			VoteAverage: m.VoteAverage,
			VoteCount:   m.VoteCount,
			Runtime:     m.Runtime,
			PosterPath:  m.PosterPath,
		},
	}, true
}

// FormatMovies formats every movie, skipping blank titles.
func FormatMovies(movies []models.MovieRecord) ([]models.ItemPayload, FormatReport) {
	rep := FormatReport{Input: len(movies)}
	out := make([]models.ItemPayload, 0, len(movies))
	for _, m := range movies {
		p, ok := FormatMovie(m)
		if !ok {
			rep.SkippedEmptyTitle++
			continue
		}
		out = append(out, p)
	}
	rep.Output = len(out)
	metrics.IngestRecords.WithLabelValues("item", "formatted").Add(float64(rep.Output))
	metrics.IngestRecords.WithLabelValues("item", "skipped_empty_title").Add(float64(rep.SkippedEmptyTitle))
	return out, rep
}

// FormatRating builds the interaction payload. It returns false when the
// rating is missing. A present timestamp is passed through unchanged,
// including 0.
func FormatRating(r models.RatingInteraction) (models.InteractionPayload, bool) {
	if r.Rating == nil {
		return models.InteractionPayload{}, false
	}
	p := models.InteractionPayload{
		UserID: strconv.FormatInt(r.UserID, 10),
		ItemID: strconv.FormatInt(r.MovieID, 10),
		Rating: RescaleRating(*r.Rating),
	}
	if r.Timestamp != nil {
		ts := *r.Timestamp
		p.Timestamp = &ts
	}
	return p, true
}

// FormatRatings formats every interaction, skipping missing ratings.
func FormatRatings(ratings []models.RatingInteraction) ([]models.InteractionPayload, FormatReport) {
	rep := FormatReport{Input: len(ratings)}
	out := make([]models.InteractionPayload, 0, len(ratings))
	for _, r := range ratings {
		p, ok := FormatRating(r)
		if !ok {
			rep.SkippedMissingRating++
			continue
		}
		out = append(out, p)
	}
	rep.Output = len(out)
	metrics.IngestRecords.WithLabelValues("interaction", "formatted").Add(float64(rep.Output))
	metrics.IngestRecords.WithLabelValues("interaction", "skipped_missing_rating").Add(float64(rep.SkippedMissingRating))
	return out, rep
}

// RescaleRating maps the 1-5 star scale onto [-1, 1]. Values outside the
// source scale are clamped.
func RescaleRating(r float64) float64 {
	v := (r - 3) / 2
	switch {
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return v
}

// InverseRescale maps a [-1, 1] rating back to stars.
func InverseRescale(v float64) float64 {
	return v*2 + 3
}

// Batch partitions records into consecutive chunks of at most size
// elements. A non-positive size yields a single batch.
func Batch[T any](records []T, size int) [][]T {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(records)
	}
	out := make([][]T, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end:end])
	}
	return out
}

// TruncateRunes cuts s to at most n characters without splitting a UTF-8
// sequence.
func TruncateRunes(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
