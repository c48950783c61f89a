// Package normalizer turns the raw TMDB/MovieLens CSV tables into typed
// records. Row problems never fail a load: bad rows are dropped or
// defaulted and counted in a LoadReport.
package normalizer

import (
	"io"
	"os"
	"strings"

	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/metrics"
	"movie-recommender/internal/ingest/parser"
	"movie-recommender/internal/models"
)

const (
	TableMovies   = "movies"
	TableKeywords = "keywords"
	TableCredits  = "credits"
	TableRatings  = "ratings"
)

// LoadReport counts what happened to the rows of one table.
type LoadReport struct {
	Table             string `json:"table"`
	RowsRead          int    `json:"rows_read"`
	RowsKept          int    `json:"rows_kept"`
	DroppedInvalidID  int    `json:"dropped_invalid_id"`
	DroppedEmptyTitle int    `json:"dropped_empty_title"`
	MalformedRows     int    `json:"malformed_rows"`
}

// Dropped is the total number of rows that did not produce a record.
func (r LoadReport) Dropped() int {
	return r.DroppedInvalidID + r.DroppedEmptyTitle + r.MalformedRows
}

type Normalizer struct {
	logger logger.Logger
}

func New(log logger.Logger) *Normalizer {
	return &Normalizer{logger: log.WithFields(map[string]interface{}{"component": "normalizer"})}
}

// LoadMovies reads movies_metadata.csv. Rows without an integer id or
// with a blank title are dropped. Numeric columns default to 0.
func (n *Normalizer) LoadMovies(r io.Reader) ([]models.MovieRecord, LoadReport, error) {
	rep := LoadReport{Table: TableMovies}
	movies := []models.MovieRecord{}

	malformed, err := scanTable(r, []string{"id", "title"}, 0, func(row row) {
		rep.RowsRead++
		id, ok := parseID(row.get("id"))
		if !ok {
			rep.DroppedInvalidID++
			return
		}
		title := strings.TrimSpace(row.get("title"))
		if models.IsBlankTitle(title) {
			rep.DroppedEmptyTitle++
			return
		}
		movies = append(movies, models.MovieRecord{
			ID:          id,
			Title:       title,
			Overview:    cleanText(row.get("overview")),
			Genres:      parser.ParseNames(row.get("genres"), parser.MaxGenres),
			Keywords:    []string{},
			Actors:      []string{},
			ReleaseDate: cleanText(row.get("release_date")),
			VoteAverage: floatOrZero(row.get("vote_average")),
			VoteCount:   intOrZero(row.get("vote_count")),
			Runtime:     intOrZero(row.get("runtime")),
			PosterPath:  cleanText(row.get("poster_path")),
		})
	})
	rep.MalformedRows = malformed
	rep.RowsRead += malformed
	rep.RowsKept = len(movies)
	if err != nil {
		return nil, rep, apperrors.NewDatasetReadFailedError(TableMovies, err)
	}
	n.report(rep)
	return movies, rep, nil
}

// LoadKeywords reads keywords.csv. Only the id must be valid; an
// unparsable keyword list yields an empty sequence.
func (n *Normalizer) LoadKeywords(r io.Reader) ([]models.KeywordRecord, LoadReport, error) {
	rep := LoadReport{Table: TableKeywords}
	out := []models.KeywordRecord{}

	malformed, err := scanTable(r, []string{"id", "keywords"}, 0, func(row row) {
		rep.RowsRead++
		id, ok := parseID(row.get("id"))
		if !ok {
			rep.DroppedInvalidID++
			return
		}
		out = append(out, models.KeywordRecord{
			ID:       id,
			Keywords: parser.ParseNames(row.get("keywords"), parser.MaxKeywords),
		})
	})
	rep.MalformedRows = malformed
	rep.RowsRead += malformed
	rep.RowsKept = len(out)
	if err != nil {
		return nil, rep, apperrors.NewDatasetReadFailedError(TableKeywords, err)
	}
	n.report(rep)
	return out, rep, nil
}

// LoadCredits reads credits.csv, keeping the first five cast names and the
// first crew member credited as Director.
func (n *Normalizer) LoadCredits(r io.Reader) ([]models.CreditRecord, LoadReport, error) {
	rep := LoadReport{Table: TableCredits}
	out := []models.CreditRecord{}

	malformed, err := scanTable(r, []string{"id", "cast", "crew"}, 0, func(row row) {
		rep.RowsRead++
		id, ok := parseID(row.get("id"))
		if !ok {
			rep.DroppedInvalidID++
			return
		}
		out = append(out, models.CreditRecord{
			ID:       id,
			Actors:   parser.ParseNames(row.get("cast"), parser.MaxActors),
			Director: parser.FindDirector(parser.ParseObjectList(row.get("crew"))),
		})
	})
	rep.MalformedRows = malformed
	rep.RowsRead += malformed
	rep.RowsKept = len(out)
	if err != nil {
		return nil, rep, apperrors.NewDatasetReadFailedError(TableCredits, err)
	}
	n.report(rep)
	return out, rep, nil
}

// LoadRatings reads ratings.csv. userId and movieId are required; rating
// and timestamp stay nil when blank and are judged by the formatter.
// limit, when positive, caps the number of rows read.
func (n *Normalizer) LoadRatings(r io.Reader, limit int) ([]models.RatingInteraction, LoadReport, error) {
	rep := LoadReport{Table: TableRatings}
	out := []models.RatingInteraction{}

	malformed, err := scanTable(r, []string{"userId", "movieId", "rating"}, limit, func(row row) {
		rep.RowsRead++
		userID, okUser := parseID(row.get("userId"))
		movieID, okMovie := parseID(row.get("movieId"))
		if !okUser || !okMovie {
			rep.DroppedInvalidID++
			return
		}
		ri := models.RatingInteraction{UserID: userID, MovieID: movieID}
		if v, ok := parseFloat(row.get("rating")); ok {
			ri.Rating = &v
		}
		if ts, ok := parseID(row.get("timestamp")); ok {
			ri.Timestamp = &ts
		}
		out = append(out, ri)
	})
	rep.MalformedRows = malformed
	rep.RowsRead += malformed
	rep.RowsKept = len(out)
	if err != nil {
		return nil, rep, apperrors.NewDatasetReadFailedError(TableRatings, err)
	}
	n.report(rep)
	return out, rep, nil
}

func (n *Normalizer) LoadMoviesFile(path string) ([]models.MovieRecord, LoadReport, error) {
	f, err := open(path, TableMovies)
	if err != nil {
		return nil, LoadReport{Table: TableMovies}, err
	}
	defer f.Close()
	return n.LoadMovies(f)
}

func (n *Normalizer) LoadKeywordsFile(path string) ([]models.KeywordRecord, LoadReport, error) {
	f, err := open(path, TableKeywords)
	if err != nil {
		return nil, LoadReport{Table: TableKeywords}, err
	}
	defer f.Close()
	return n.LoadKeywords(f)
}

func (n *Normalizer) LoadCreditsFile(path string) ([]models.CreditRecord, LoadReport, error) {
	f, err := open(path, TableCredits)
	if err != nil {
		return nil, LoadReport{Table: TableCredits}, err
	}
	defer f.Close()
	return n.LoadCredits(f)
}

func (n *Normalizer) LoadRatingsFile(path string, limit int) ([]models.RatingInteraction, LoadReport, error) {
	f, err := open(path, TableRatings)
	if err != nil {
		return nil, LoadReport{Table: TableRatings}, err
	}
	defer f.Close()
	return n.LoadRatings(f, limit)
}

func open(path, table string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewDatasetMissingError(path)
		}
		return nil, apperrors.NewDatasetReadFailedError(table, err)
	}
	return f, nil
}

func (n *Normalizer) report(rep LoadReport) {
	metrics.IngestRows.WithLabelValues(rep.Table, "kept").Add(float64(rep.RowsKept))
	metrics.IngestRows.WithLabelValues(rep.Table, "invalid_id").Add(float64(rep.DroppedInvalidID))
	metrics.IngestRows.WithLabelValues(rep.Table, "empty_title").Add(float64(rep.DroppedEmptyTitle))
	metrics.IngestRows.WithLabelValues(rep.Table, "malformed").Add(float64(rep.MalformedRows))

	fields := map[string]interface{}{
		"table":             rep.Table,
		"rowsRead":          rep.RowsRead,
		"rowsKept":          rep.RowsKept,
		"droppedInvalidId":  rep.DroppedInvalidID,
		"droppedEmptyTitle": rep.DroppedEmptyTitle,
		"malformedRows":     rep.MalformedRows,
	}
	if rep.Dropped() > 0 {
		n.logger.Warn("rows dropped while loading table", fields)
		return
	}
	n.logger.Info("table loaded", fields)
}

// cleanText maps the "nan" placeholder pandas leaves in empty text cells
// to "" and trims surrounding whitespace.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}
