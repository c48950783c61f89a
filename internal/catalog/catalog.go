// Package catalog holds a read-only snapshot of the movie metadata. It backs
// movie detail lookups, the popular listing and every demo-mode response.
package catalog

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/ingest/merger"
	"movie-recommender/internal/ingest/normalizer"
	"movie-recommender/internal/models"
)

const (
	// PopularQuantile is the vote-count cut below which movies are not
	// ranked as popular.
	PopularQuantile = 0.75

	// PopularOverviewRunes bounds overviews in the popular listing.
	PopularOverviewRunes = 200
)

// Snapshot is immutable once built and safe for concurrent reads.
type Snapshot struct {
	movies []models.MovieRecord
	byID   map[string]int
	demo   bool
}

// New indexes movies. The first record wins for a repeated id.
func New(movies []models.MovieRecord) *Snapshot {
	s := &Snapshot{
		movies: movies,
		byID:   make(map[string]int, len(movies)),
	}
	for i, m := range movies {
		id := strconv.FormatInt(m.ID, 10)
		if _, ok := s.byID[id]; !ok {
			s.byID[id] = i
		}
	}
	return s
}

// Load reads the movie table plus the optional keyword and credit tables.
func Load(dataset config.DatasetConfig, log logger.Logger) (*Snapshot, error) {
	n := normalizer.New(log)
	movies, _, err := n.LoadMoviesFile(dataset.MoviesPath())
	if err != nil {
		return nil, err
	}
	keywords, _, err := n.LoadKeywordsFile(dataset.KeywordsPath())
	if err != nil && apperrors.CodeOf(err) != apperrors.ErrCodeDatasetMissing {
		return nil, err
	}
	credits, _, err := n.LoadCreditsFile(dataset.CreditsPath())
	if err != nil && apperrors.CodeOf(err) != apperrors.ErrCodeDatasetMissing {
		return nil, err
	}
	merged, _ := merger.Merge(movies, keywords, credits)
	return New(merged), nil
}

func (s *Snapshot) Len() int { return len(s.movies) }

// IsDemo reports whether the snapshot is the built-in demo list.
func (s *Snapshot) IsDemo() bool { return s.demo }

// Movies returns the records in load order. Callers must not modify them.
func (s *Snapshot) Movies() []models.MovieRecord { return s.movies }

// ByID finds a movie by its decimal id. "862.0" matches 862.
func (s *Snapshot) ByID(id string) (models.MovieSummary, bool) {
	id = strings.TrimSpace(id)
	if i, ok := s.byID[id]; ok {
		return s.movies[i].Summary(), true
	}
	if f, err := strconv.ParseFloat(id, 64); err == nil && f == math.Trunc(f) {
		if i, ok := s.byID[strconv.FormatInt(int64(f), 10)]; ok {
			return s.movies[i].Summary(), true
		}
	}
	return models.MovieSummary{}, false
}

// Popular ranks movies whose vote count reaches the 75th percentile by
// vote_count * vote_average, highest first, ties in load order. The demo
// snapshot keeps its fixed order.
func (s *Snapshot) Popular(n int) []models.MovieSummary {
	out := []models.MovieSummary{}
	if n <= 0 || len(s.movies) == 0 {
		return out
	}
	if s.demo {
		for _, m := range s.movies {
			if len(out) == n {
				break
			}
			out = append(out, m.Summary())
		}
		return out
	}

	counts := make([]float64, len(s.movies))
	for i, m := range s.movies {
		counts[i] = float64(m.VoteCount)
	}
	minVotes := Quantile(counts, PopularQuantile)

	candidates := make([]models.MovieRecord, 0, len(s.movies)/4+1)
	for _, m := range s.movies {
		if float64(m.VoteCount) >= minVotes {
			candidates = append(candidates, m)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return score(candidates[i]) > score(candidates[j])
	})

	for _, m := range candidates {
		if len(out) == n {
			break
		}
		sum := m.Summary()
		sum.Overview = truncateRunes(sum.Overview, PopularOverviewRunes)
		out = append(out, sum)
	}
	return out
}

func score(m models.MovieRecord) float64 {
	return float64(m.VoteCount) * m.VoteAverage
}

// ByGenre returns up to n movies carrying genre, in load order. n <= 0
// means no limit.
func (s *Snapshot) ByGenre(genre string, n int) []models.MovieSummary {
	out := []models.MovieSummary{}
	for _, m := range s.movies {
		if n > 0 && len(out) == n {
			break
		}
		for _, g := range m.Genres {
			if g == genre {
				out = append(out, m.Summary())
				break
			}
		}
	}
	return out
}

// MatchingGenres returns movies that carry any of genres, in load order.
// An empty genre list matches everything.
func (s *Snapshot) MatchingGenres(genres []string, n int) []models.MovieSummary {
	want := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		want[g] = struct{}{}
	}
	out := []models.MovieSummary{}
	for _, m := range s.movies {
		if n > 0 && len(out) == n {
			break
		}
		if len(want) == 0 || hasAny(m.Genres, want) {
			out = append(out, m.Summary())
		}
	}
	return out
}

func hasAny(genres []string, want map[string]struct{}) bool {
	for _, g := range genres {
		if _, ok := want[g]; ok {
			return true
		}
	}
	return false
}

// Genres lists the distinct genres present, sorted.
func (s *Snapshot) Genres() []string {
	seen := map[string]struct{}{}
	for _, m := range s.movies {
		for _, g := range m.Genres {
			seen[g] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Search matches query case-insensitively against titles. It serves as
// the search backend when no index is configured.
func (s *Snapshot) Search(query string, n int) []models.MovieSummary {
	out := []models.MovieSummary{}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return out
	}
	for _, m := range s.movies {
		if n > 0 && len(out) == n {
			break
		}
		if strings.Contains(strings.ToLower(m.Title), q) {
			out = append(out, m.Summary())
		}
	}
	return out
}

// Quantile uses linear interpolation between closest ranks. values is not
// modified.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Lazy loads a snapshot on first use and keeps it for the process
// lifetime. A failed load falls back to the demo snapshot.
type Lazy struct {
	once   sync.Once
	load   func() (*Snapshot, error)
	snap   *Snapshot
	logger logger.Logger
}

func NewLazy(load func() (*Snapshot, error), log logger.Logger) *Lazy {
	return &Lazy{load: load, logger: log.WithFields(map[string]interface{}{"component": "catalog"})}
}

func (l *Lazy) Snapshot() *Snapshot {
	l.once.Do(func() {
		snap, err := l.load()
		if err != nil {
			l.logger.Warn("catalog unavailable, serving demo movies", map[string]interface{}{"error": err})
			l.snap = Demo()
			return
		}
		l.logger.Info("catalog loaded", map[string]interface{}{"movies": snap.Len()})
		l.snap = snap
	})
	return l.snap
}
