// Package profile derives and caches user preference profiles from rating
// history.
package profile

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"movie-recommender/internal/models"
)

const (
	DefaultLikeThreshold = 3.5
	MaxGenres            = 10
	MaxDirectors         = 5
)

// Lookup resolves a movie id to its catalog entry.
type Lookup func(movieID string) (models.MovieSummary, bool)

// Build ranks the genres and directors of movies rated at or above
// threshold by how often they occur. Equal counts keep the order in which
// values were first seen. Ratings without a value and unknown movies are
// ignored.
func Build(userID string, history []models.RatingInteraction, lookup Lookup, threshold float64, now time.Time) models.UserPreferenceProfile {
	genres := newCounter()
	directors := newCounter()
	liked := 0

	for _, r := range history {
		if r.Rating == nil || *r.Rating < threshold {
			continue
		}
		m, ok := lookup(strconv.FormatInt(r.MovieID, 10))
		if !ok {
			continue
		}
		liked++
		for _, g := range m.Genres {
			genres.add(g)
		}
		directors.add(m.Director)
	}

	return models.UserPreferenceProfile{
		UserID:             userID,
		PreferredGenres:    genres.top(MaxGenres),
		PreferredDirectors: directors.top(MaxDirectors),
		LikedCount:         liked,
		ComputedAt:         now.Unix(),
	}
}

type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: map[string]int{}}
}

func (c *counter) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if _, seen := c.counts[v]; !seen {
		c.order = append(c.order, v)
	}
	c.counts[v]++
}

func (c *counter) top(n int) []string {
	out := append([]string{}, c.order...)
	sort.SliceStable(out, func(i, j int) bool {
		return c.counts[out[i]] > c.counts[out[j]]
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
