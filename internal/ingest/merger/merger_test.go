package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movie-recommender/internal/models"
)

func movie(id int64, title string) models.MovieRecord {
	return models.MovieRecord{ID: id, Title: title, Genres: []string{"Drama"}, Keywords: []string{}, Actors: []string{}}
}

func TestMerge_PreservesRowCount(t *testing.T) {
	var movies []models.MovieRecord
	var keywords []models.KeywordRecord
	for i := int64(1); i <= 100; i++ {
		movies = append(movies, movie(i, "m"))
		if i <= 60 {
			keywords = append(keywords, models.KeywordRecord{ID: i, Keywords: []string{"kw"}})
		}
	}

	out, rep := Merge(movies, keywords, nil)
	require.Len(t, out, 100)
	assert.Equal(t, 60, rep.MatchedKeywords)
	assert.Equal(t, 0, rep.MatchedCredits)

	withKeywords := 0
	for i, m := range out {
		assert.Equal(t, movies[i].ID, m.ID, "order preserved")
		require.NotNil(t, m.Keywords)
		require.NotNil(t, m.Actors)
		if len(m.Keywords) > 0 {
			withKeywords++
		}
	}
	assert.Equal(t, 60, withKeywords)
}

func TestMerge_Credits(t *testing.T) {
	movies := []models.MovieRecord{movie(862, "Toy Story"), movie(8844, "Jumanji")}
	credits := []models.CreditRecord{
		{ID: 862, Director: "John Lasseter", Actors: []string{"Tom Hanks", "Tim Allen"}},
	}

	out, rep := Merge(movies, nil, credits)
	require.Len(t, out, 2)
	assert.Equal(t, "John Lasseter", out[0].Director)
	assert.Equal(t, []string{"Tom Hanks", "Tim Allen"}, out[0].Actors)
	assert.Equal(t, "", out[1].Director)
	assert.Equal(t, []string{}, out[1].Actors)
	assert.Equal(t, 1, rep.MatchedCredits)
}

func TestMerge_DuplicateRightIDsFirstSeenWins(t *testing.T) {
	movies := []models.MovieRecord{movie(1, "A")}
	keywords := []models.KeywordRecord{
		{ID: 1, Keywords: []string{"first"}},
		{ID: 1, Keywords: []string{"second"}},
	}
	credits := []models.CreditRecord{
		{ID: 1, Director: "First"},
		{ID: 1, Director: "Second"},
		{ID: 1, Director: "Third"},
	}

	out, rep := Merge(movies, keywords, credits)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"first"}, out[0].Keywords)
	assert.Equal(t, "First", out[0].Director)
	assert.Equal(t, []string{}, out[0].Actors)
	assert.Equal(t, 1, rep.DuplicateKeywordIDs)
	assert.Equal(t, 2, rep.DuplicateCreditIDs)
}

func TestMerge_DoesNotAliasInputs(t *testing.T) {
	movies := []models.MovieRecord{movie(1, "A")}
	keywords := []models.KeywordRecord{{ID: 1, Keywords: []string{"k"}}}

	out, _ := Merge(movies, keywords, nil)
	out[0].Keywords[0] = "changed"
	assert.Equal(t, "k", keywords[0].Keywords[0])
	assert.Equal(t, []string{}, movies[0].Keywords)
}

func TestMerge_Empty(t *testing.T) {
	out, rep := Merge(nil, nil, nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Equal(t, 0, rep.Movies)
}
