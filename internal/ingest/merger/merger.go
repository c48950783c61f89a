// Package merger joins movie metadata with the keyword and credit tables.
package merger

import (
	"movie-recommender/internal/models"
)

// MergeReport describes the join. Duplicate ids on the right side are
// resolved first-seen-wins and counted here.
type MergeReport struct {
	Movies              int `json:"movies"`
	MatchedKeywords     int `json:"matched_keywords"`
	MatchedCredits      int `json:"matched_credits"`
	DuplicateKeywordIDs int `json:"duplicate_keyword_ids"`
	DuplicateCreditIDs  int `json:"duplicate_credit_ids"`
}

// Merge left-outer joins movies with keywords and credits on id. The output
// has exactly one record per input movie, in input order. Either side table
// may be nil when its file is absent. Inputs are not modified.
func Merge(movies []models.MovieRecord, keywords []models.KeywordRecord, credits []models.CreditRecord) ([]models.MovieRecord, MergeReport) {
	rep := MergeReport{Movies: len(movies)}

	kw := make(map[int64][]string, len(keywords))
	for _, k := range keywords {
		if _, dup := kw[k.ID]; dup {
			rep.DuplicateKeywordIDs++
			continue
		}
		kw[k.ID] = k.Keywords
	}

	cr := make(map[int64]models.CreditRecord, len(credits))
	for _, c := range credits {
		if _, dup := cr[c.ID]; dup {
			rep.DuplicateCreditIDs++
			continue
		}
		cr[c.ID] = c
	}

	out := make([]models.MovieRecord, 0, len(movies))
	for _, m := range movies {
		merged := m
		merged.Genres = nonNil(m.Genres)
		merged.Keywords = []string{}
		merged.Actors = []string{}
		merged.Director = ""

		if names, ok := kw[m.ID]; ok {
			merged.Keywords = copyNames(names)
			rep.MatchedKeywords++
		}
		if c, ok := cr[m.ID]; ok {
			merged.Director = c.Director
			merged.Actors = copyNames(c.Actors)
			rep.MatchedCredits++
		}
		out = append(out, merged)
	}
	return out, rep
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func copyNames(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
