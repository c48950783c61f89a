package reql

import "strings"

// GenreFilter keeps items carrying at least one of the given genres.
// Blank and repeated genres are ignored; no genres gives nil.
func GenreFilter(genres []string) Expr {
	seen := make(map[string]bool, len(genres))
	var terms []Expr
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		terms = append(terms, In(Str(g), Prop("genres")))
	}
	if len(terms) == 0 {
		return nil
	}
	return Or(terms...)
}

// HiddenGemBooster favours well rated titles with few votes.
func HiddenGemBooster() Expr {
	return If(
		And(
			Cmp(Prop("vote_average"), Ge, Num(7.5)),
			Cmp(Prop("vote_count"), Lt, Num(1000)),
		),
		Num(1.5),
		If(Cmp(Prop("vote_average"), Ge, Num(7)), Num(1.2), Num(1)),
	)
}

// PopularityBooster scales by vote average, with extra weight for titles
// with more than a thousand votes.
func PopularityBooster() Expr {
	return Mul(
		Prop("vote_average"),
		If(Cmp(Prop("vote_count"), Gt, Num(1000)), Num(1.5), Num(1)),
	)
}
