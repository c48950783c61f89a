package runingestion

// Input carries no reset switch: wiping the recommendation database is left
// to the ingest CLI, behind its confirmation prompt.
type Input struct {
	MoviesOnly   bool `json:"moviesOnly,omitempty"`
	RatingsOnly  bool `json:"ratingsOnly,omitempty"`
	LimitMovies  int  `json:"limitMovies,omitempty"`
	LimitRatings int  `json:"limitRatings,omitempty"`
	Test         bool `json:"test,omitempty"`
}

type Output struct {
	RunID                 string `json:"runId,omitempty"`
	Status                string `json:"status"`
	MoviesFormatted       int    `json:"moviesFormatted"`
	RatingsFormatted      int    `json:"ratingsFormatted"`
	ItemsSucceeded        int    `json:"itemsSucceeded"`
	ItemsFailed           int    `json:"itemsFailed"`
	InteractionsSucceeded int    `json:"interactionsSucceeded"`
	InteractionsFailed    int    `json:"interactionsFailed"`
	Indexed               int    `json:"indexed"`
	DurationMs            int64  `json:"durationMs"`
}
