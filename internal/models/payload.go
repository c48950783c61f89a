package models

// ItemValues carries every declared item property. Set-typed fields must be
// non-nil so they encode as [] rather than null.
type ItemValues struct {
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

// ItemPayload is one item upsert.
type ItemPayload struct {
	ItemID string     `json:"itemId"`
	Values ItemValues `json:"values"`
}

// InteractionPayload is one rating on the [-1,1] scale. Timestamp is
// omitted, never zeroed, when unknown.
type InteractionPayload struct {
	UserID    string  `json:"userId"`
	ItemID    string  `json:"itemId"`
	Rating    float64 `json:"rating"`
	Timestamp *int64  `json:"timestamp,omitempty"`
}

// UserValues carries the declared user properties.
type UserValues struct {
	PreferredGenres    []string `json:"preferred_genres,omitempty"`
	PreferredDirectors []string `json:"preferred_directors,omitempty"`
	RegistrationDate   string   `json:"registration_date,omitempty"`
}
