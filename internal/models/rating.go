package models

// RatingInteraction is one user-movie feedback event on the 1-5 scale.
// Rating and Timestamp are optional: nil means the source cell was blank.
type RatingInteraction struct {
	UserID    int64    `json:"user_id"`
	MovieID   int64    `json:"movie_id"`
	Rating    *float64 `json:"rating,omitempty"`
	Timestamp *int64   `json:"timestamp,omitempty"`
}

// UserPreferenceProfile is derived from a user's liked movies.
type UserPreferenceProfile struct {
	UserID             string   `json:"user_id"`
	PreferredGenres    []string `json:"preferred_genres"`
	PreferredDirectors []string `json:"preferred_directors"`
	LikedCount         int      `json:"liked_count"`
	ComputedAt         int64    `json:"computed_at"`
}
