package profile

import (
	"strconv"
	"sync"

	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/models"
)

// History indexes the ratings table by user on first use.
type History struct {
	once   sync.Once
	load   func() ([]models.RatingInteraction, error)
	byUser map[string][]models.RatingInteraction
	logger logger.Logger
}

func NewHistory(load func() ([]models.RatingInteraction, error), log logger.Logger) *History {
	return &History{load: load, logger: log.WithFields(map[string]interface{}{"component": "history"})}
}

// For returns the user's ratings in file order. A failed load leaves every
// history empty.
func (h *History) For(userID string) []models.RatingInteraction {
	h.once.Do(func() {
		h.byUser = map[string][]models.RatingInteraction{}
		ratings, err := h.load()
		if err != nil {
			h.logger.Warn("rating history unavailable", map[string]interface{}{"error": err})
			return
		}
		for _, r := range ratings {
			id := strconv.FormatInt(r.UserID, 10)
			h.byUser[id] = append(h.byUser[id], r)
		}
		h.logger.Info("rating history indexed", map[string]interface{}{"ratings": len(ratings), "users": len(h.byUser)})
	})
	return h.byUser[userID]
}
