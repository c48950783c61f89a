package profile

import (
	"context"
	"time"

	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/metrics"
	"movie-recommender/internal/models"
)

// Store is the cache the Service reads through. A nil Store disables
// caching.
type Store interface {
	Get(ctx context.Context, userID string) (models.UserPreferenceProfile, bool, error)
	Put(ctx context.Context, p models.UserPreferenceProfile) error
	GetDeclared(ctx context.Context, userID string) (Declared, bool, error)
	PutDeclared(ctx context.Context, d Declared) error
}

// Service computes profiles lazily. A cached profile is served until it
// expires; new ratings do not invalidate it.
type Service struct {
	history   func(userID string) []models.RatingInteraction
	lookup    Lookup
	store     Store
	threshold float64
	logger    logger.Logger
	now       func() time.Time
}

func NewService(history func(string) []models.RatingInteraction, lookup Lookup, store Store, threshold float64, log logger.Logger) *Service {
	if threshold <= 0 {
		threshold = DefaultLikeThreshold
	}
	return &Service{
		history:   history,
		lookup:    lookup,
		store:     store,
		threshold: threshold,
		logger:    log.WithFields(map[string]interface{}{"component": "profile"}),
		now:       time.Now,
	}
}

// Profile returns the user's derived preferences. Cache failures are
// logged and the profile is computed directly.
func (s *Service) Profile(ctx context.Context, userID string) models.UserPreferenceProfile {
	if s.store != nil {
		p, ok, err := s.store.Get(ctx, userID)
		switch {
		case err != nil:
			metrics.ProfileCache.WithLabelValues("error").Inc()
			s.logger.Warn("profile cache read failed", map[string]interface{}{"userId": userID, "error": err})
		case ok:
			metrics.ProfileCache.WithLabelValues("hit").Inc()
			return p
		default:
			metrics.ProfileCache.WithLabelValues("miss").Inc()
		}
	}

	p := Build(userID, s.history(userID), s.lookup, s.threshold, s.now())
	if s.store != nil {
		if err := s.store.Put(ctx, p); err != nil {
			s.logger.Warn("profile cache write failed", map[string]interface{}{"userId": userID, "error": err})
		}
	}
	return p
}

// Declare records registration choices. Without a store it is a no-op.
func (s *Service) Declare(ctx context.Context, userID string, genres, directors []string) error {
	if s.store == nil {
		return nil
	}
	return s.store.PutDeclared(ctx, Declared{
		UserID:             userID,
		PreferredGenres:    nonNil(genres),
		PreferredDirectors: nonNil(directors),
		RegisteredAt:       s.now().Unix(),
	})
}

// Declared returns registration choices, ok=false when unknown.
func (s *Service) Declared(ctx context.Context, userID string) (Declared, bool) {
	if s.store == nil {
		return Declared{}, false
	}
	d, ok, err := s.store.GetDeclared(ctx, userID)
	if err != nil {
		s.logger.Warn("declared preferences unavailable", map[string]interface{}{"userId": userID, "error": err})
		return Declared{}, false
	}
	return d, ok
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
