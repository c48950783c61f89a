package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedis(context.Background(), config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()
	assert.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), config.RedisConfig{Address: addr})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCacheFailed, apperrors.CodeOf(err))
}

func TestNewElasticsearch(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"cluster up", http.StatusOK, false},
		{"cluster error", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Elastic-Product", "Elasticsearch")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			es, err := NewElasticsearch(context.Background(), config.ElasticsearchConfig{URL: srv.URL})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeElasticsearchConnectionFailed, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, es)
		})
	}
}
