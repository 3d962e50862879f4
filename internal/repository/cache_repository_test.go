package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	ctx := context.Background()

	var dest map[string]string
	require.ErrorIs(t, repo.Get(ctx, "timetable:v1:abc", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "timetable:v1:abc", map[string]string{"a": "b"}, time.Minute))
	require.NoError(t, repo.DeleteByPattern(ctx, "timetable:*"))
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())
}
