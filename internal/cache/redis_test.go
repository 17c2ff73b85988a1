package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, 5*time.Minute), mr
}

func TestDirectory_MissThenHit(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.GetDirectory(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	list := []domain.Nonprofit{
		{ID: uuid.New(), Name: "Clean Water Fund", Status: domain.NonprofitApproved},
		{ID: uuid.New(), Name: "Food Bank", Status: domain.NonprofitApproved},
	}
	require.NoError(t, c.SetDirectory(ctx, list))
	assert.True(t, mr.Exists(directoryKey))

	got, err := c.GetDirectory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, list[0].ID, got[0].ID)
	assert.Equal(t, "Food Bank", got[1].Name)
}

func TestNonprofit_TTLApplied(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()
	n := &domain.Nonprofit{ID: uuid.New(), Name: "Shelter", Status: domain.NonprofitApproved}

	require.NoError(t, c.SetNonprofit(ctx, n))
	ttl := mr.TTL(nonprofitKey(n.ID))
	assert.GreaterOrEqual(t, ttl, 5*time.Minute)
	assert.LessOrEqual(t, ttl, 6*time.Minute)

	mr.FastForward(7 * time.Minute)
	_, err := c.GetNonprofit(ctx, n.ID)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestInvalidate_DropsEntryAndDirectory(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()
	n := &domain.Nonprofit{ID: uuid.New(), Name: "Shelter", Status: domain.NonprofitApproved}

	require.NoError(t, c.SetNonprofit(ctx, n))
	require.NoError(t, c.SetDirectory(ctx, []domain.Nonprofit{*n}))

	require.NoError(t, c.Invalidate(ctx, n.ID))
	assert.False(t, mr.Exists(nonprofitKey(n.ID)))
	assert.False(t, mr.Exists(directoryKey))
}

func TestGet_CorruptValue(t *testing.T) {
	c, mr := setupTestRedis(t)
	id := uuid.New()
	require.NoError(t, mr.Set(nonprofitKey(id), "{not json"))

	_, err := c.GetNonprofit(context.Background(), id)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestGet_ServerDown(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()

	_, err := c.GetDirectory(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
