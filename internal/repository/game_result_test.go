package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameResultRepository_Create(t *testing.T) {
	repo := NewGameResultRepository(TestDB(t))
	ctx := context.Background()

	result := CreateTestGameResult("ABC234", "majority", 3, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, result))
	assert.NotZero(t, result.ID)
	assert.Equal(t, 10*time.Minute, result.Duration())
}

func TestGameResultRepository_FindByRoomCode(t *testing.T) {
	repo := NewGameResultRepository(TestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, CreateTestGameResult("ABC234", "majority", i+1, now.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Create(ctx, CreateTestGameResult("XYZ789", "minority", 2, now)))

	p := NewPagination(1, 3)
	results, err := repo.FindByRoomCode(ctx, "ABC234", p)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, int64(5), p.Total)
	// 最近结束的排在前面
	assert.Equal(t, 5, results[0].Rounds)
}

func TestGameResultRepository_GetWinnerStatistics(t *testing.T) {
	repo := NewGameResultRepository(TestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, CreateTestGameResult("AAA222", "majority", 2, now)))
	require.NoError(t, repo.Create(ctx, CreateTestGameResult("AAA222", "majority", 4, now)))
	blank := CreateTestGameResult("BBB333", "blank", 3, now)
	blank.BlankGuessed = true
	require.NoError(t, repo.Create(ctx, blank))
	// 统计区间之外
	require.NoError(t, repo.Create(ctx, CreateTestGameResult("CCC444", "minority", 1, now.Add(-48*time.Hour))))

	stats, err := repo.GetWinnerStatistics(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalGames)
	assert.Equal(t, int64(2), stats.ByWinner["majority"])
	assert.Equal(t, int64(1), stats.ByWinner["blank"])
	assert.InDelta(t, 3.0, stats.AverageRounds, 0.001)
	assert.Equal(t, int64(1), stats.BlankGuesses)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 500)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 20)
	assert.Equal(t, 40, p.Offset())
}
