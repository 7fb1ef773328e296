package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"letter-learning-server/internal/model"
)

func storyOn(userID int64, date time.Time, text string) *model.WordStory {
	return &model.WordStory{
		UserID:      userID,
		StoryDate:   date,
		GeneratedAt: time.Now(),
		Words:       []string{"abandon", "benefit"},
		StoryText:   text,
		Status:      model.WordStoryStatusSuccess,
	}
}

func TestUpsertOverwritesSameDay(t *testing.T) {
	repo := NewWordStoryRepository(newTestDB(t))
	ctx := context.Background()
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.Local)

	require.NoError(t, repo.Upsert(ctx, storyOn(1, day, "first version")))
	require.NoError(t, repo.Upsert(ctx, storyOn(1, day, "second version")))

	// 同一用户同一天只保留一条，内容是后写入的
	count, err := repo.CountByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	got, err := repo.GetByUserAndDate(ctx, 1, day)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "second version", got.StoryText)
}

func TestGetByUserAndDateIgnoresOtherDaysAndUsers(t *testing.T) {
	repo := NewWordStoryRepository(newTestDB(t))
	ctx := context.Background()
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.Local)

	require.NoError(t, repo.Upsert(ctx, storyOn(1, day, "mine")))

	got, err := repo.GetByUserAndDate(ctx, 1, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = repo.GetByUserAndDate(ctx, 2, day)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestListRecentOrdersByDateDesc(t *testing.T) {
	repo := NewWordStoryRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 0, 0, 0, 0, time.Local)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Upsert(ctx, storyOn(1, base.AddDate(0, 0, i), "day")))
	}

	stories, err := repo.ListRecent(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, stories, 3)
	require.True(t, stories[0].StoryDate.After(stories[1].StoryDate))
	require.True(t, stories[1].StoryDate.After(stories[2].StoryDate))
}
