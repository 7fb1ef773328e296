package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"letter-learning-server/internal/model"
)

// seedPlan 建一本书、三天词表和一个激活计划
func seedPlan(t *testing.T, db *gorm.DB, userID int64) *model.UserWordBook {
	t.Helper()
	book := &model.WordBook{Title: "考研核心词汇", IsPublished: true}
	require.NoError(t, db.Create(book).Error)

	entries := []string{"abandon", "benefit", "challenge", "decline", "essential", "function"}
	for i, w := range entries {
		entry := &model.WordBookWord{WordBookID: book.ID, Word: w, OrderIndex: i}
		require.NoError(t, db.Create(entry).Error)
	}

	plan := &model.UserWordBook{
		UserID:     userID,
		WordBookID: book.ID,
		DailyQuota: 2,
		StartDate:  time.Date(2026, 8, 30, 0, 0, 0, 0, time.Local),
		Status:     model.UserWordBookStatusActive,
		TotalDays:  3,
	}
	require.NoError(t, db.Create(plan).Error)

	// 前两个词排到第 1 天，倒序写入检验取出时按天内顺序重排
	var bookWords []model.WordBookWord
	require.NoError(t, db.Order("order_index ASC").Find(&bookWords).Error)
	require.NoError(t, db.Create(&model.UserWordBookWord{
		UserWordBookID: plan.ID, WordBookWordID: bookWords[1].ID, DayIndex: 1, SequenceInDay: 2,
	}).Error)
	require.NoError(t, db.Create(&model.UserWordBookWord{
		UserWordBookID: plan.ID, WordBookWordID: bookWords[0].ID, DayIndex: 1, SequenceInDay: 1,
	}).Error)
	return plan
}

func TestGetLatestActiveByUserPreloadsBook(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserWordBookRepository(db)
	seedPlan(t, db, 1)

	plan, err := repo.GetLatestActiveByUser(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.NotNil(t, plan.Book)
	require.Equal(t, "考研核心词汇", plan.Book.Title)

	// 没有计划的用户返回 nil 而非错误
	missing, err := repo.GetLatestActiveByUser(context.Background(), 2)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestListWordsForDayFollowsArrangement(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserWordBookRepository(db)
	plan := seedPlan(t, db, 1)

	words, err := repo.ListWordsForDay(context.Background(), plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"abandon", "benefit"}, words)

	// 未编排的天返回空
	words, err = repo.ListWordsForDay(context.Background(), plan.ID, 2)
	require.NoError(t, err)
	require.Empty(t, words)
}

func TestListBookWordsHonorsOrderAndLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserWordBookRepository(db)
	plan := seedPlan(t, db, 1)

	words, err := repo.ListBookWords(context.Background(), plan.WordBookID, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"abandon", "benefit", "challenge"}, words)
}
