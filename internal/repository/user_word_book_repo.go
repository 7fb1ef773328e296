// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"letter-learning-server/internal/model"
)

// UserWordBookRepository 学习计划数据访问层
// 负责用户词书计划与每日词表的查询
type UserWordBookRepository struct {
	db *gorm.DB
}

// NewUserWordBookRepository 创建 UserWordBookRepository 实例
func NewUserWordBookRepository(db *gorm.DB) *UserWordBookRepository {
	return &UserWordBookRepository{db: db}
}

// GetLatestActiveByUser 获取用户最近激活的学习计划
// 短文生成以它推算当天的学习进度
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - *model.UserWordBook: 计划对象（预加载单词书），未找到返回 nil
//   - error: 数据库错误
func (r *UserWordBookRepository) GetLatestActiveByUser(ctx context.Context, userID int64) (*model.UserWordBook, error) {
	var plan model.UserWordBook
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("user_id = ? AND status = ?", userID, model.UserWordBookStatusActive).
		Order("created_at DESC").
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// ListWordsForDay 获取计划中某一天编排的单词
// 按当天内的顺序排列
// 参数:
//   - ctx: 上下文
//   - planID: 学习计划ID
//   - dayIndex: 第几天，从 1 开始
//
// 返回:
//   - []string: 单词列表，当天没有编排返回空切片
//   - error: 数据库错误
func (r *UserWordBookRepository) ListWordsForDay(ctx context.Context, planID int64, dayIndex int) ([]string, error) {
	var words []string
	err := r.db.WithContext(ctx).
		Model(&model.UserWordBookWord{}).
		Joins("JOIN word_book_words ON word_book_words.id = user_word_book_words.word_book_word_id").
		Where("user_word_book_words.user_word_book_id = ? AND user_word_book_words.day_index = ?", planID, dayIndex).
		Order("user_word_book_words.sequence_in_day ASC").
		Pluck("word_book_words.word", &words).Error
	return words, err
}

// ListBookWords 获取计划关联单词书的前 N 个单词
// 当天没有编排词表时，按原书顺序取每日配额数量兜底
// 参数:
//   - ctx: 上下文
//   - wordBookID: 单词书ID
//   - limit: 最多返回的单词数
//
// 返回:
//   - []string: 单词列表
//   - error: 数据库错误
func (r *UserWordBookRepository) ListBookWords(ctx context.Context, wordBookID int64, limit int) ([]string, error) {
	var words []string
	err := r.db.WithContext(ctx).
		Model(&model.WordBookWord{}).
		Where("word_book_id = ?", wordBookID).
		Order("order_index ASC").
		Limit(limit).
		Pluck("word", &words).Error
	return words, err
}
