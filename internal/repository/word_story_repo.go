// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"letter-learning-server/internal/model"
)

// WordStoryRepository 每日短文数据访问层
// 负责短文记录的查询与保存
type WordStoryRepository struct {
	db *gorm.DB
}

// NewWordStoryRepository 创建 WordStoryRepository 实例
func NewWordStoryRepository(db *gorm.DB) *WordStoryRepository {
	return &WordStoryRepository{db: db}
}

// GetByUserAndDate 获取用户某一天的短文记录
// (user_id, story_date) 上有唯一索引，最多返回一条
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - date: 短文日期（只取日期部分）
//
// 返回:
//   - *model.WordStory: 短文记录，未找到返回 nil
//   - error: 数据库错误
func (r *WordStoryRepository) GetByUserAndDate(ctx context.Context, userID int64, date time.Time) (*model.WordStory, error) {
	// 按半开区间 [当天零点, 次日零点) 匹配，不依赖方言的日期格式
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	var story model.WordStory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND story_date >= ? AND story_date < ?", userID, dayStart, dayStart.AddDate(0, 0, 1)).
		First(&story).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &story, nil
}

// GetByIDAndUser 获取用户的某条短文记录
// 带 user_id 条件，防止越权访问他人短文
func (r *WordStoryRepository) GetByIDAndUser(ctx context.Context, id, userID int64) (*model.WordStory, error) {
	var story model.WordStory
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&story).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &story, nil
}

// ListRecent 获取用户最近的短文记录
// 按日期倒序排列（最新的在前）
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - limit: 最多返回的条数
//
// 返回:
//   - []model.WordStory: 短文列表
//   - error: 数据库错误
func (r *WordStoryRepository) ListRecent(ctx context.Context, userID int64, limit int) ([]model.WordStory, error) {
	var stories []model.WordStory
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("story_date DESC").
		Limit(limit).
		Find(&stories).Error
	return stories, err
}

// Upsert 保存短文记录
// 按 (user_id, story_date) 唯一键插入或更新
// 强制重新生成时会覆盖当天的旧记录
// 参数:
//   - ctx: 上下文
//   - story: 短文对象，插入时 ID 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *WordStoryRepository) Upsert(ctx context.Context, story *model.WordStory) error {
	// ON CONFLICT 命中唯一索引时改为更新
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "story_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"generated_at", "words", "story_text", "story_tokens", "model_name",
			"image_url", "image_caption", "status", "extra",
		}),
	}).Create(story).Error
}

// CountByUser 统计用户的短文总数
func (r *WordStoryRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WordStory{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
