// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"letter-learning-server/internal/model"
)

// AiChatRepository AI 对话数据访问层
// 负责对话会话和消息的所有数据库操作
type AiChatRepository struct {
	db *gorm.DB
}

// NewAiChatRepository 创建 AiChatRepository 实例
func NewAiChatRepository(db *gorm.DB) *AiChatRepository {
	return &AiChatRepository{db: db}
}

// CreateSession 创建新会话
// 参数:
//   - ctx: 上下文
//   - session: 会话对象，ID 和 StartedAt 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *AiChatRepository) CreateSession(ctx context.Context, session *model.AiChatSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetSessionByIDAndUser 获取用户的某个会话
// 带 user_id 条件，防止越权访问他人会话
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//   - userID: 用户ID
//
// 返回:
//   - *model.AiChatSession: 会话对象，未找到返回 nil
//   - error: 数据库错误
func (r *AiChatRepository) GetSessionByIDAndUser(ctx context.Context, id, userID int64) (*model.AiChatSession, error) {
	var session model.AiChatSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// UpdateSessionFields 更新会话的指定字段
func (r *AiChatRepository) UpdateSessionFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.AiChatSession{}).Where("id = ?", id).Updates(fields).Error
}

// ListMessages 获取会话的所有消息
// 按序号正序排列（最早的在前）
// 参数:
//   - ctx: 上下文
//   - chatID: 会话ID
//
// 返回:
//   - []model.AiChatMessage: 消息列表
//   - error: 数据库错误
func (r *AiChatRepository) ListMessages(ctx context.Context, chatID int64) ([]model.AiChatMessage, error) {
	var messages []model.AiChatMessage
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("sequence ASC"). // 按序号正序，方便展示对话
		Find(&messages).Error
	return messages, err
}

// AppendMessage 追加一条消息并分配序号
// 序号在事务里锁定会话行后按当前最大值 +1 分配，保证同一会话内严格递增
// 参数:
//   - ctx: 上下文
//   - message: 消息对象，Sequence 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *AiChatRepository) AppendMessage(ctx context.Context, message *model.AiChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSequence(tx, message.ChatID)
		if err != nil {
			return err
		}
		message.Sequence = seq
		return tx.Create(message).Error
	})
}

// AppendExchange 原子地追加一轮问答
// 一个事务内写入用户消息、AI 消息，并更新会话的轮数与状态字段
// 任一步失败则整体回滚，不会留下只有提问没有回复的半轮
// 参数:
//   - ctx: 上下文
//   - userMsg: 用户消息，Sequence 会被自动填充
//   - aiMsg: AI 消息，Sequence 会被自动填充（紧跟用户消息之后）
//   - sessionFields: 会话要更新的字段（total_rounds、status、coze_conversation_id 等）
//
// 返回:
//   - error: 数据库错误
func (r *AiChatRepository) AppendExchange(ctx context.Context, userMsg, aiMsg *model.AiChatMessage, sessionFields map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSequence(tx, userMsg.ChatID)
		if err != nil {
			return err
		}

		userMsg.Sequence = seq
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}

		aiMsg.Sequence = seq + 1
		if err := tx.Create(aiMsg).Error; err != nil {
			return err
		}

		if len(sessionFields) > 0 {
			return tx.Model(&model.AiChatSession{}).
				Where("id = ?", userMsg.ChatID).
				Updates(sessionFields).Error
		}
		return nil
	})
}

// nextSequence 计算会话内的下一个消息序号
// 必须在事务内调用
// 先对会话行加排他锁，两个并发追加者在这里串行化，
// 否则 REPEATABLE READ 下二者会读到相同的 MAX 并分配重复序号；
// (chat_id, sequence) 上的唯一索引兜底拒绝漏网的重复
func nextSequence(tx *gorm.DB, chatID int64) (int, error) {
	var session model.AiChatSession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&session, chatID).Error
	if err != nil {
		return 0, err
	}

	var maxSeq *int
	// 空会话时 MAX 为 NULL，第一条消息的序号为 0
	err = tx.Model(&model.AiChatMessage{}).
		Where("chat_id = ?", chatID).
		Select("MAX(sequence)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq + 1, nil
}

// CountMessages 统计会话的消息数量
func (r *AiChatRepository) CountMessages(ctx context.Context, chatID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.AiChatMessage{}).Where("chat_id = ?", chatID).Count(&count).Error
	return count, err
}

// ListSessionsByUser 获取用户的会话列表
// 按开始时间倒序排列
func (r *AiChatRepository) ListSessionsByUser(ctx context.Context, userID int64, limit int) ([]model.AiChatSession, error) {
	var sessions []model.AiChatSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}
