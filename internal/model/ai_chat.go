// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// ChatStatus 对话会话状态常量
const (
	ChatStatusActive    = "active"    // 进行中，可以继续提问
	ChatStatusCompleted = "completed" // 已结束（达到轮数上限），不再接受新消息
)

// ChatSender 消息发送方常量
const (
	ChatSenderUser = "user" // 用户提问
	ChatSenderAI   = "ai"   // AI 回复
)

// MaxChatRounds 单个会话允许的最大对话轮数
// 一轮 = 一次用户提问 + 一次 AI 回复
const MaxChatRounds = 12

// AiChatSession AI 对话会话
// 对应数据库表 ai_chat_sessions
// 表示用户围绕一篇短文发起的一次多轮对话
type AiChatSession struct {
	// ID 会话唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 发起用户ID，外键关联 users.id
	UserID int64 `gorm:"index;not null" json:"user_id"`

	// WordStoryID 关联的短文ID，可选
	WordStoryID *int64 `gorm:"index" json:"word_story_id,omitempty"`

	// CozeConversationID 远端会话标识
	// 首次交互后由 Coze 返回，之后每轮请求携带它实现多轮续聊
	CozeConversationID *string `gorm:"size:128" json:"-"`

	// TotalRounds 已完成的对话轮数
	// 不变式: TotalRounds <= MaxChatRounds
	TotalRounds int `gorm:"default:0" json:"total_rounds"`

	// Status 会话状态
	// active: 进行中
	// completed: 已结束，状态只会单向流转
	Status string `gorm:"size:32;default:active;index" json:"status"`

	// StartedAt 会话开始时间
	StartedAt time.Time `gorm:"autoCreateTime" json:"started_at"`

	// EndedAt 会话结束时间，仅当状态为 completed 时有值
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// Extra 额外信息，JSON 存储
	// story_text 键保存会话开始时的短文快照，首轮提问时拼接给远端模型
	Extra map[string]interface{} `gorm:"serializer:json" json:"-"`

	// User 所属用户（多对一关系）
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	// Messages 会话中的所有消息（一对多关系）
	Messages []AiChatMessage `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
}

// TableName 指定表名
func (AiChatSession) TableName() string {
	return "ai_chat_sessions"
}

// AiChatMessage AI 对话消息
// 对应数据库表 ai_chat_messages
type AiChatMessage struct {
	// ID 消息唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// ChatID 所属会话ID，外键关联 ai_chat_sessions.id
	// 与 Sequence 构成唯一索引，并发追加分配到重复序号时直接写入失败
	ChatID int64 `gorm:"index;uniqueIndex:uq_chat_sequence;not null" json:"chat_id"`

	// Sender 发送方
	// user: 用户提问
	// ai: AI 回复
	Sender string `gorm:"size:16;not null" json:"sender"`

	// Content 展示给用户的消息文案
	// 注意: 首轮提问实际发给远端的内容可能带短文前缀，存储在 Payload 里
	Content string `gorm:"type:text;not null" json:"content"`

	// Payload 额外数据，JSON 存储
	// 用户消息记录实际发送内容，AI 消息记录远端响应元数据
	Payload map[string]interface{} `gorm:"serializer:json" json:"-"`

	// Sequence 会话内的排序序号，从 0 开始严格递增
	// 由仓储层在事务里锁定会话行后按 max+1 分配，并发追加也不会重复
	Sequence int `gorm:"uniqueIndex:uq_chat_sequence;not null;default:0" json:"sequence"`

	// CreatedAt 消息创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Chat 所属会话（多对一关系）
	Chat *AiChatSession `gorm:"foreignKey:ChatID" json:"chat,omitempty"`
}

// TableName 指定表名
func (AiChatMessage) TableName() string {
	return "ai_chat_messages"
}
