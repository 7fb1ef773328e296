// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// WordStoryStatus 短文生成状态常量
const (
	WordStoryStatusSuccess = "success" // 生成成功
	WordStoryStatusFailed  = "failed"  // 生成失败
)

// WordStory 每日 AI 词汇短文记录
// 对应数据库表 word_stories
// 同一用户同一日期只保留一条记录，重新生成时原地覆盖
type WordStory struct {
	// ID 短文唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 生成用户ID，外键关联 users.id
	UserID int64 `gorm:"index;uniqueIndex:uq_user_story_date;not null" json:"user_id"`

	// StoryDate 学习日期（只取日期部分）
	// 与 UserID 构成唯一索引，防止并发生成时产生重复记录
	StoryDate time.Time `gorm:"type:date;uniqueIndex:uq_user_story_date;not null" json:"story_date"`

	// GeneratedAt 生成时间
	GeneratedAt time.Time `gorm:"not null" json:"generated_at"`

	// Words 本次生成使用的词汇数组，JSON 存储
	Words []string `gorm:"serializer:json;not null" json:"words"`

	// StoryText AI 生成的英文短文
	StoryText string `gorm:"type:text;not null" json:"story_text"`

	// StoryTokens 生成消耗的 token 数，可选
	StoryTokens *int `json:"story_tokens,omitempty"`

	// ModelName 生成使用的模型/智能体名称，可选
	ModelName *string `gorm:"size:128" json:"model_name,omitempty"`

	// ImageURL 配图 URL，取第一张结构化解析到的插图
	ImageURL *string `gorm:"size:1024" json:"image_url,omitempty"`

	// ImageCaption 插图描述文案，从短文正文中按标记切分得到
	ImageCaption *string `gorm:"type:text" json:"image_caption,omitempty"`

	// Status 生成状态
	Status string `gorm:"size:32;default:success" json:"status"`

	// Extra 额外元数据（chat_id、conversation_id、usage、全部插图 URL 等）
	Extra map[string]interface{} `gorm:"serializer:json" json:"extra,omitempty"`

	// User 所属用户（多对一关系）
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (WordStory) TableName() string {
	return "word_stories"
}
