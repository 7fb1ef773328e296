// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// UserWordBookStatus 学习计划状态常量
const (
	UserWordBookStatusActive    = "active"    // 进行中
	UserWordBookStatusCompleted = "completed" // 已完成
	UserWordBookStatusPaused    = "paused"    // 已暂停
)

// WordBook 系统维护的单词书
// 对应数据库表 word_books
type WordBook struct {
	// ID 单词书唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// Title 单词书名称，如 "考研核心词汇"
	Title string `gorm:"size:128;not null" json:"title"`

	// Description 描述，可选
	Description *string `gorm:"type:text" json:"description,omitempty"`

	// Level 水平标签（如 CET4、TOEFL），用于生成短文时描述词库难度
	Level *string `gorm:"size:32" json:"level,omitempty"`

	// TotalWords 单词总数
	TotalWords int `gorm:"default:0" json:"total_words"`

	// IsPublished 是否对用户可见
	IsPublished bool `gorm:"default:false" json:"is_published"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// UpdatedAt 更新时间
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Words 书内单词（一对多关系）
	Words []WordBookWord `gorm:"foreignKey:WordBookID" json:"words,omitempty"`
}

// TableName 指定表名
func (WordBook) TableName() string {
	return "word_books"
}

// WordBookWord 单词书内的单词条目
// 对应数据库表 word_book_words
type WordBookWord struct {
	// ID 条目唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// WordBookID 所在单词书ID，外键关联 word_books.id
	// 同一本书内单词唯一
	WordBookID int64 `gorm:"index;uniqueIndex:uq_book_word;not null" json:"word_book_id"`

	// Word 单词本身
	Word string `gorm:"size:128;uniqueIndex:uq_book_word;not null" json:"word"`

	// MeaningZh 中文释义，可选
	MeaningZh *string `gorm:"type:text" json:"meaning_zh,omitempty"`

	// OrderIndex 原书顺序
	OrderIndex int `gorm:"default:0" json:"order_index"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (WordBookWord) TableName() string {
	return "word_book_words"
}

// UserWordBook 用户选择的单词书，即学习计划
// 对应数据库表 user_word_books
// 短文生成依赖它推算"今天该学第几天的哪些单词"
type UserWordBook struct {
	// ID 计划唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 所属用户ID，外键关联 users.id
	// 同一用户同一本书只能有一个计划
	UserID int64 `gorm:"index;uniqueIndex:uq_user_book;not null" json:"user_id"`

	// WordBookID 单词书ID，外键关联 word_books.id
	WordBookID int64 `gorm:"index;uniqueIndex:uq_user_book;not null" json:"word_book_id"`

	// CourseCode 学习课程代号（如 basic/postgraduate/toefl/ielts），可选
	CourseCode *string `gorm:"size:64" json:"course_code,omitempty"`

	// DailyQuota 每日学习单词数
	DailyQuota int `gorm:"not null" json:"daily_quota"`

	// StartDate 计划开始日期（只取日期部分）
	StartDate time.Time `gorm:"type:date;not null" json:"start_date"`

	// Status 计划状态
	// active: 进行中
	// completed: 已完成
	// paused: 已暂停
	Status string `gorm:"size:32;default:active" json:"status"`

	// TotalDays 总学习天数，0 表示未设置
	TotalDays int `gorm:"default:0" json:"total_days"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// UpdatedAt 更新时间
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Book 关联的单词书（多对一关系）
	Book *WordBook `gorm:"foreignKey:WordBookID" json:"book,omitempty"`

	// Words 计划内的用户词表（一对多关系）
	Words []UserWordBookWord `gorm:"foreignKey:UserWordBookID" json:"words,omitempty"`
}

// TableName 指定表名
func (UserWordBook) TableName() string {
	return "user_word_books"
}

// UserWordBookWord 用户词表条目，按天编排并记录学习进度
// 对应数据库表 user_word_book_words
type UserWordBookWord struct {
	// ID 条目唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserWordBookID 所属学习计划ID，外键关联 user_word_books.id
	UserWordBookID int64 `gorm:"index;not null" json:"user_word_book_id"`

	// WordBookWordID 单词条目ID，外键关联 word_book_words.id
	WordBookWordID int64 `gorm:"index;not null" json:"word_book_word_id"`

	// DayIndex 编排到第几天学习，从 1 开始
	DayIndex int `gorm:"index;not null" json:"day_index"`

	// SequenceInDay 当天内的顺序
	SequenceInDay int `gorm:"default:0" json:"sequence_in_day"`

	// MasteryStatus 掌握状态
	// unlearned: 未学 / learning: 学习中 / mastered: 已掌握
	MasteryStatus string `gorm:"size:32;default:unlearned" json:"mastery_status"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Entry 关联的单词条目（多对一关系）
	Entry *WordBookWord `gorm:"foreignKey:WordBookWordID" json:"entry,omitempty"`
}

// TableName 指定表名
func (UserWordBookWord) TableName() string {
	return "user_word_book_words"
}
