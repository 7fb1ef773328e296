package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"letter-learning-server/internal/model"
)

// newTestDB 创建独立的内存数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.WordBook{},
		&model.WordBookWord{},
		&model.UserWordBook{},
		&model.UserWordBookWord{},
		&model.WordStory{},
		&model.AiChatSession{},
		&model.AiChatMessage{},
	))
	return db
}

func newChatSession(t *testing.T, repo *AiChatRepository, userID int64) *model.AiChatSession {
	t.Helper()
	session := &model.AiChatSession{
		UserID: userID,
		Status: model.ChatStatusActive,
	}
	require.NoError(t, repo.CreateSession(context.Background(), session))
	return session
}

func TestAppendMessageAssignsSequentialNumbers(t *testing.T) {
	repo := NewAiChatRepository(newTestDB(t))
	ctx := context.Background()
	session := newChatSession(t, repo, 1)

	for i := 0; i < 5; i++ {
		msg := &model.AiChatMessage{
			ChatID:  session.ID,
			Sender:  model.ChatSenderUser,
			Content: "question",
		}
		require.NoError(t, repo.AppendMessage(ctx, msg))
		require.Equal(t, i, msg.Sequence)
	}

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 5)
	for i, msg := range messages {
		require.Equal(t, i, msg.Sequence)
	}
}

func TestSequenceIsPerSession(t *testing.T) {
	repo := NewAiChatRepository(newTestDB(t))
	ctx := context.Background()
	first := newChatSession(t, repo, 1)
	second := newChatSession(t, repo, 1)

	msgA := &model.AiChatMessage{ChatID: first.ID, Sender: model.ChatSenderAI, Content: "a"}
	require.NoError(t, repo.AppendMessage(ctx, msgA))
	msgB := &model.AiChatMessage{ChatID: second.ID, Sender: model.ChatSenderAI, Content: "b"}
	require.NoError(t, repo.AppendMessage(ctx, msgB))

	// 两个会话各自从 0 开始编号
	require.Equal(t, 0, msgA.Sequence)
	require.Equal(t, 0, msgB.Sequence)
}

func TestAppendExchangeWritesBothMessagesAndFields(t *testing.T) {
	repo := NewAiChatRepository(newTestDB(t))
	ctx := context.Background()
	session := newChatSession(t, repo, 1)

	greeting := &model.AiChatMessage{ChatID: session.ID, Sender: model.ChatSenderAI, Content: "hi"}
	require.NoError(t, repo.AppendMessage(ctx, greeting))

	userMsg := &model.AiChatMessage{ChatID: session.ID, Sender: model.ChatSenderUser, Content: "q"}
	aiMsg := &model.AiChatMessage{ChatID: session.ID, Sender: model.ChatSenderAI, Content: "a"}
	convID := "conv-123"
	err := repo.AppendExchange(ctx, userMsg, aiMsg, map[string]interface{}{
		"total_rounds":         1,
		"coze_conversation_id": convID,
	})
	require.NoError(t, err)

	// 用户消息紧跟开场白，AI 回复紧跟用户消息
	require.Equal(t, 1, userMsg.Sequence)
	require.Equal(t, 2, aiMsg.Sequence)

	updated, err := repo.GetSessionByIDAndUser(ctx, session.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.Equal(t, 1, updated.TotalRounds)
	require.NotNil(t, updated.CozeConversationID)
	require.Equal(t, convID, *updated.CozeConversationID)

	count, err := repo.CountMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestAppendExchangeEndsSession(t *testing.T) {
	repo := NewAiChatRepository(newTestDB(t))
	ctx := context.Background()
	session := newChatSession(t, repo, 1)

	userMsg := &model.AiChatMessage{ChatID: session.ID, Sender: model.ChatSenderUser, Content: "q"}
	aiMsg := &model.AiChatMessage{ChatID: session.ID, Sender: model.ChatSenderAI, Content: "a"}
	endedAt := time.Now()
	err := repo.AppendExchange(ctx, userMsg, aiMsg, map[string]interface{}{
		"total_rounds": model.MaxChatRounds,
		"status":       model.ChatStatusCompleted,
		"ended_at":     endedAt,
	})
	require.NoError(t, err)

	updated, err := repo.GetSessionByIDAndUser(ctx, session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, model.ChatStatusCompleted, updated.Status)
	require.NotNil(t, updated.EndedAt)
}

func TestDuplicateSequenceCannotBeCommitted(t *testing.T) {
	db := newTestDB(t)
	repo := NewAiChatRepository(db)
	ctx := context.Background()
	session := newChatSession(t, repo, 1)

	// 模拟两个并发写入者在对方提交前读到相同的 MAX
	seqA, err := nextSequence(db, session.ID)
	require.NoError(t, err)
	seqB, err := nextSequence(db, session.ID)
	require.NoError(t, err)
	require.Equal(t, seqA, seqB)

	msgA := &model.AiChatMessage{ChatID: session.ID, Sender: model.ChatSenderUser, Content: "a", Sequence: seqA}
	require.NoError(t, db.Create(msgA).Error)

	// 唯一索引拒绝重复序号，输掉竞争的一方干净地失败
	msgB := &model.AiChatMessage{ChatID: session.ID, Sender: model.ChatSenderUser, Content: "b", Sequence: seqB}
	require.Error(t, db.Create(msgB).Error)

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestNextSequenceRequiresExistingSession(t *testing.T) {
	db := newTestDB(t)
	// 会话行是序号分配的锁对象，不存在时直接报错
	_, err := nextSequence(db, 9999)
	require.Error(t, err)
}

func TestGetSessionEnforcesOwnership(t *testing.T) {
	repo := NewAiChatRepository(newTestDB(t))
	ctx := context.Background()
	session := newChatSession(t, repo, 1)

	// 其他用户查不到会话，未找到时返回 nil 而非错误
	other, err := repo.GetSessionByIDAndUser(ctx, session.ID, 2)
	require.NoError(t, err)
	require.Nil(t, other)

	missing, err := repo.GetSessionByIDAndUser(ctx, 9999, 1)
	require.NoError(t, err)
	require.Nil(t, missing)
}
