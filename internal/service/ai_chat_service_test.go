package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"letter-learning-server/internal/coze"
	"letter-learning-server/internal/model"
	"letter-learning-server/internal/repository"
	"letter-learning-server/pkg/logger"
)

// fakeChatStreamer 记录调用并返回预设结果的智能体假实现
type fakeChatStreamer struct {
	calls   int
	lastReq *coze.ChatStreamRequest
	result  *coze.StreamResult
	err     error
}

func (f *fakeChatStreamer) ChatStream(ctx context.Context, req *coze.ChatStreamRequest) (*coze.StreamResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type chatTestEnv struct {
	repo     *repository.AiChatRepository
	svc      *AiChatService
	streamer *fakeChatStreamer
}

func newChatTestEnv(t *testing.T) *chatTestEnv {
	t.Helper()
	db := newStoryTestDB(t)
	require.NoError(t, db.AutoMigrate(&model.AiChatSession{}, &model.AiChatMessage{}))
	streamer := &fakeChatStreamer{
		result: &coze.StreamResult{
			Text:           "这句话的意思是……",
			ConversationID: "conv-1",
			ChatID:         "chat-1",
			Usage:          map[string]interface{}{"token_count": float64(88)},
		},
	}
	repo := repository.NewAiChatRepository(db)
	return &chatTestEnv{
		repo:     repo,
		svc:      NewAiChatService(repo, streamer, logger.NewNop()),
		streamer: streamer,
	}
}

func TestStartSessionAppendsGreeting(t *testing.T) {
	env := newChatTestEnv(t)

	session, messages, err := env.svc.StartSession(context.Background(), testUser(), "Tom reads a book.", nil)
	require.NoError(t, err)
	require.Equal(t, model.ChatStatusActive, session.Status)
	require.Zero(t, session.TotalRounds)

	require.Len(t, messages, 1)
	require.Equal(t, model.ChatSenderAI, messages[0].Sender)
	require.Equal(t, GreetingText, messages[0].Content)
	require.Zero(t, messages[0].Sequence)
	// 开场白不发往远端
	require.Zero(t, env.streamer.calls)
}

func TestSendMessagePrefixesStoryOnFirstRoundOnly(t *testing.T) {
	env := newChatTestEnv(t)
	user := testUser()
	session, _, err := env.svc.StartSession(context.Background(), user, "  Tom reads a book.  ", nil)
	require.NoError(t, err)

	_, messages, err := env.svc.SendMessage(context.Background(), user, session.ID, "这本书讲了什么？")
	require.NoError(t, err)

	// 发送给远端的内容带短文前缀，本地存储的用户消息保持原文
	require.Equal(t, "短文内容：Tom reads a book.\n用户问题：这本书讲了什么？", env.streamer.lastReq.Content)
	require.Equal(t, "这本书讲了什么？", messages[0].Content)
	require.Equal(t, model.ChatSenderUser, messages[0].Sender)
	require.Equal(t, "这句话的意思是……", messages[1].Content)
	require.Equal(t, model.ChatSenderAI, messages[1].Sender)

	_, _, err = env.svc.SendMessage(context.Background(), user, session.ID, "再讲详细点")
	require.NoError(t, err)
	require.Equal(t, "再讲详细点", env.streamer.lastReq.Content)
}

func TestSendMessageThreadsConversationID(t *testing.T) {
	env := newChatTestEnv(t)
	user := testUser()
	session, _, err := env.svc.StartSession(context.Background(), user, "", nil)
	require.NoError(t, err)

	// 首轮没有远端会话标识
	updated, _, err := env.svc.SendMessage(context.Background(), user, session.ID, "第一问")
	require.NoError(t, err)
	require.Empty(t, env.streamer.lastReq.ConversationID)
	require.NotNil(t, updated.CozeConversationID)
	require.Equal(t, "conv-1", *updated.CozeConversationID)

	// 后续轮次带上首轮返回的标识实现续聊
	_, _, err = env.svc.SendMessage(context.Background(), user, session.ID, "第二问")
	require.NoError(t, err)
	require.Equal(t, "conv-1", env.streamer.lastReq.ConversationID)
}

func TestSendMessageSequencesAndRounds(t *testing.T) {
	env := newChatTestEnv(t)
	user := testUser()
	session, _, err := env.svc.StartSession(context.Background(), user, "story", nil)
	require.NoError(t, err)

	updated, _, err := env.svc.SendMessage(context.Background(), user, session.ID, "问题")
	require.NoError(t, err)
	require.Equal(t, 1, updated.TotalRounds)

	// 开场白 0，用户 1，AI 2
	messages, err := env.repo.ListMessages(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, msg := range messages {
		require.Equal(t, i, msg.Sequence)
	}
}

func TestSendMessageRoundCapEndsSession(t *testing.T) {
	env := newChatTestEnv(t)
	user := testUser()
	session, _, err := env.svc.StartSession(context.Background(), user, "", nil)
	require.NoError(t, err)

	// 推进到倒数第二轮
	require.NoError(t, env.repo.UpdateSessionFields(context.Background(), session.ID, map[string]interface{}{
		"total_rounds": model.MaxChatRounds - 1,
	}))

	updated, _, err := env.svc.SendMessage(context.Background(), user, session.ID, "最后一问")
	require.NoError(t, err)
	require.Equal(t, model.MaxChatRounds, updated.TotalRounds)
	require.Equal(t, model.ChatStatusCompleted, updated.Status)
	require.NotNil(t, updated.EndedAt)

	// 已结束的会话拒绝新消息，且不再发起网络请求
	callsBefore := env.streamer.calls
	_, _, err = env.svc.SendMessage(context.Background(), user, session.ID, "还想问")
	require.ErrorIs(t, err, ErrChatEnded)
	require.Equal(t, callsBefore, env.streamer.calls)
}

func TestSendMessageRejectsAtRoundCapEvenIfActive(t *testing.T) {
	env := newChatTestEnv(t)
	user := testUser()
	session, _, err := env.svc.StartSession(context.Background(), user, "", nil)
	require.NoError(t, err)

	// 状态仍是 active 但轮数已满的异常数据
	require.NoError(t, env.repo.UpdateSessionFields(context.Background(), session.ID, map[string]interface{}{
		"total_rounds": model.MaxChatRounds,
	}))

	_, _, err = env.svc.SendMessage(context.Background(), user, session.ID, "问题")
	require.ErrorIs(t, err, ErrChatRoundCap)
	require.Zero(t, env.streamer.calls)
}

func TestSendMessageValidatesBeforeNetwork(t *testing.T) {
	env := newChatTestEnv(t)
	user := testUser()
	session, _, err := env.svc.StartSession(context.Background(), user, "", nil)
	require.NoError(t, err)

	_, _, err = env.svc.SendMessage(context.Background(), user, session.ID, "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, _, err = env.svc.SendMessage(context.Background(), user, 9999, "问题")
	require.ErrorIs(t, err, ErrChatNotFound)

	// 越权访问他人会话等同不存在
	other := &model.User{ID: 2, Username: "bob"}
	_, _, err = env.svc.SendMessage(context.Background(), other, session.ID, "问题")
	require.ErrorIs(t, err, ErrChatNotFound)

	require.Zero(t, env.streamer.calls)
}

func TestSendMessageStreamFailureWritesNothing(t *testing.T) {
	env := newChatTestEnv(t)
	user := testUser()
	session, _, err := env.svc.StartSession(context.Background(), user, "", nil)
	require.NoError(t, err)

	env.streamer.err = &coze.Error{Kind: coze.ErrKindRemote, Message: "AI 对话失败：upstream"}
	_, _, err = env.svc.SendMessage(context.Background(), user, session.ID, "问题")
	require.Error(t, err)
	require.Equal(t, coze.ErrKindRemote, coze.KindOf(err))

	// 失败的轮次不落库
	count, err := env.repo.CountMessages(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	kept, err := env.repo.GetSessionByIDAndUser(context.Background(), session.ID, user.ID)
	require.NoError(t, err)
	require.Zero(t, kept.TotalRounds)
	require.Equal(t, model.ChatStatusActive, kept.Status)
}

func TestGetDetailReturnsOrderedMessages(t *testing.T) {
	env := newChatTestEnv(t)
	user := testUser()
	session, _, err := env.svc.StartSession(context.Background(), user, "story", nil)
	require.NoError(t, err)
	_, _, err = env.svc.SendMessage(context.Background(), user, session.ID, "问题")
	require.NoError(t, err)

	detail, messages, err := env.svc.GetDetail(context.Background(), user.ID, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, detail.ID)
	require.Len(t, messages, 3)
	require.WithinDuration(t, time.Now(), messages[0].CreatedAt, time.Minute)

	_, _, err = env.svc.GetDetail(context.Background(), 2, session.ID)
	require.ErrorIs(t, err, ErrChatNotFound)
}
