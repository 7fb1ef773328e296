// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"letter-learning-server/internal/coze"
	"letter-learning-server/internal/model"
	"letter-learning-server/internal/repository"
	"letter-learning-server/pkg/logger"
	"letter-learning-server/pkg/util"
)

// AI 对话相关错误
var (
	ErrChatNotFound = errors.New("会话不存在")
	ErrChatEnded    = errors.New("会话已结束，请开启新对话")
	ErrChatRoundCap = errors.New("每次对话最多持续12轮")
	ErrEmptyMessage = errors.New("请输入问题内容")
)

// GreetingText 会话开始时追加的固定开场白
const GreetingText = "你好呀！我是 lulu，这篇文章有什么想要问我的吗？"

// ChatStreamer 智能体对话流式调用接口
// 由 coze.Client 实现，测试时注入假实现
type ChatStreamer interface {
	ChatStream(ctx context.Context, req *coze.ChatStreamRequest) (*coze.StreamResult, error)
}

// AiChatService AI 对话服务
// 实现带轮数上限的多轮辅导对话协议
type AiChatService struct {
	chatRepo *repository.AiChatRepository // 会话与消息数据访问层
	streamer ChatStreamer                 // 智能体调用
	log      *logger.Logger
}

// NewAiChatService 创建 AiChatService 实例
func NewAiChatService(chatRepo *repository.AiChatRepository, streamer ChatStreamer, log *logger.Logger) *AiChatService {
	return &AiChatService{
		chatRepo: chatRepo,
		streamer: streamer,
		log:      log,
	}
}

// StartSession 开启新会话
// 会话开始时记录短文快照，并追加一条不计入远端历史的开场白
// 参数:
//   - ctx: 上下文
//   - user: 发起用户
//   - storyText: 围绕的短文内容，可为空
//   - wordStoryID: 关联的短文记录ID，可选
//
// 返回:
//   - *model.AiChatSession: 新会话
//   - []model.AiChatMessage: 会话消息（此时只有开场白）
//   - error: 数据库错误
func (s *AiChatService) StartSession(ctx context.Context, user *model.User, storyText string, wordStoryID *int64) (*model.AiChatSession, []model.AiChatMessage, error) {
	snapshot := strings.TrimSpace(storyText)

	session := &model.AiChatSession{
		UserID:      user.ID,
		WordStoryID: wordStoryID,
		Status:      model.ChatStatusActive,
	}
	if snapshot != "" {
		session.Extra = map[string]interface{}{"story_text": snapshot}
	}
	if err := s.chatRepo.CreateSession(ctx, session); err != nil {
		return nil, nil, err
	}

	greeting := &model.AiChatMessage{
		ChatID:  session.ID,
		Sender:  model.ChatSenderAI,
		Content: GreetingText,
		Payload: map[string]interface{}{
			// 开场白只存在于本地记录，不回放给远端会话
			"skip_coze_history": true,
			"type":              "greeting",
		},
	}
	if err := s.chatRepo.AppendMessage(ctx, greeting); err != nil {
		return nil, nil, err
	}

	messages, err := s.chatRepo.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, messages, nil
}

// GetDetail 获取会话及全部消息
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID，校验归属
//   - chatID: 会话ID
//
// 返回:
//   - *model.AiChatSession: 会话
//   - []model.AiChatMessage: 按序号排列的消息
//   - error: 会话不存在或归属不符返回 ErrChatNotFound
func (s *AiChatService) GetDetail(ctx context.Context, userID, chatID int64) (*model.AiChatSession, []model.AiChatMessage, error) {
	session, err := s.chatRepo.GetSessionByIDAndUser(ctx, chatID, userID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrChatNotFound
	}
	messages, err := s.chatRepo.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, messages, nil
}

// SendMessage 发送一条用户消息并等待 AI 回复
// 所有业务校验都在发起网络请求之前完成；
// 成功后用户消息、AI 回复、轮数增加在一个事务里原子落库，
// 失败时不会留下任何半截状态
// 参数:
//   - ctx: 上下文
//   - user: 发起用户
//   - chatID: 会话ID
//   - content: 用户输入的问题
//
// 返回:
//   - *model.AiChatSession: 更新后的会话
//   - []model.AiChatMessage: 本轮新增的两条消息（user、ai）
//   - error: 业务错误或调用失败
func (s *AiChatService) SendMessage(ctx context.Context, user *model.User, chatID int64, content string) (*model.AiChatSession, []model.AiChatMessage, error) {
	session, err := s.chatRepo.GetSessionByIDAndUser(ctx, chatID, user.ID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrChatNotFound
	}
	if session.Status != model.ChatStatusActive {
		return nil, nil, ErrChatEnded
	}
	// 状态仍是 active 但轮数已满的双重校验
	if session.TotalRounds >= model.MaxChatRounds {
		return nil, nil, ErrChatRoundCap
	}

	messageText := strings.TrimSpace(content)
	if messageText == "" {
		return nil, nil, ErrEmptyMessage
	}

	// 首条用户消息把短文快照拼进实际发送内容
	// 存储的用户消息保持原文，上下文注入对本地记录透明
	history, err := s.chatRepo.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	isFirstUser := true
	for _, msg := range history {
		if msg.Sender == model.ChatSenderUser {
			isFirstUser = false
			break
		}
	}
	snapshot := storySnapshot(session)
	cozeText := messageText
	if isFirstUser && snapshot != "" {
		cozeText = "短文内容：" + snapshot + "\n用户问题：" + messageText
	}

	conversationID := ""
	if session.CozeConversationID != nil {
		conversationID = *session.CozeConversationID
	}

	result, err := s.streamer.ChatStream(ctx, &coze.ChatStreamRequest{
		UserID:         user.ID,
		Content:        cozeText,
		ConversationID: conversationID,
	})
	if err != nil {
		s.log.Error("ai chat stream failed", "user_id", user.ID, "chat_id", chatID, "error", err)
		return nil, nil, err
	}

	userMsg := &model.AiChatMessage{
		ChatID:  session.ID,
		Sender:  model.ChatSenderUser,
		Content: messageText,
		Payload: map[string]interface{}{
			"coze_content":      cozeText,
			"is_story_prefixed": isFirstUser && snapshot != "",
		},
	}
	aiMsg := &model.AiChatMessage{
		ChatID:  session.ID,
		Sender:  model.ChatSenderAI,
		Content: result.Text,
		Payload: map[string]interface{}{
			"coze_response": map[string]interface{}{
				"chat_id": result.ChatID,
				"usage":   result.Usage,
			},
		},
	}

	newRounds := session.TotalRounds + 1
	fields := map[string]interface{}{
		"total_rounds": newRounds,
	}
	if result.ConversationID != "" {
		fields["coze_conversation_id"] = result.ConversationID
	}
	// 达到轮数上限时单向流转到 completed
	if newRounds >= model.MaxChatRounds {
		fields["status"] = model.ChatStatusCompleted
		fields["ended_at"] = time.Now()
	}

	if err := s.chatRepo.AppendExchange(ctx, userMsg, aiMsg, fields); err != nil {
		return nil, nil, err
	}

	s.log.Info("ai chat exchange saved",
		"chat_id", session.ID,
		"round", newRounds,
		"question", util.TruncateString(messageText, 32),
	)

	updated, err := s.chatRepo.GetSessionByIDAndUser(ctx, chatID, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return updated, []model.AiChatMessage{*userMsg, *aiMsg}, nil
}

// storySnapshot 取会话开始时存下的短文快照
func storySnapshot(session *model.AiChatSession) string {
	if session.Extra == nil {
		return ""
	}
	if text, ok := session.Extra["story_text"].(string); ok {
		return strings.TrimSpace(text)
	}
	return ""
}
