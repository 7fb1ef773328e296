// Package coze 实现对 Coze 生成式 AI 接口的流式调用
// 包含 SSE 帧解码、事件负载解释、流聚合和网关适配四个部分
// 两个业务入口: 智能体对话 ChatStream 和工作流短文生成 WorkflowChatStream
package coze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"letter-learning-server/internal/config"
)

// 接口路径
const (
	chatPath     = "/v3/chat"
	workflowPath = "/v1/workflows/chat"
)

// Client Coze 流式接口的网关适配器
// 负责构造请求、鉴权和消费流式响应体
type Client struct {
	cfg        config.CozeConfig
	httpClient *http.Client
}

// NewClient 创建 Client 实例
// 参数:
//   - cfg: Coze 配置（基础地址、令牌、超时等）
//
// 返回:
//   - *Client: 客户端实例
func NewClient(cfg config.CozeConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			// 超时覆盖整个请求: 建立连接 + 消费完整个流
			Timeout: timeout,
		},
	}
}

// ChatStreamRequest 智能体对话请求
type ChatStreamRequest struct {
	// UserID 发起用户ID，用于构造远端的 user_id 标识
	UserID int64

	// Content 实际发给远端的消息内容
	// 首轮消息可能带短文前缀，由调用方拼好
	Content string

	// ConversationID 续聊时携带的远端会话标识，首轮为空
	ConversationID string
}

// WorkflowStreamRequest 工作流短文生成请求
type WorkflowStreamRequest struct {
	// Words 本次生成使用的词汇列表
	Words []string

	// ConversationName 会话展示名，如 "{username}-{date}"
	ConversationName string

	// UserClass 课程标签，如 "考研冲刺班"
	UserClass string

	// EnglishLevel 词库水平标签，如 "通用词库"
	EnglishLevel string

	// TargetWordNum 目标词数
	TargetWordNum int
}

// chatMessage 请求体里的一条消息
type chatMessage struct {
	Role        string `json:"role"`
	Type        string `json:"type,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// ChatStream 调用智能体对话接口并聚合流式回复
// 参数:
//   - ctx: 上下文，取消后中止流消费
//   - req: 对话请求
//
// 返回:
//   - *StreamResult: 聚合结果（回复文本、会话标识、用量等）
//   - error: 分类错误，配置缺失在发起网络请求前就返回
func (c *Client) ChatStream(ctx context.Context, req *ChatStreamRequest) (*StreamResult, error) {
	if c.cfg.APIToken == "" {
		return nil, newConfigError("未配置 Coze 访问令牌")
	}
	if c.cfg.ChatBotID == "" {
		return nil, newConfigError("未配置 AI 对话智能体")
	}

	payload := map[string]interface{}{
		"bot_id":            c.cfg.ChatBotID,
		"stream":            true,
		"user_id":           fmt.Sprintf("%s-chat-%d", c.cfg.UserPrefix, req.UserID),
		"auto_save_history": true,
		"additional_messages": []chatMessage{
			{
				Role:        "user",
				Content:     req.Content,
				ContentType: "text",
			},
		},
	}
	if req.ConversationID != "" {
		payload["conversation_id"] = req.ConversationID
	}
	if c.cfg.ChatSpaceID != "" {
		payload["space_id"] = c.cfg.ChatSpaceID
	}

	return c.stream(ctx, chatPath, payload, Options{
		FallbackToBuffer:   true,
		EmptyResultMessage: "Coze 未返回有效回复",
	})
}

// WorkflowChatStream 调用工作流接口生成短文并聚合流式输出
// 参数:
//   - ctx: 上下文
//   - req: 工作流请求
//
// 返回:
//   - *StreamResult: 聚合结果（完整文本、图片 URL、用量等）
//   - error: 分类错误
func (c *Client) WorkflowChatStream(ctx context.Context, req *WorkflowStreamRequest) (*StreamResult, error) {
	if c.cfg.APIToken == "" {
		return nil, newConfigError("未配置 Coze 访问令牌")
	}
	if c.cfg.WorkflowID == "" {
		return nil, newConfigError("未配置 Coze 工作流 ID")
	}

	payload := map[string]interface{}{
		"workflow_id": c.cfg.WorkflowID,
		"stream":      true,
		"additional_messages": []chatMessage{
			{
				Role:        "user",
				Type:        "question",
				ContentType: "text",
				Content:     strings.Join(req.Words, ", "),
			},
		},
		"parameters": map[string]string{
			"CONVERSATION_NAME":   req.ConversationName,
			"USER_CLASS":          req.UserClass,
			"USER_ENGLISH_LEVEL":  req.EnglishLevel,
			"USER_TARGETWORD_NUM": fmt.Sprintf("%d", req.TargetWordNum),
		},
	}

	return c.stream(ctx, workflowPath, payload, Options{
		FallbackToBuffer:   true,
		EmptyResultMessage: "未能从 Coze 流式响应中获取短文",
	})
}

// stream 发起流式请求并把响应体折叠成一个结果
func (c *Client) stream(ctx context.Context, path string, payload interface{}, opts Options) (*StreamResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newTransportError("构造请求体失败", err)
	}

	url := strings.TrimRight(c.cfg.APIBase, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, newTransportError("构造请求失败", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newTransportError("AI 服务请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 错误响应体不是流，读出来放进错误文案
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, newRemoteError(fmt.Sprintf("AI 服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	agg := NewAggregator(opts)
	fr := NewFrameReader(resp.Body)
	for fr.Scan() {
		if err := agg.Feed(fr.Frame()); err != nil {
			// 远端报错，立即停止消费
			return nil, err
		}
	}
	if err := fr.Err(); err != nil {
		return nil, newTransportError("读取 AI 流式响应失败", err)
	}

	return agg.Result()
}
