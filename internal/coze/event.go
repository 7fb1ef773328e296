package coze

import (
	"bytes"
	"encoding/json"
	"strings"
)

// 事件分类，统一小写比较
const (
	eventChatCreated      = "conversation.chat.created"
	eventChatFailed       = "conversation.chat.failed"
	eventChatCompleted    = "conversation.chat.completed"
	eventMessageDelta     = "conversation.message.delta"
	eventMessageCompleted = "conversation.message.completed"
	eventError            = "error"

	chatEventPrefix = "conversation.chat"
)

// eventPayload 事件帧负载的结构化表示
// 远端的字段在不同事件里含义不同，这里汇总所有会用到的字段
// JSON 解析失败的帧会被静默跳过，不视为错误
type eventPayload struct {
	// ID 本轮对话的远端 chat id（chat.* 事件携带）
	ID string `json:"id"`

	// ChatID 部分事件用这个字段名携带 chat id
	ChatID string `json:"chat_id"`

	// ConversationID 远端会话标识
	ConversationID string `json:"conversation_id"`

	// Role 消息角色，answer 消息为 assistant
	Role string `json:"role"`

	// Type 消息类型，只有 answer 计入回复正文
	Type string `json:"type"`

	// Content 消息内容，形状不固定:
	// 纯字符串 / 类型化块列表 / 嵌套容器，由 normalizeContent 归一化
	Content json.RawMessage `json:"content"`

	// Delta 增量内容，部分 delta 事件用它代替 content
	Delta json.RawMessage `json:"delta"`

	// Text 顶层文本字段，content 缺失时的兜底
	Text string `json:"text"`

	// Images 顶层图片列表
	Images []imageRef `json:"images"`

	// Usage token 用量统计（chat.completed 携带）
	Usage map[string]interface{} `json:"usage"`

	// ModelName / Model 生成模型名（chat.completed 携带）
	ModelName string `json:"model_name"`
	Model     string `json:"model"`

	// LastError 失败详情（chat.failed 携带）
	LastError *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"last_error"`

	// Msg / Message 通用 error 事件的错误文案
	Msg     string `json:"msg"`
	Message string `json:"message"`

	// Data 部分事件把真正的负载包了一层
	Data *eventPayload `json:"data"`
}

// imageRef 内容块里的图片引用
type imageRef struct {
	URL string `json:"url"`
}

// contentBlock 类型化内容块
// type 为 text/raw_text/paragraph 时是文本块
// type 为 image/images 时是图片块
// 没有 type 但带 content 列表时是嵌套容器
type contentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Content json.RawMessage `json:"content"`
	Image   *imageRef       `json:"image"`
	Images  []imageRef      `json:"images"`
}

// decodeEventPayload 解析帧负载
// 返回:
//   - *eventPayload: 解析结果，数据层被拆包到顶层返回
//   - bool: 是否解析成功，失败的帧应被跳过
func decodeEventPayload(data string) (*eventPayload, bool) {
	var payload eventPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, false
	}
	node := &payload
	if payload.Data != nil {
		// 外层可能残留 conversation_id 等字段，内层优先
		node = payload.Data
		if node.ConversationID == "" {
			node.ConversationID = payload.ConversationID
		}
		if node.ID == "" {
			node.ID = payload.ID
		}
	}
	return node, true
}

// normalizeCategory 事件名统一小写修剪，便于分发
func normalizeCategory(event string) string {
	return strings.ToLower(strings.TrimSpace(event))
}

// normalizedText 归一化消息文本
// content 缺失时尝试 delta，再兜底到顶层 text 字段
func (p *eventPayload) normalizedText() string {
	if text := normalizeContent(p.Content); text != "" {
		return text
	}
	if text := normalizeContent(p.Delta); text != "" {
		return text
	}
	return strings.TrimSpace(p.Text)
}

// isAnswer 判断消息是否计入回复正文
// role 或 type 缺失时放行，远端不同接口携带的字段不一致
func (p *eventPayload) isAnswer() bool {
	if p.Role != "" && !strings.EqualFold(p.Role, "assistant") {
		return false
	}
	if p.Type != "" && !strings.EqualFold(p.Type, "answer") {
		return false
	}
	return true
}

// errorMessage 提取 error 事件的错误文案
func (p *eventPayload) errorMessage() string {
	if p.Msg != "" {
		return p.Msg
	}
	return p.Message
}

// normalizeContent 把形状不固定的 content 归一化成纯文本
// 支持的形状:
//   - 纯字符串: 原样返回（修剪）
//   - 块列表: 拼接所有文本类块，嵌套容器递归展开一层
//   - 容器对象: 递归其 content，否则取 text/value 字段
//   - 其他: 返回空串，宽容处理而不是报错
func normalizeContent(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// 纯字符串
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
		return ""
	}

	// 块列表
	if raw[0] == '[' {
		var blocks []contentBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return ""
		}
		var sb strings.Builder
		for _, block := range blocks {
			switch strings.ToLower(block.Type) {
			case "text", "raw_text", "paragraph":
				if block.Text != "" {
					sb.WriteString(block.Text)
				} else if text := normalizeContent(block.Content); text != "" {
					sb.WriteString(text)
				}
			default:
				// 没有类型但带嵌套内容的容器块
				if block.Type == "" && len(block.Content) > 0 {
					sb.WriteString(normalizeContent(block.Content))
				}
			}
		}
		return strings.TrimSpace(sb.String())
	}

	// 容器对象
	if raw[0] == '{' {
		var container struct {
			Content json.RawMessage `json:"content"`
			Text    string          `json:"text"`
			Value   string          `json:"value"`
		}
		if err := json.Unmarshal(raw, &container); err != nil {
			return ""
		}
		if len(bytes.TrimSpace(container.Content)) > 0 {
			if text := normalizeContent(container.Content); text != "" {
				return text
			}
		}
		if container.Text != "" {
			return strings.TrimSpace(container.Text)
		}
		return strings.TrimSpace(container.Value)
	}

	return ""
}

// extractImageURLs 从负载中提取图片 URL
// 按出现顺序返回，去重交给聚合器
// 识别两种块形状: 单图 {type:image, image:{url}} 和批量 {type:images, images:[{url}]}
func (p *eventPayload) extractImageURLs() []string {
	var urls []string

	collect := func(blocks []contentBlock) {
		for _, block := range blocks {
			switch strings.ToLower(block.Type) {
			case "image":
				if block.Image != nil && block.Image.URL != "" {
					urls = append(urls, block.Image.URL)
				}
			case "images":
				for _, img := range block.Images {
					if img.URL != "" {
						urls = append(urls, img.URL)
					}
				}
			}
		}
	}

	raw := bytes.TrimSpace(p.Content)
	if len(raw) > 0 {
		if raw[0] == '[' {
			var blocks []contentBlock
			if err := json.Unmarshal(raw, &blocks); err == nil {
				collect(blocks)
			}
		} else if raw[0] == '{' {
			// 容器对象，图片块在嵌套的 content 列表里
			var container struct {
				Content []contentBlock `json:"content"`
			}
			if err := json.Unmarshal(raw, &container); err == nil {
				collect(container.Content)
			}
		}
	}

	// 顶层 images 列表
	for _, img := range p.Images {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}

	return urls
}
