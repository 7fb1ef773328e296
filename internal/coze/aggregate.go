package coze

import (
	"strings"
)

// StreamResult 一次流式调用聚合出的最终结果
type StreamResult struct {
	// Text 最终回复正文，保证非空
	Text string

	// ImageURLs 流中出现的所有图片 URL
	// 已去重，保留首次出现的顺序
	ImageURLs []string

	// ConversationID 远端会话标识，下一轮续聊时携带
	ConversationID string

	// ChatID 远端本轮对话标识
	ChatID string

	// Usage token 用量统计
	Usage map[string]interface{}

	// ModelName 生成模型名
	ModelName string
}

// Options 聚合器行为配置
type Options struct {
	// FallbackToBuffer completed 事件文本为空时是否回退到 delta 累积缓冲
	// 开启后不会丢失已经收到的增量内容
	FallbackToBuffer bool

	// EmptyResultMessage 空结果错误的文案，为空时使用默认文案
	EmptyResultMessage string
}

// Aggregator 把按到达顺序输入的事件帧折叠成一个 StreamResult
// 聚合规则:
//   - delta 事件把文本片段追加到缓冲，缓冲是临时答案
//   - 非空的 completed answer 是权威结果，整体替换缓冲贡献
//   - created 事件记录 conversation/chat id，后续 completed 可覆盖 conversation id
//   - chat.completed 捕获 usage 和模型名，多次出现时后者覆盖前者
//   - 图片 URL 跨帧收集，按首次出现顺序去重
//   - 远端错误（error / chat.failed）立即中止，返回远端文案
//   - [DONE] 哨兵帧是空操作
//
// 帧必须按到达顺序输入，乱序会改变结果
type Aggregator struct {
	opts Options

	buffer    strings.Builder // delta 累积缓冲
	finalText string          // completed 事件给出的权威文本

	conversationID string
	chatID         string
	usage          map[string]interface{}
	modelName      string

	imageURLs []string
	seenURLs  map[string]struct{}
}

// NewAggregator 创建聚合器
// 参数:
//   - opts: 行为配置
//
// 返回:
//   - *Aggregator: 聚合器，每次流式调用使用一个新实例
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{
		opts:     opts,
		seenURLs: make(map[string]struct{}),
	}
}

// Feed 输入一个事件帧
// 参数:
//   - frame: 解码出的事件帧
//
// 返回:
//   - error: 远端报告失败时返回 remote 错误，调用方应立即停止消费
func (a *Aggregator) Feed(frame Frame) error {
	// 结束哨兵不携带内容
	if strings.TrimSpace(frame.Data) == doneSentinel {
		return nil
	}

	payload, ok := decodeEventPayload(frame.Data)
	if !ok {
		// 生成式接口偶尔会吐出残缺的 JSON 片段，跳过而不是中断
		return nil
	}

	category := normalizeCategory(frame.Event)

	// 所有事件都可能携带图片块
	a.collectImageURLs(payload.extractImageURLs())

	switch {
	case strings.HasPrefix(category, chatEventPrefix):
		return a.feedChatEvent(category, payload)

	case category == eventMessageDelta:
		if !payload.isAnswer() {
			return nil
		}
		if text := payload.normalizedText(); text != "" {
			a.buffer.WriteString(text)
		}

	case category == eventMessageCompleted:
		if !payload.isAnswer() {
			return nil
		}
		// 非空的 completed 文本是权威结果
		if text := payload.normalizedText(); text != "" {
			a.finalText = text
		}

	case category == eventError:
		msg := payload.errorMessage()
		if msg == "" {
			msg = frame.Data
		}
		return newRemoteError("Coze 流式错误: " + msg)
	}

	return nil
}

// feedChatEvent 处理 conversation.chat.* 事件
func (a *Aggregator) feedChatEvent(category string, payload *eventPayload) error {
	if payload.ConversationID != "" {
		a.conversationID = payload.ConversationID
	}
	if payload.ID != "" {
		a.chatID = payload.ID
	} else if payload.ChatID != "" {
		a.chatID = payload.ChatID
	}

	switch category {
	case eventChatFailed:
		msg := "AI 对话失败"
		if payload.LastError != nil && payload.LastError.Msg != "" {
			msg = payload.LastError.Msg
		}
		return newRemoteError("AI 对话失败：" + msg)

	case eventChatCompleted:
		// 多个 completed 后者覆盖前者
		if payload.Usage != nil {
			a.usage = payload.Usage
		}
		if payload.ModelName != "" {
			a.modelName = payload.ModelName
		} else if payload.Model != "" {
			a.modelName = payload.Model
		}
	}

	return nil
}

// collectImageURLs 收集图片 URL，按首次出现顺序去重
func (a *Aggregator) collectImageURLs(urls []string) {
	for _, url := range urls {
		if _, seen := a.seenURLs[url]; seen {
			continue
		}
		a.seenURLs[url] = struct{}{}
		a.imageURLs = append(a.imageURLs, url)
	}
}

// Result 流耗尽后取出最终结果
// 返回:
//   - *StreamResult: 聚合结果
//   - error: 没有拿到任何有效文本时返回 empty_result 错误
func (a *Aggregator) Result() (*StreamResult, error) {
	text := strings.TrimSpace(a.finalText)
	if text == "" && a.opts.FallbackToBuffer {
		text = strings.TrimSpace(a.buffer.String())
	}
	if text == "" {
		msg := a.opts.EmptyResultMessage
		if msg == "" {
			msg = "Coze 未返回有效回复"
		}
		return nil, newEmptyResultError(msg)
	}

	return &StreamResult{
		Text:           text,
		ImageURLs:      a.imageURLs,
		ConversationID: a.conversationID,
		ChatID:         a.chatID,
		Usage:          a.usage,
		ModelName:      a.modelName,
	}, nil
}
