package coze

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"letter-learning-server/internal/config"
)

// newTestClient 创建指向本地测试服务的客户端
func newTestClient(baseURL string) *Client {
	return NewClient(config.CozeConfig{
		APIBase:        baseURL,
		APIToken:       "test-token",
		ChatBotID:      "bot-1",
		ChatSpaceID:    "space-1",
		WorkflowID:     "wf-1",
		UserPrefix:     "letter-learning",
		RequestTimeout: 5 * time.Second,
	})
}

// sseHandler 返回固定 SSE 响应的处理器，顺便记录请求体
func sseHandler(t *testing.T, body string, capture *map[string]interface{}) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		if capture != nil {
			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, capture))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}
}

func TestClient_ChatStream(t *testing.T) {
	stream := "event: conversation.chat.created\n" +
		"data: {\"id\":\"chat-9\",\"conversation_id\":\"conv-9\"}\n" +
		"\n" +
		"event: conversation.message.delta\n" +
		"data: {\"role\":\"assistant\",\"type\":\"answer\",\"content\":\"Hel\"}\n" +
		"\n" +
		"event: conversation.message.delta\n" +
		"data: {\"role\":\"assistant\",\"type\":\"answer\",\"content\":\"lo\"}\n" +
		"\n" +
		"event: conversation.message.completed\n" +
		"data: {\"role\":\"assistant\",\"type\":\"answer\",\"content\":\"Hello there\"}\n" +
		"\n" +
		"event: conversation.chat.completed\n" +
		"data: {\"conversation_id\":\"conv-9\",\"usage\":{\"output_count\":7},\"model_name\":\"test-model\"}\n" +
		"\n" +
		"event: done\n" +
		"data: [DONE]\n" +
		"\n"

	var captured map[string]interface{}
	srv := httptest.NewServer(sseHandler(t, stream, &captured))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.ChatStream(context.Background(), &ChatStreamRequest{
		UserID:         42,
		Content:        "What does abandon mean?",
		ConversationID: "conv-9",
	})
	require.NoError(t, err)
	require.Equal(t, "Hello there", result.Text)
	require.Equal(t, "conv-9", result.ConversationID)
	require.Equal(t, "chat-9", result.ChatID)
	require.Equal(t, "test-model", result.ModelName)

	// 请求体形状
	require.Equal(t, "bot-1", captured["bot_id"])
	require.Equal(t, true, captured["stream"])
	require.Equal(t, "letter-learning-chat-42", captured["user_id"])
	require.Equal(t, true, captured["auto_save_history"])
	require.Equal(t, "conv-9", captured["conversation_id"])
	require.Equal(t, "space-1", captured["space_id"])
	messages := captured["additional_messages"].([]interface{})
	require.Len(t, messages, 1)
	first := messages[0].(map[string]interface{})
	require.Equal(t, "user", first["role"])
	require.Equal(t, "What does abandon mean?", first["content"])
	require.Equal(t, "text", first["content_type"])
}

func TestClient_ChatStream_OmitsEmptyConversationID(t *testing.T) {
	stream := "event: conversation.message.completed\n" +
		"data: {\"role\":\"assistant\",\"type\":\"answer\",\"content\":\"ok\"}\n" +
		"\n"

	var captured map[string]interface{}
	srv := httptest.NewServer(sseHandler(t, stream, &captured))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.ChatStream(context.Background(), &ChatStreamRequest{UserID: 1, Content: "hi"})
	require.NoError(t, err)
	_, present := captured["conversation_id"]
	require.False(t, present)
}

func TestClient_WorkflowChatStream(t *testing.T) {
	stream := "event: conversation.chat.created\n" +
		"data: {\"id\":\"chat-1\",\"conversation_id\":\"conv-1\"}\n" +
		"\n" +
		"event: conversation.message.delta\n" +
		"data: {\"content\":\"英文短文：A story about words.\"}\n" +
		"\n" +
		"event: conversation.chat.completed\n" +
		"data: {\"usage\":{\"output_count\":99},\"model\":\"wf-model\"}\n" +
		"\n"

	var captured map[string]interface{}
	srv := httptest.NewServer(sseHandler(t, stream, &captured))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.WorkflowChatStream(context.Background(), &WorkflowStreamRequest{
		Words:            []string{"abandon", "accurate"},
		ConversationName: "alice-2026-09-01",
		UserClass:        "考研冲刺班",
		EnglishLevel:     "考研核心词汇",
		TargetWordNum:    2,
	})
	require.NoError(t, err)
	require.Equal(t, "英文短文：A story about words.", result.Text)
	require.Equal(t, "wf-model", result.ModelName)

	require.Equal(t, "wf-1", captured["workflow_id"])
	params := captured["parameters"].(map[string]interface{})
	require.Equal(t, "alice-2026-09-01", params["CONVERSATION_NAME"])
	require.Equal(t, "考研冲刺班", params["USER_CLASS"])
	require.Equal(t, "考研核心词汇", params["USER_ENGLISH_LEVEL"])
	require.Equal(t, "2", params["USER_TARGETWORD_NUM"])
	messages := captured["additional_messages"].([]interface{})
	first := messages[0].(map[string]interface{})
	require.Equal(t, "question", first["type"])
	require.Equal(t, "abandon, accurate", first["content"])
}

func TestClient_MissingTokenFailsBeforeNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(config.CozeConfig{APIBase: srv.URL})
	_, err := client.ChatStream(context.Background(), &ChatStreamRequest{UserID: 1, Content: "hi"})
	require.True(t, IsKind(err, ErrKindConfig))

	_, err = client.WorkflowChatStream(context.Background(), &WorkflowStreamRequest{Words: []string{"a"}})
	require.True(t, IsKind(err, ErrKindConfig))
	require.False(t, called)
}

func TestClient_MissingBotAndWorkflowIDs(t *testing.T) {
	client := NewClient(config.CozeConfig{APIBase: "http://unused", APIToken: "t"})

	_, err := client.ChatStream(context.Background(), &ChatStreamRequest{UserID: 1, Content: "hi"})
	require.True(t, IsKind(err, ErrKindConfig))
	require.Contains(t, err.Error(), "智能体")

	_, err = client.WorkflowChatStream(context.Background(), &WorkflowStreamRequest{Words: []string{"a"}})
	require.True(t, IsKind(err, ErrKindConfig))
	require.Contains(t, err.Error(), "工作流")
}

func TestClient_RemoteErrorEventAborts(t *testing.T) {
	stream := "event: conversation.message.delta\n" +
		"data: {\"role\":\"assistant\",\"type\":\"answer\",\"content\":\"partial\"}\n" +
		"\n" +
		"event: error\n" +
		"data: {\"msg\":\"workflow crashed\"}\n" +
		"\n"

	srv := httptest.NewServer(sseHandler(t, stream, nil))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.WorkflowChatStream(context.Background(), &WorkflowStreamRequest{Words: []string{"a"}})
	require.True(t, IsKind(err, ErrKindRemote))
	require.Contains(t, err.Error(), "workflow crashed")
}

func TestClient_NonOKStatusIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":4100,"msg":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.ChatStream(context.Background(), &ChatStreamRequest{UserID: 1, Content: "hi"})
	require.True(t, IsKind(err, ErrKindRemote))
	require.Contains(t, err.Error(), "401")
}

func TestClient_TransportErrorKind(t *testing.T) {
	// 立即关闭的服务地址，连接被拒绝
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.ChatStream(context.Background(), &ChatStreamRequest{UserID: 1, Content: "hi"})
	require.True(t, IsKind(err, ErrKindTransport))
}

func TestClient_EmptyStreamIsEmptyResult(t *testing.T) {
	stream := "event: done\n" +
		"data: [DONE]\n" +
		"\n"

	srv := httptest.NewServer(sseHandler(t, stream, nil))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.WorkflowChatStream(context.Background(), &WorkflowStreamRequest{Words: []string{"a"}})
	require.True(t, IsKind(err, ErrKindEmptyResult))
	require.Contains(t, err.Error(), "短文")
}
