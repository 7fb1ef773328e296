package coze

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// readAll 把输入完整解码成帧序列
func readAll(t *testing.T, input string) []Frame {
	t.Helper()
	fr := NewFrameReader(strings.NewReader(input))
	var frames []Frame
	for fr.Scan() {
		frames = append(frames, fr.Frame())
	}
	require.NoError(t, fr.Err())
	return frames
}

func TestFrameReader_BasicFrames(t *testing.T) {
	input := "event: conversation.message.delta\n" +
		"data: {\"content\":\"Hel\"}\n" +
		"\n" +
		"event: conversation.message.delta\n" +
		"data: {\"content\":\"lo\"}\n" +
		"\n"

	frames := readAll(t, input)
	require.Len(t, frames, 2)
	require.Equal(t, "conversation.message.delta", frames[0].Event)
	require.Equal(t, `{"content":"Hel"}`, frames[0].Data)
	require.Equal(t, `{"content":"lo"}`, frames[1].Data)
}

func TestFrameReader_FlushOnClose(t *testing.T) {
	// 结尾没有空行，最后一个待定帧也要产出
	input := "event: x\n" +
		"data: {\"a\":1}"

	frames := readAll(t, input)
	require.Len(t, frames, 1)
	require.Equal(t, "x", frames[0].Event)
	require.Equal(t, `{"a":1}`, frames[0].Data)
}

func TestFrameReader_MultiDataLinesJoined(t *testing.T) {
	input := "event: conversation.message.completed\n" +
		"data: {\"content\":\n" +
		"data: \"Hello\"}\n" +
		"\n"

	frames := readAll(t, input)
	require.Len(t, frames, 1)
	require.Equal(t, "{\"content\":\n\"Hello\"}", frames[0].Data)
}

func TestFrameReader_EventLineEndsPriorFrame(t *testing.T) {
	// 新的 event: 行在没有空行的情况下结束前一帧
	input := "event: a\n" +
		"data: {\"n\":1}\n" +
		"event: b\n" +
		"data: {\"n\":2}\n" +
		"\n"

	frames := readAll(t, input)
	require.Len(t, frames, 2)
	require.Equal(t, "a", frames[0].Event)
	require.Equal(t, "b", frames[1].Event)
	require.Equal(t, `{"n":2}`, frames[1].Data)
}

func TestFrameReader_IgnoresUnknownFields(t *testing.T) {
	input := "event: a\n" +
		"id: 42\n" +
		"retry: 1000\n" +
		"data: {\"n\":1}\n" +
		"\n"

	frames := readAll(t, input)
	require.Len(t, frames, 1)
	require.Equal(t, `{"n":1}`, frames[0].Data)
}

func TestFrameReader_IncompleteFrameDropped(t *testing.T) {
	// 只有事件名没有负载的帧不产出
	input := "event: heartbeat\n" +
		"\n" +
		"event: a\n" +
		"data: {\"n\":1}\n" +
		"\n"

	frames := readAll(t, input)
	require.Len(t, frames, 1)
	require.Equal(t, "a", frames[0].Event)
}

func TestFrameReader_EmptyInput(t *testing.T) {
	frames := readAll(t, "")
	require.Empty(t, frames)
}

func TestFrameReader_DoneSentinelPassesThrough(t *testing.T) {
	input := "event: done\n" +
		"data: [DONE]\n" +
		"\n"

	frames := readAll(t, input)
	require.Len(t, frames, 1)
	require.Equal(t, "[DONE]", frames[0].Data)
}
