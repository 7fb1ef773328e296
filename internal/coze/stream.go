package coze

import (
	"bufio"
	"io"
	"strings"
)

// doneSentinel 流结束哨兵负载，是合法帧但不携带内容
const doneSentinel = "[DONE]"

// Frame 从 SSE 流中解码出的一个事件帧
type Frame struct {
	// Event 事件名，如 conversation.message.delta
	Event string

	// Data 负载原文，多行 data 用换行拼接
	Data string
}

// FrameReader 把原始字节流解码为事件帧序列
// 解码规则:
//   - 空行是帧边界: 如果有待定的事件名和负载，产出一帧并重置
//   - event: 行设置事件名，如果已有待定负载，先把前一帧产出
//   - data: 行把剩余部分（去掉前缀后修剪）追加到待定负载
//   - 其他非空行忽略（容忍未知的 SSE 字段）
//   - 输入结束时如有待定帧，产出最后一帧（不依赖结尾空行）
//
// 用法与 bufio.Scanner 一致:
//
//	fr := NewFrameReader(body)
//	for fr.Scan() {
//		frame := fr.Frame()
//	}
//	if err := fr.Err(); err != nil { ... }
type FrameReader struct {
	scanner *bufio.Scanner

	event string   // 待定的事件名
	data  []string // 待定的负载片段

	frame  Frame // 最近一次 Scan 产出的帧
	closed bool  // 输入是否已耗尽
}

// NewFrameReader 创建 FrameReader
// 参数:
//   - r: SSE 响应体
//
// 返回:
//   - *FrameReader: 帧读取器
func NewFrameReader(r io.Reader) *FrameReader {
	scanner := bufio.NewScanner(r)
	// 单行可能携带整段 JSON，放宽默认的 64KB 行长限制
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &FrameReader{scanner: scanner}
}

// Scan 推进到下一帧
// 返回:
//   - bool: true 表示 Frame() 可取到新帧，false 表示流结束或出错
func (fr *FrameReader) Scan() bool {
	if fr.closed {
		return false
	}

	for fr.scanner.Scan() {
		line := strings.TrimSpace(fr.scanner.Text())

		// 空行: 帧边界
		if line == "" {
			if fr.flush() {
				return true
			}
			continue
		}

		// event: 行结束前一帧并开启新帧
		if rest, ok := strings.CutPrefix(line, "event:"); ok {
			flushed := fr.flush()
			fr.event = strings.TrimSpace(rest)
			if flushed {
				return true
			}
			continue
		}

		// data: 行追加负载
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			fr.data = append(fr.data, strings.TrimSpace(rest))
			continue
		}

		// 未知字段忽略
	}

	// 输入耗尽，产出最后一个待定帧
	fr.closed = true
	return fr.flush()
}

// Frame 返回最近一次 Scan 产出的帧
func (fr *FrameReader) Frame() Frame {
	return fr.frame
}

// Err 返回底层读取错误
// 流正常结束返回 nil
func (fr *FrameReader) Err() error {
	return fr.scanner.Err()
}

// flush 如果存在完整的待定帧则产出它
// 事件名和负载都非空才算完整，和空行/新事件的边界语义一致
func (fr *FrameReader) flush() bool {
	if fr.event == "" || len(fr.data) == 0 {
		fr.event = ""
		fr.data = nil
		return false
	}
	fr.frame = Frame{
		Event: fr.event,
		Data:  strings.Join(fr.data, "\n"),
	}
	fr.event = ""
	fr.data = nil
	return true
}
