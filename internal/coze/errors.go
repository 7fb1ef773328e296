package coze

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类
// 调用方根据分类映射到对外的响应状态，不解析错误文案
type ErrorKind string

const (
	// ErrKindConfig 配置缺失（令牌、智能体ID、工作流ID）
	// 在发起任何网络请求之前就会失败，不会自动重试
	ErrKindConfig ErrorKind = "config"

	// ErrKindTransport 网络传输失败（连接拒绝、DNS、超时等）
	ErrKindTransport ErrorKind = "transport"

	// ErrKindRemote 远端明确报告的失败（error 事件或 *.failed 事件）
	// 检测到后立即中止流消费，错误文案来自远端
	ErrKindRemote ErrorKind = "remote"

	// ErrKindEmptyResult 流正常结束但没有拿到任何有效文本
	// 空回复永远是错误，不会被当作成功静默处理
	ErrKindEmptyResult ErrorKind = "empty_result"
)

// Error Coze 调用过程中产生的分类错误
type Error struct {
	Kind    ErrorKind // 错误分类
	Message string    // 面向调用方的错误文案
	Err     error     // 底层错误，可选
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 支持 errors.Is / errors.As 链式匹配
func (e *Error) Unwrap() error {
	return e.Err
}

// newConfigError 创建配置错误
func newConfigError(message string) *Error {
	return &Error{Kind: ErrKindConfig, Message: message}
}

// newTransportError 创建传输错误
func newTransportError(message string, err error) *Error {
	return &Error{Kind: ErrKindTransport, Message: message, Err: err}
}

// newRemoteError 创建远端错误
func newRemoteError(message string) *Error {
	return &Error{Kind: ErrKindRemote, Message: message}
}

// newEmptyResultError 创建空结果错误
func newEmptyResultError(message string) *Error {
	return &Error{Kind: ErrKindEmptyResult, Message: message}
}

// KindOf 提取错误的分类
// 参数:
//   - err: 任意错误
//
// 返回:
//   - ErrorKind: 分类，非 Coze 错误返回空字符串
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
