package coze

import (
	"regexp"
	"strings"
)

// 工作流把短文和插图描述放在同一段文本里，用固定标记分隔
const (
	storyLabel = "英文短文："
	imageLabel = "根据短文自动生成的插图："
)

// urlPattern 从插图描述里兜底提取裸 URL
// 不校验提取到的 URL 是否真的是图片，尽力而为
var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// SplitStorySections 按固定标记把完整文本切分为短文正文和插图描述
// 参数:
//   - fullText: 聚合出的完整文本
//
// 返回:
//   - string: 短文正文，开头的"英文短文："标记被剥掉
//   - string: 插图描述，标记不存在时为空串
func SplitStorySections(fullText string) (string, string) {
	text := strings.TrimSpace(fullText)
	text = strings.TrimSpace(strings.TrimPrefix(text, storyLabel))

	idx := strings.Index(text, imageLabel)
	if idx < 0 {
		return text, ""
	}
	story := strings.TrimSpace(text[:idx])
	caption := strings.TrimSpace(text[idx+len(imageLabel):])
	return story, caption
}

// trailingPunct 紧贴在 URL 后面的中英文标点
const trailingPunct = ".,;:!?)]}>\"'，。；：！？）】》"

// RecoverImageURLs 从插图描述中提取裸 http(s) URL
// 流中没有结构化图片块时的最后兜底
// 参数:
//   - caption: 插图描述文本
//
// 返回:
//   - []string: 提取到的 URL，没有返回 nil
func RecoverImageURLs(caption string) []string {
	if caption == "" {
		return nil
	}
	matches := urlPattern.FindAllString(caption, -1)
	urls := matches[:0]
	for _, m := range matches {
		if u := strings.TrimRight(m, trailingPunct); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil
	}
	return urls
}
