// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"letter-learning-server/internal/coze"
	"letter-learning-server/internal/model"
	"letter-learning-server/internal/repository"
	"letter-learning-server/pkg/logger"
	"letter-learning-server/pkg/util"
)

// 短文服务相关错误
var (
	ErrStoryNotFound = errors.New("当天还没有生成短文")
	ErrStoryBusy     = errors.New("短文生成中，请稍后再试")
	ErrEmptyWordList = errors.New("词表不能为空")
)

// DefaultSampleWords 用户没有学习计划时使用的兜底词表
var DefaultSampleWords = []string{
	"abandon", "accurate", "acquire", "adapt", "analyze",
	"approach", "assume", "benefit", "challenge", "contribute",
	"decline", "define", "demand", "determine", "efficient",
	"essential", "evidence", "function", "impact", "maintain",
}

// 工作流参数的默认值与课程代号映射
const (
	defaultWorkflowClass = "学习计划"
	defaultWorkflowLevel = "通用词库"

	// storyLockTTL 生成锁的自动过期时间
	// 比单次流式调用的最长超时略宽
	storyLockTTL = 3 * time.Minute
)

// courseLabelMap 课程代号到中文展示名的映射
// 未知代号原样透传
var courseLabelMap = map[string]string{
	"basic":        "基础巩固班",
	"postgraduate": "考研冲刺班",
	"toefl":        "托福强化班",
	"ielts":        "雅思口语班",
}

// WorkflowStreamer 工作流流式调用接口
// 由 coze.Client 实现，测试时注入假实现
type WorkflowStreamer interface {
	WorkflowChatStream(ctx context.Context, req *coze.WorkflowStreamRequest) (*coze.StreamResult, error)
}

// StoryLocker 短文生成互斥锁接口
// 由 cache.RedisCache 实现
type StoryLocker interface {
	AcquireStoryLock(ctx context.Context, userID int64, date string, ttl time.Duration) (bool, error)
	ReleaseStoryLock(ctx context.Context, userID int64, date string) error
}

// WordStoryService 每日短文服务
// 实现"查一次、没有就生成、有了就复用"的幂等协议
type WordStoryService struct {
	storyRepo *repository.WordStoryRepository    // 短文数据访问层
	planRepo  *repository.UserWordBookRepository // 学习计划数据访问层
	workflow  WorkflowStreamer                   // 工作流调用
	locker    StoryLocker                        // 生成互斥锁
	log       *logger.Logger
}

// NewWordStoryService 创建 WordStoryService 实例
func NewWordStoryService(
	storyRepo *repository.WordStoryRepository,
	planRepo *repository.UserWordBookRepository,
	workflow WorkflowStreamer,
	locker StoryLocker,
	log *logger.Logger,
) *WordStoryService {
	return &WordStoryService{
		storyRepo: storyRepo,
		planRepo:  planRepo,
		workflow:  workflow,
		locker:    locker,
		log:       log,
	}
}

// workflowInputs 一次工作流调用的全部输入
type workflowInputs struct {
	words            []string
	userClass        string
	englishLevel     string
	targetWordNum    int
	conversationName string
	dayIndex         int // 0 表示没有学习计划
}

// Generate 生成（或返回已有的）某一天的短文
// 参数:
//   - ctx: 上下文
//   - user: 发起用户
//   - words: 调用方指定的词表，为空时从学习计划解析
//   - storyDate: 短文日期，零值表示今天
//   - force: 已有记录时是否强制重新生成
//
// 返回:
//   - *model.WordStory: 短文记录
//   - error: 生成失败返回错误，已有记录保持原样
func (s *WordStoryService) Generate(ctx context.Context, user *model.User, words []string, storyDate time.Time, force bool) (*model.WordStory, error) {
	storyDate = normalizeDate(storyDate)

	// 幂等读取: 已有记录且未强制时原样返回，不发起任何网络请求
	existing, err := s.storyRepo.GetByUserAndDate(ctx, user.ID, storyDate)
	if err != nil {
		return nil, err
	}
	if existing != nil && !force {
		return existing, nil
	}

	// 互斥锁: 同一用户同一天只允许一个生成任务
	dateKey := storyDate.Format("2006-01-02")
	acquired, err := s.locker.AcquireStoryLock(ctx, user.ID, dateKey, storyLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrStoryBusy
	}
	defer func() {
		if err := s.locker.ReleaseStoryLock(context.WithoutCancel(ctx), user.ID, dateKey); err != nil {
			s.log.Warn("release story lock failed", "user_id", user.ID, "date", dateKey, "error", err)
		}
	}()

	inputs, err := s.prepareWorkflowInputs(ctx, user, storyDate, words)
	if err != nil {
		return nil, err
	}

	s.log.Info("generating word story",
		"user_id", user.ID,
		"date", dateKey,
		"word_count", len(inputs.words),
		"day_index", inputs.dayIndex,
		"force", force,
	)

	result, err := s.workflow.WorkflowChatStream(ctx, &coze.WorkflowStreamRequest{
		Words:            inputs.words,
		ConversationName: inputs.conversationName,
		UserClass:        inputs.userClass,
		EnglishLevel:     inputs.englishLevel,
		TargetWordNum:    inputs.targetWordNum,
	})
	if err != nil {
		// 失败时已有记录保持原样
		s.log.Error("word story workflow failed", "user_id", user.ID, "date", dateKey, "error", err)
		return nil, err
	}

	story, err := s.buildStoryRecord(user.ID, storyDate, inputs, result)
	if err != nil {
		return nil, err
	}

	// 按 (user_id, story_date) 唯一键覆盖写入
	if err := s.storyRepo.Upsert(ctx, story); err != nil {
		return nil, err
	}

	// 重新读取，覆盖更新时返回数据库里的权威行
	return s.storyRepo.GetByUserAndDate(ctx, user.ID, storyDate)
}

// GetByDate 查询用户某一天的短文
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - storyDate: 短文日期
//
// 返回:
//   - *model.WordStory: 短文记录，不存在返回 nil
//   - error: 数据库错误
func (s *WordStoryService) GetByDate(ctx context.Context, userID int64, storyDate time.Time) (*model.WordStory, error) {
	return s.storyRepo.GetByUserAndDate(ctx, userID, normalizeDate(storyDate))
}

// ListRecent 查询用户最近的短文记录
func (s *WordStoryService) ListRecent(ctx context.Context, userID int64, limit int) ([]model.WordStory, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	return s.storyRepo.ListRecent(ctx, userID, limit)
}

// prepareWorkflowInputs 解析一次工作流调用的全部输入
// 词表的优先级: 调用方指定 > 计划当天编排 > 整本书前 N 个 > 固定兜底词表
func (s *WordStoryService) prepareWorkflowInputs(ctx context.Context, user *model.User, storyDate time.Time, override []string) (*workflowInputs, error) {
	inputs := &workflowInputs{
		userClass:        defaultWorkflowClass,
		englishLevel:     defaultWorkflowLevel,
		conversationName: fmt.Sprintf("%s-%s", user.Username, storyDate.Format("2006-01-02")),
	}

	plan, err := s.planRepo.GetLatestActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var planWords []string
	if plan != nil {
		inputs.dayIndex = calculateDayIndex(plan.StartDate, storyDate, plan.TotalDays)
		planWords, err = s.planRepo.ListWordsForDay(ctx, plan.ID, inputs.dayIndex)
		if err != nil {
			return nil, err
		}
		if len(planWords) == 0 {
			// 当天没有编排词表，按原书顺序取每日配额兜底
			quota := plan.DailyQuota
			if quota <= 0 {
				quota = len(DefaultSampleWords)
			}
			planWords, err = s.planRepo.ListBookWords(ctx, plan.WordBookID, quota)
			if err != nil {
				return nil, err
			}
		}

		inputs.userClass = mapCourseLabel(plan.CourseCode)
		if plan.Book != nil && plan.Book.Title != "" {
			inputs.englishLevel = plan.Book.Title
		}
	}

	switch {
	case len(override) > 0:
		inputs.words, err = normalizeWords(override)
		if err != nil {
			return nil, err
		}
	case len(planWords) > 0:
		inputs.words, err = normalizeWords(planWords)
		if err != nil {
			return nil, err
		}
	default:
		inputs.words = DefaultSampleWords
	}

	if plan != nil && plan.DailyQuota > 0 {
		inputs.targetWordNum = plan.DailyQuota
	} else {
		inputs.targetWordNum = len(inputs.words)
	}

	return inputs, nil
}

// buildStoryRecord 把聚合结果折叠成持久化记录
func (s *WordStoryService) buildStoryRecord(userID int64, storyDate time.Time, inputs *workflowInputs, result *coze.StreamResult) (*model.WordStory, error) {
	storyText, imageCaption := coze.SplitStorySections(result.Text)
	if storyText == "" {
		return nil, &coze.Error{Kind: coze.ErrKindEmptyResult, Message: "未能从 Coze 流式响应中获取短文"}
	}

	// 没有结构化图片块时，从插图描述里兜底提取裸 URL
	imageURLs := result.ImageURLs
	if len(imageURLs) == 0 && imageCaption != "" {
		imageURLs = coze.RecoverImageURLs(imageCaption)
	}

	story := &model.WordStory{
		UserID:      userID,
		StoryDate:   storyDate,
		GeneratedAt: time.Now(),
		Words:       inputs.words,
		StoryText:   storyText,
		Status:      model.WordStoryStatusSuccess,
		Extra: map[string]interface{}{
			"chat_id":         result.ChatID,
			"conversation_id": result.ConversationID,
			"usage":           result.Usage,
			"image_caption":   imageCaption,
			"image_urls":      imageURLs,
			"workflow_params": map[string]interface{}{
				"user_class":      inputs.userClass,
				"english_level":   inputs.englishLevel,
				"target_word_num": inputs.targetWordNum,
				"day_index":       inputs.dayIndex,
			},
		},
	}

	if tokens := extractStoryTokens(result.Usage); tokens > 0 {
		story.StoryTokens = util.IntPtr(tokens)
	}
	if result.ModelName != "" {
		story.ModelName = util.StringPtr(result.ModelName)
	}
	if len(imageURLs) > 0 {
		story.ImageURL = util.StringPtr(imageURLs[0])
	}
	if imageCaption != "" {
		story.ImageCaption = util.StringPtr(imageCaption)
	}

	return story, nil
}

// calculateDayIndex 推算某个日期对应学习计划的第几天
// 开始日期当天及之前都算第 1 天，设置了总天数时不超过总天数
// 按日历日数，不按经过的小时数，夏令时造成的 23 小时天不会少算一天
func calculateDayIndex(startDate, storyDate time.Time, totalDays int) int {
	start := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(storyDate.Year(), storyDate.Month(), storyDate.Day(), 0, 0, 0, 0, time.UTC)
	if !day.After(start) {
		return 1
	}
	idx := int(day.Sub(start).Hours()/24) + 1
	if totalDays > 0 && idx > totalDays {
		idx = totalDays
	}
	if idx < 1 {
		idx = 1
	}
	return idx
}

// mapCourseLabel 课程代号转中文展示名
func mapCourseLabel(code *string) string {
	if code == nil || *code == "" {
		return defaultWorkflowClass
	}
	if label, ok := courseLabelMap[*code]; ok {
		return label
	}
	return *code
}

// normalizeWords 修剪并剔除空白词条
func normalizeWords(words []string) ([]string, error) {
	cleaned := make([]string, 0, len(words))
	for _, word := range words {
		if w := strings.TrimSpace(word); w != "" {
			cleaned = append(cleaned, w)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrEmptyWordList
	}
	return cleaned, nil
}

// extractStoryTokens 从用量统计里提取输出 token 数
// 不同接口的字段名不一致，按已知的几个字段名依次尝试
func extractStoryTokens(usage map[string]interface{}) int {
	for _, key := range []string{"output_count", "output_tokens", "token_count"} {
		if v, ok := usage[key]; ok {
			switch n := v.(type) {
			case float64:
				return int(n)
			case int:
				return n
			}
		}
	}
	return 0
}

// normalizeDate 截断到日期，零值取今天
func normalizeDate(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
