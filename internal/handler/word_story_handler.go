package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"letter-learning-server/internal/coze"
	"letter-learning-server/internal/middleware"
	"letter-learning-server/internal/service"
	"letter-learning-server/pkg/response"
)

// WordStoryHandler 每日短文请求处理器
type WordStoryHandler struct {
	storyService *service.WordStoryService
	userService  *service.UserService
}

// NewWordStoryHandler 创建 WordStoryHandler 实例
func NewWordStoryHandler(storyService *service.WordStoryService, userService *service.UserService) *WordStoryHandler {
	return &WordStoryHandler{
		storyService: storyService,
		userService:  userService,
	}
}

// GetToday 获取今日短文
// @Summary 获取今日短文
// @Description 查询当天的短文，auto_generate=true 时没有则触发生成
// @Tags 短文
// @Security Bearer
// @Produce json
// @Param auto_generate query bool false "没有记录时是否自动生成"
// @Param force query bool false "是否强制重新生成"
// @Success 200 {object} response.Response{data=model.WordStory}
// @Router /api/word-stories/today [get]
func (h *WordStoryHandler) GetToday(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "请先登录")
		return
	}

	autoGenerate := c.Query("auto_generate") == "true"
	force := c.Query("force") == "true"
	today := time.Now()

	if !autoGenerate && !force {
		story, err := h.storyService.GetByDate(c.Request.Context(), userID, today)
		if err != nil {
			response.InternalError(c, "查询短文失败")
			return
		}
		if story == nil {
			response.StoryNotFound(c)
			return
		}
		response.Success(c, story)
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.UserNotFound(c)
		return
	}

	story, err := h.storyService.Generate(c.Request.Context(), user, nil, today, force)
	if err != nil {
		h.writeGenerateError(c, err)
		return
	}
	response.Success(c, story)
}

// GenerateRequest 生成短文请求
type GenerateRequest struct {
	Words     []string `json:"words"`      // 指定词表，为空时从学习计划解析
	StoryDate string   `json:"story_date"` // 短文日期 YYYY-MM-DD，为空时取今天
	Force     bool     `json:"force"`      // 已有记录时是否强制重新生成
}

// Generate 生成短文
// @Summary 生成指定日期的短文
// @Description 幂等接口，已有记录且未强制时直接返回
// @Tags 短文
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body GenerateRequest true "生成参数"
// @Success 200 {object} response.Response{data=model.WordStory}
// @Router /api/word-stories/generate [post]
func (h *WordStoryHandler) Generate(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "请先登录")
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	var storyDate time.Time
	if req.StoryDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.StoryDate, time.Local)
		if err != nil {
			response.BadRequest(c, "日期格式错误，应为 YYYY-MM-DD")
			return
		}
		storyDate = parsed
	}

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.UserNotFound(c)
		return
	}

	story, err := h.storyService.Generate(c.Request.Context(), user, req.Words, storyDate, req.Force)
	if err != nil {
		h.writeGenerateError(c, err)
		return
	}
	response.Success(c, story)
}

// History 查询最近的短文记录
// @Summary 短文历史
// @Tags 短文
// @Security Bearer
// @Produce json
// @Param limit query int false "最多返回条数，默认 30"
// @Success 200 {object} response.Response{data=[]model.WordStory}
// @Router /api/word-stories/history [get]
func (h *WordStoryHandler) History(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "请先登录")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	stories, err := h.storyService.ListRecent(c.Request.Context(), userID, limit)
	if err != nil {
		response.InternalError(c, "查询短文历史失败")
		return
	}
	response.Success(c, stories)
}

// writeGenerateError 把生成失败映射为响应
func (h *WordStoryHandler) writeGenerateError(c *gin.Context, err error) {
	switch err {
	case service.ErrStoryBusy:
		response.ErrorWithCode(c, 409, response.CodeStoryBusy, err.Error())
		return
	case service.ErrEmptyWordList:
		response.BadRequest(c, err.Error())
		return
	}

	switch coze.KindOf(err) {
	case coze.ErrKindConfig:
		response.InternalError(c, err.Error())
	case coze.ErrKindTransport, coze.ErrKindRemote, coze.ErrKindEmptyResult:
		response.UpstreamError(c, err.Error())
	default:
		response.InternalError(c, "短文生成失败")
	}
}
