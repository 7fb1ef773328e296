package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"letter-learning-server/internal/coze"
	"letter-learning-server/internal/middleware"
	"letter-learning-server/internal/model"
	"letter-learning-server/internal/service"
	"letter-learning-server/pkg/response"
)

// AiChatHandler AI 对话请求处理器
type AiChatHandler struct {
	chatService *service.AiChatService
	userService *service.UserService
}

// NewAiChatHandler 创建 AiChatHandler 实例
func NewAiChatHandler(chatService *service.AiChatService, userService *service.UserService) *AiChatHandler {
	return &AiChatHandler{
		chatService: chatService,
		userService: userService,
	}
}

// chatDetailResponse 会话详情响应
type chatDetailResponse struct {
	Session  *model.AiChatSession  `json:"session"`
	Messages []model.AiChatMessage `json:"messages"`
}

// StartRequest 开启会话请求
type StartRequest struct {
	StoryText   string `json:"story_text"`    // 围绕的短文内容，可为空
	WordStoryID *int64 `json:"word_story_id"` // 关联的短文记录ID，可选
}

// Start 开启新会话
// @Summary 开启 AI 对话会话
// @Description 创建会话并返回开场白
// @Tags AI对话
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body StartRequest true "会话参数"
// @Success 200 {object} response.Response{data=chatDetailResponse}
// @Router /api/ai-chats [post]
func (h *AiChatHandler) Start(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "请先登录")
		return
	}

	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.UserNotFound(c)
		return
	}

	session, messages, err := h.chatService.StartSession(c.Request.Context(), user, req.StoryText, req.WordStoryID)
	if err != nil {
		response.InternalError(c, "创建会话失败")
		return
	}

	response.Success(c, chatDetailResponse{Session: session, Messages: messages})
}

// Detail 获取会话详情
// @Summary 会话详情
// @Description 返回会话和全部消息
// @Tags AI对话
// @Security Bearer
// @Produce json
// @Param id path int true "会话ID"
// @Success 200 {object} response.Response{data=chatDetailResponse}
// @Router /api/ai-chats/{id} [get]
func (h *AiChatHandler) Detail(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "请先登录")
		return
	}

	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "会话ID格式错误")
		return
	}

	session, messages, err := h.chatService.GetDetail(c.Request.Context(), userID, chatID)
	if err != nil {
		if err == service.ErrChatNotFound {
			response.ChatNotFound(c)
			return
		}
		response.InternalError(c, "查询会话失败")
		return
	}

	response.Success(c, chatDetailResponse{Session: session, Messages: messages})
}

// SendRequest 发送消息请求
type SendRequest struct {
	Content string `json:"content" binding:"required"` // 用户输入的问题
}

// sendResponse 发送消息响应
type sendResponse struct {
	Session  *model.AiChatSession  `json:"session"`
	Messages []model.AiChatMessage `json:"messages"` // 本轮新增的两条消息
}

// Send 发送消息
// @Summary 发送一条用户消息并等待 AI 回复
// @Tags AI对话
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "会话ID"
// @Param body body SendRequest true "消息内容"
// @Success 200 {object} response.Response{data=sendResponse}
// @Router /api/ai-chats/{id}/messages [post]
func (h *AiChatHandler) Send(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "请先登录")
		return
	}

	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "会话ID格式错误")
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请输入问题内容")
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.UserNotFound(c)
		return
	}

	session, messages, err := h.chatService.SendMessage(c.Request.Context(), user, chatID, req.Content)
	if err != nil {
		h.writeSendError(c, err)
		return
	}

	response.Success(c, sendResponse{Session: session, Messages: messages})
}

// writeSendError 把发送失败映射为响应
func (h *AiChatHandler) writeSendError(c *gin.Context, err error) {
	switch err {
	case service.ErrChatNotFound:
		response.ChatNotFound(c)
		return
	case service.ErrChatEnded:
		response.ChatEnded(c)
		return
	case service.ErrChatRoundCap:
		response.ErrorWithCode(c, 400, response.CodeChatRoundCap, err.Error())
		return
	case service.ErrEmptyMessage:
		response.BadRequest(c, err.Error())
		return
	}

	switch coze.KindOf(err) {
	case coze.ErrKindConfig:
		response.InternalError(c, err.Error())
	case coze.ErrKindTransport, coze.ErrKindRemote, coze.ErrKindEmptyResult:
		response.UpstreamError(c, err.Error())
	default:
		response.InternalError(c, "发送消息失败")
	}
}
