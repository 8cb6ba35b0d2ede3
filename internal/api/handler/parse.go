package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_go_server/internal/api/middleware"
	"github.com/qs3c/exam_go_server/internal/pkg/response"
	"github.com/qs3c/exam_go_server/internal/service"
)

type ParseHandler struct {
	parseService *service.ParseService
}

func NewParseHandler(parseService *service.ParseService) *ParseHandler {
	return &ParseHandler{
		parseService: parseService,
	}
}

// Submit 上传试卷并创建解析任务
// POST /api/v1/parse
func (h *ParseHandler) Submit(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ParamError(c, "请上传文件")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		response.ServerError(c, "文件读取失败")
		return
	}

	useVision := c.PostForm("use_vision") == "true"

	resp, err := h.parseService.Submit(c.Request.Context(), userID, &service.SubmitRequest{
		Filename:  header.Filename,
		Content:   content,
		Speed:     c.PostForm("speed"),
		UseVision: useVision,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyFile),
			errors.Is(err, service.ErrFileTooLarge),
			errors.Is(err, service.ErrUnsupportedType):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrQuotaExceeded):
			response.QuotaError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "任务已创建", resp)
}

// GetStatus 查询任务状态
// GET /api/v1/parse/status/:id
func (h *ParseHandler) GetStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	examID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	status, err := h.parseService.GetStatus(userID, examID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, status)
}

// History 查询解析历史
// GET /api/v1/parse/history
func (h *ParseHandler) History(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.parseService.History(userID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Delete 删除任务及其题目
// DELETE /api/v1/parse/:id
func (h *ParseHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	examID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	if err := h.parseService.Delete(userID, examID); err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}
