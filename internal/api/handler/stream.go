package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_go_server/config"
	"github.com/qs3c/exam_go_server/internal/model"
	"github.com/qs3c/exam_go_server/internal/model/dto"
	"github.com/qs3c/exam_go_server/internal/pkg/jwt"
	"github.com/qs3c/exam_go_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_go_server/internal/pkg/response"
	"github.com/qs3c/exam_go_server/internal/pkg/sse"
	"github.com/qs3c/exam_go_server/internal/service"
)

// StreamHandler SSE 进度推送
// EventSource 无法设置请求头，token 通过 query 参数传递，因此路由不挂认证中间件
type StreamHandler struct {
	parseService *service.ParseService
	hub          *sse.Hub
	cfg          *config.Config
}

func NewStreamHandler(parseService *service.ParseService, hub *sse.Hub, cfg *config.Config) *StreamHandler {
	return &StreamHandler{
		parseService: parseService,
		hub:          hub,
		cfg:          cfg,
	}
}

// Stream 订阅任务进度事件流
// GET /api/v1/parse/stream/:id?token=xxx
func (h *StreamHandler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.AuthError(c, "请提供认证信息")
		return
	}

	claims, err := jwt.ParseToken(token, h.cfg.JWT.Secret)
	if err != nil {
		response.AuthError(c, "认证失败或已过期")
		return
	}
	userID := claims.UserID

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

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// 任务已到终态，直接回放终态事件后结束
	if status.Status == model.StatusCompleted || status.Status == model.StatusFailed {
		h.writeTerminal(c, status)
		return
	}

	// 先订阅再复查状态，避免检查和订阅之间任务刚好结束导致漏掉终态事件
	ch := h.hub.Subscribe(examID)
	defer h.hub.Unsubscribe(examID, ch)

	if status, err = h.parseService.GetStatus(userID, examID); err == nil {
		if status.Status == model.StatusCompleted || status.Status == model.StatusFailed {
			h.writeTerminal(c, status)
			return
		}
	}

	keepalive := time.Duration(h.cfg.Stream.KeepaliveSeconds) * time.Second
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	maxDuration := time.Duration(h.cfg.Stream.MaxDurationSeconds) * time.Second
	if maxDuration <= 0 {
		maxDuration = 5 * time.Minute
	}

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()
	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case <-deadline.C:
			// 连接时长达到上限，通知客户端转为轮询
			c.SSEvent(pubsub.EventError, gin.H{
				"job_id": examID,
				"error":  "推送连接超时，请改用状态查询接口",
			})
			c.Writer.Flush()
			return

		case <-ticker.C:
			// keepalive 注释行，防止中间代理断开空闲连接
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()

		case event, ok := <-ch:
			if !ok {
				// Hub 在终态事件后关闭了 channel
				return
			}
			c.SSEvent(event.Name, event.Payload)
			c.Writer.Flush()
			if event.IsTerminal() {
				return
			}
		}
	}
}

// writeTerminal 以单条终态事件回放任务的最终结果
func (h *StreamHandler) writeTerminal(c *gin.Context, status *dto.JobStatusResponse) {
	if status.Status == model.StatusCompleted {
		c.SSEvent(pubsub.EventComplete, gin.H{
			"job_id":      status.JobID,
			"status":      status.Status,
			"progress":    status.Progress,
			"result_json": status.ResultJSON,
		})
	} else {
		c.SSEvent(pubsub.EventError, gin.H{
			"job_id":   status.JobID,
			"status":   status.Status,
			"progress": status.Progress,
			"error":    status.ErrorMessage,
		})
	}
	c.Writer.Flush()
}
