package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelParseProgress = "parse_progress"
)

// 事件类型，complete / error_event 为终态事件，每个任务恰好发出一次
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error_event"
)

// ProgressMessage 进度消息
type ProgressMessage struct {
	Event      string `json:"event"`
	ExamID     int64  `json:"exam_id"`
	UserID     int64  `json:"user_id"`
	Status     string `json:"status"`
	Step       string `json:"step,omitempty"`
	Progress   int    `json:"progress"`
	Message    string `json:"message,omitempty"`
	ResultJSON string `json:"result_json,omitempty"`
	Error      string `json:"error,omitempty"`
}

// 进度阶段常量
const (
	StepStarting   = "starting"
	StepReading    = "reading"
	StepExtracting = "extracting"
	StepSaving     = "saving"
	StepDone       = "done"
)

// 阶段对应的进度百分比，worker 按顺序推进，保证单调不减
var StepProgress = map[string]int{
	StepStarting:   5,
	StepReading:    15,
	StepExtracting: 40,
	StepSaving:     80,
	StepDone:       100,
}

// 阶段对应的消息
var StepMessages = map[string]string{
	StepStarting:   "任务已开始",
	StepReading:    "正在读取文件内容",
	StepExtracting: "AI 正在分析题目",
	StepSaving:     "正在保存结果",
	StepDone:       "解析完成",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	if msg.Event == "" {
		msg.Event = EventProgress
	}

	// 自动填充进度和消息
	if msg.Progress == 0 && msg.Step != "" {
		if progress, ok := StepProgress[msg.Step]; ok {
			msg.Progress = progress
		}
	}
	if msg.Message == "" && msg.Step != "" {
		if message, ok := StepMessages[msg.Step]; ok {
			msg.Message = message
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelParseProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息，阻塞直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelParseProgress)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}
