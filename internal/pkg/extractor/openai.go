package extractor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/qs3c/exam_go_server/config"
)

const (
	// DefaultModel 未配置 speed 映射时的兜底模型
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout 单次提取调用的默认超时
	DefaultTimeout = 120 * time.Second
)

var ErrAPIKeyNotSet = errors.New("parser API key not set")

// 提取提示词刻意保持简单，复杂的 prompt 工程不在本服务范围内
const systemPrompt = `你是一个数学试卷解析助手。从用户提供的内容中提取所有数学题目，` +
	`以 JSON 对象返回：{"questions": [{"question": "题干(LaTeX)", "type": "multiple_choice|essay|calculation|fill_blank|true_false", ` +
	`"topic": "知识点", "difficulty": "NB|TH|VD|VDC", "answer": "答案", "solution_steps": ["步骤"]}]}。` +
	`只输出 JSON，不要输出其他内容。`

// OpenAIExtractor 基于 OpenAI 兼容 API 的提取实现
// 每个任务至多调用一次外部服务，不做任何自动重试
type OpenAIExtractor struct {
	client    openai.Client
	models    map[string]string
	maxTokens int
	timeout   time.Duration
}

func NewOpenAIExtractor(cfg *config.ParserConfig) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &OpenAIExtractor{
		client:    openai.NewClient(opts...),
		models:    cfg.Models,
		maxTokens: cfg.MaxTokens,
		timeout:   timeout,
	}, nil
}

// Extract 调用模型提取题目，单次调用，超时即失败
func (e *OpenAIExtractor) Extract(ctx context.Context, req *Request) ([]ParsedQuestion, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	userMessage, err := e.buildUserMessage(req)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.modelFor(req.Speed)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			userMessage,
		},
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}
	if e.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(e.maxTokens))
	}

	completion, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("extraction API call failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, ErrInvalidResponse
	}

	return DecodeQuestions(completion.Choices[0].Message.Content)
}

// modelFor 按 speed 提示选择模型
func (e *OpenAIExtractor) modelFor(speed string) string {
	if m, ok := e.models[speed]; ok && m != "" {
		return m
	}
	if m, ok := e.models["balanced"]; ok && m != "" {
		return m
	}
	return DefaultModel
}

// buildUserMessage 图片走 vision，文本内容直接内联
// 非图片的二进制内容（扫描 PDF 等）只有开启 Vision 时才按附件交给模型，
// 否则返回 ErrUnsupportedContent 由任务以失败收尾
func (e *OpenAIExtractor) buildUserMessage(req *Request) (openai.ChatCompletionMessageParamUnion, error) {
	if isImageMime(req.MimeType) {
		return visionMessage(req), nil
	}

	if utf8.Valid(req.Content) {
		text := strings.TrimSpace(string(req.Content))
		if text != "" {
			return openai.UserMessage(text), nil
		}
	}

	if req.UseVision {
		return visionMessage(req), nil
	}

	return openai.ChatCompletionMessageParamUnion{}, ErrUnsupportedContent
}

// visionMessage 按声明的 MIME 把内容内联为 base64 附件
func visionMessage(req *Request) openai.ChatCompletionMessageParamUnion {
	dataURL := fmt.Sprintf("data:%s;base64,%s", req.MimeType, base64.StdEncoding.EncodeToString(req.Content))
	return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart("请提取这份试卷中的所有数学题目。"),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	})
}

func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

var _ Extractor = (*OpenAIExtractor)(nil)
