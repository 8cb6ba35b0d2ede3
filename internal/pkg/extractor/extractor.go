package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/qs3c/exam_go_server/internal/model"
)

var (
	ErrNoQuestions        = errors.New("AI 未能从文件中识别出任何题目")
	ErrUnsupportedContent = errors.New("文件内容无法识别，请尝试开启 Vision 模式")
	ErrInvalidResponse    = errors.New("AI 返回格式无效")
)

// Request 一次提取调用的输入
type Request struct {
	Content   []byte
	MimeType  string
	Filename  string
	Speed     string // fast, balanced, quality
	UseVision bool
}

// ParsedQuestion 提取出的单道题目
// JSON 键与历史结果格式保持一致
type ParsedQuestion struct {
	Question      string   `json:"question"`
	Type          string   `json:"type,omitempty"`
	Topic         string   `json:"topic,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Answer        string   `json:"answer,omitempty"`
	SolutionSteps []string `json:"solution_steps,omitempty"`
}

// Extractor 提取服务边界，每个任务至多调用一次
type Extractor interface {
	Extract(ctx context.Context, req *Request) ([]ParsedQuestion, error)
}

// 历史数据中出现过的类型别名
var typeAliases = map[string]string{
	"TN":           model.TypeMultipleChoice,
	"TL":           model.TypeEssay,
	"DS":           model.TypeTrueFalse,
	"choice":       model.TypeMultipleChoice,
	"true/false":   model.TypeTrueFalse,
	"fill-in":      model.TypeFillBlank,
	"fill_in":      model.TypeFillBlank,
	"short_answer": model.TypeEssay,
}

// NormalizeQuestion 在提取边界校验并归一化枚举字段
// 未知的类型/难度归一为空串，而不是让整次解析失败
func NormalizeQuestion(q *ParsedQuestion) {
	q.Question = strings.TrimSpace(q.Question)

	t := strings.TrimSpace(q.Type)
	if !model.ValidQuestionType(t) {
		if alias, ok := typeAliases[t]; ok {
			t = alias
		} else if alias, ok := typeAliases[strings.ToUpper(t)]; ok {
			t = alias
		} else if model.ValidQuestionType(strings.ToLower(t)) {
			t = strings.ToLower(t)
		} else {
			t = ""
		}
	}
	q.Type = t

	d := strings.ToUpper(strings.TrimSpace(q.Difficulty))
	if !model.ValidDifficulty(d) {
		d = ""
	}
	q.Difficulty = d

	q.Topic = strings.TrimSpace(q.Topic)
	q.Answer = strings.TrimSpace(q.Answer)
}

// DecodeQuestions 解析模型返回的 JSON，兼容 {"questions": [...]} 和顶层数组两种形式
func DecodeQuestions(raw string) ([]ParsedQuestion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidResponse
	}

	var wrapper struct {
		Questions []ParsedQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil && wrapper.Questions != nil {
		return sanitize(wrapper.Questions)
	}

	var list []ParsedQuestion
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return sanitize(list)
	}

	return nil, ErrInvalidResponse
}

// sanitize 归一化并剔除空题
func sanitize(questions []ParsedQuestion) ([]ParsedQuestion, error) {
	result := make([]ParsedQuestion, 0, len(questions))
	for _, q := range questions {
		NormalizeQuestion(&q)
		if q.Question == "" {
			continue
		}
		result = append(result, q)
	}
	if len(result) == 0 {
		return nil, ErrNoQuestions
	}
	return result, nil
}
