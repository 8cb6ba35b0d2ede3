package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/exam_go_server/internal/model"
	"github.com/qs3c/exam_go_server/internal/pkg/extractor"
	"github.com/qs3c/exam_go_server/internal/pkg/oss"
	"github.com/qs3c/exam_go_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_go_server/internal/pkg/queue"
	"github.com/qs3c/exam_go_server/internal/repository"
	"github.com/qs3c/exam_go_server/internal/service"
)

// Processor 任务处理器，驱动单个任务从 processing 到终态
// 每个任务恰好发布一条终态消息（complete 或 error_event）
type Processor struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	quotaService *service.QuotaService
	ossClient    *oss.Client
	publisher    *pubsub.Publisher
	extractor    extractor.Extractor
}

// NewProcessor 创建任务处理器
func NewProcessor(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	quotaService *service.QuotaService,
	ossClient *oss.Client,
	publisher *pubsub.Publisher,
	ext extractor.Extractor,
) *Processor {
	return &Processor{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		quotaService: quotaService,
		ossClient:    ossClient,
		publisher:    publisher,
		extractor:    ext,
	}
}

// Process 处理一个解析任务
func (p *Processor) Process(ctx context.Context, msg *queue.JobMessage) error {
	exam, err := p.examRepo.GetByID(msg.ExamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 任务在执行前被用户删除，直接丢弃
			log.Printf("Exam %d: deleted before processing, skipping", msg.ExamID)
			return nil
		}
		return fmt.Errorf("failed to get exam: %w", err)
	}

	// 同一任务只允许一次执行
	if exam.Status != model.StatusPending {
		log.Printf("Exam %d: status is %s, skipping duplicate execution", exam.ID, exam.Status)
		return nil
	}

	// 更新状态为处理中
	now := time.Now()
	exam.Status = model.StatusProcessing
	exam.StartedAt = &now
	exam.Progress = pubsub.StepProgress[pubsub.StepStarting]
	exam.CurrentStep = pubsub.StepMessages[pubsub.StepStarting]
	p.examRepo.Update(exam)

	// 定义进度推送辅助函数
	publishProgress := func(step string) {
		exam.Progress = pubsub.StepProgress[step]
		exam.CurrentStep = pubsub.StepMessages[step]
		p.examRepo.UpdateFields(exam.ID, map[string]interface{}{
			"progress":     exam.Progress,
			"current_step": exam.CurrentStep,
		})
		p.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
			Event:  pubsub.EventProgress,
			ExamID: exam.ID,
			UserID: exam.UserID,
			Status: model.StatusProcessing,
			Step:   step,
		})
	}

	// 定义失败处理函数，终态消息只会从这里或成功分支发出一次
	handleError := func(err error) error {
		errMsg := err.Error()
		completedAt := time.Now()
		exam.Status = model.StatusFailed
		exam.ResultJSON = "" // 失败的任务不保留结果载荷
		exam.ErrorMessage = errMsg
		exam.CompletedAt = &completedAt
		exam.ElapsedSeconds = int(completedAt.Sub(*exam.StartedAt).Seconds())
		p.examRepo.Update(exam)

		// 失败的任务退还配额
		if refundErr := p.quotaService.RefundQuota(exam.UserID); refundErr != nil {
			log.Printf("Exam %d: failed to refund quota: %v", exam.ID, refundErr)
		}

		p.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
			Event:    pubsub.EventError,
			ExamID:   exam.ID,
			UserID:   exam.UserID,
			Status:   model.StatusFailed,
			Progress: exam.Progress,
			Error:    errMsg,
			Message:  errMsg,
		})
		return err
	}

	publishProgress(pubsub.StepStarting)

	// Step 1: 读取文件内容
	log.Printf("Exam %d: reading file %s", exam.ID, exam.FilePath)
	publishProgress(pubsub.StepReading)

	content, err := p.loadFile(exam.FilePath)
	if err != nil {
		return handleError(fmt.Errorf("上传文件不存在或已过期: %w", err))
	}

	// Step 2: 缓存检查，同一用户相同文件直接复用历史结果
	var questions []extractor.ParsedQuestion
	if exam.FileHash != "" {
		if cached, err := p.examRepo.FindCachedResult(exam.UserID, exam.FileHash, exam.ID); err == nil && cached != "" {
			if err := json.Unmarshal([]byte(cached), &questions); err != nil {
				questions = nil // 缓存损坏，走正常提取
			} else {
				log.Printf("Exam %d: cache hit (hash=%s), reusing %d questions", exam.ID, exam.FileHash[:8], len(questions))
			}
		}
	}

	// Step 3: AI 提取，至多调用一次，失败即终态
	if questions == nil {
		log.Printf("Exam %d: extracting with speed=%s vision=%v", exam.ID, exam.Speed, exam.UseVision)
		publishProgress(pubsub.StepExtracting)

		questions, err = p.extractor.Extract(ctx, &extractor.Request{
			Content:   content,
			MimeType:  exam.MimeType,
			Filename:  exam.Filename,
			Speed:     exam.Speed,
			UseVision: exam.UseVision,
		})
		if err != nil {
			return handleError(err)
		}
	}

	// Step 4: 保存结果
	log.Printf("Exam %d: saving %d questions", exam.ID, len(questions))
	publishProgress(pubsub.StepSaving)

	resultJSON, err := json.Marshal(questions)
	if err != nil {
		return handleError(fmt.Errorf("结果序列化失败: %w", err))
	}

	completedAt := time.Now()
	exam.Status = model.StatusCompleted
	exam.ResultJSON = string(resultJSON)
	exam.Progress = pubsub.StepProgress[pubsub.StepDone]
	exam.CurrentStep = pubsub.StepMessages[pubsub.StepDone]
	exam.CompletedAt = &completedAt
	exam.ElapsedSeconds = int(completedAt.Sub(*exam.StartedAt).Seconds())
	if err := p.examRepo.Update(exam); err != nil {
		return handleError(fmt.Errorf("结果保存失败: %w", err))
	}

	// Step 5: 拆分进题库，失败只记日志，不影响任务终态
	if err := p.saveQuestionsToBank(exam, questions); err != nil {
		log.Printf("Exam %d: failed to save questions to bank: %v", exam.ID, err)
	}

	// 推送完成消息
	p.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
		Event:      pubsub.EventComplete,
		ExamID:     exam.ID,
		UserID:     exam.UserID,
		Status:     model.StatusCompleted,
		Progress:   pubsub.StepProgress[pubsub.StepDone],
		Message:    fmt.Sprintf("解析完成，共 %d 道题", len(questions)),
		ResultJSON: string(resultJSON),
	})

	log.Printf("Exam %d: completed in %d seconds, %d questions", exam.ID, exam.ElapsedSeconds, len(questions))

	return nil
}

// loadFile 按存储位置读取文件内容
func (p *Processor) loadFile(path string) ([]byte, error) {
	if oss.IsObjectPath(path) {
		if p.ossClient == nil {
			return nil, fmt.Errorf("OSS not configured for path %s", path)
		}
		return p.ossClient.Download(path)
	}
	return os.ReadFile(path)
}

// saveQuestionsToBank 将解析结果拆分为题库记录
// 重新解析会先删除该试卷的旧题目；同一用户按内容哈希去重
func (p *Processor) saveQuestionsToBank(exam *model.Exam, questions []extractor.ParsedQuestion) error {
	if err := p.questionRepo.DeleteByExamID(exam.ID); err != nil {
		return err
	}

	type hashed struct {
		order int
		q     extractor.ParsedQuestion
		hash  string
	}

	candidates := make([]hashed, 0, len(questions))
	hashes := make([]string, 0, len(questions))
	for i, q := range questions {
		if q.Question == "" {
			continue
		}
		h := model.QuestionHash(q.Question)
		candidates = append(candidates, hashed{order: i + 1, q: q, hash: h})
		hashes = append(hashes, h)
	}

	existing, err := p.questionRepo.ExistingHashes(exam.UserID, hashes)
	if err != nil {
		return err
	}

	rows := make([]*model.Question, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		if _, dup := existing[c.hash]; dup {
			skipped++
			continue
		}
		existing[c.hash] = struct{}{} // 批内去重

		steps := "[]"
		if len(c.q.SolutionSteps) > 0 {
			if data, err := json.Marshal(c.q.SolutionSteps); err == nil {
				steps = string(data)
			}
		}

		rows = append(rows, &model.Question{
			ExamID:        exam.ID,
			UserID:        exam.UserID,
			QuestionText:  c.q.Question,
			ContentHash:   c.hash,
			QuestionType:  c.q.Type,
			Topic:         c.q.Topic,
			Difficulty:    c.q.Difficulty,
			Answer:        c.q.Answer,
			SolutionSteps: steps,
			QuestionOrder: c.order,
		})
	}

	if err := p.questionRepo.CreateBatch(rows); err != nil {
		return err
	}

	if skipped > 0 {
		log.Printf("Exam %d: saved %d questions, skipped %d duplicates", exam.ID, len(rows), skipped)
	} else {
		log.Printf("Exam %d: saved %d questions to bank", exam.ID, len(rows))
	}
	return nil
}
