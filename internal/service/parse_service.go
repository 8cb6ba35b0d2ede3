package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/exam_go_server/config"
	"github.com/qs3c/exam_go_server/internal/model"
	"github.com/qs3c/exam_go_server/internal/model/dto"
	"github.com/qs3c/exam_go_server/internal/pkg/oss"
	"github.com/qs3c/exam_go_server/internal/pkg/queue"
	"github.com/qs3c/exam_go_server/internal/repository"
)

var (
	ErrExamNotFound    = errors.New("任务不存在")
	ErrEmptyFile       = errors.New("文件为空")
	ErrFileTooLarge    = errors.New("文件过大")
	ErrUnsupportedType = errors.New("不支持的文件类型")
)

// SubmitRequest 一次上传
type SubmitRequest struct {
	Filename  string
	Content   []byte
	Speed     string // fast, balanced, quality
	UseVision bool
}

type ParseService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	quotaService *QuotaService
	ossClient    *oss.Client
	jobQueue     *queue.Queue
	cfg          *config.Config
}

func NewParseService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	quotaService *QuotaService,
	ossClient *oss.Client,
	jobQueue *queue.Queue,
	cfg *config.Config,
) *ParseService {
	return &ParseService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		quotaService: quotaService,
		ossClient:    ossClient,
		jobQueue:     jobQueue,
		cfg:          cfg,
	}
}

// Submit 校验上传、落库并入队，不等待解析执行
// 校验失败直接返回错误，不会创建任务记录
func (s *ParseService) Submit(ctx context.Context, userID int64, req *SubmitRequest) (*dto.ParseResponse, error) {
	if len(req.Content) == 0 {
		return nil, ErrEmptyFile
	}
	if s.cfg.Upload.MaxSize > 0 && int64(len(req.Content)) > s.cfg.Upload.MaxSize {
		return nil, fmt.Errorf("%w：最大支持 %dMB", ErrFileTooLarge, s.cfg.Upload.MaxSize/(1024*1024))
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !s.extAllowed(ext) {
		return nil, fmt.Errorf("%w：%s", ErrUnsupportedType, ext)
	}

	speed := req.Speed
	switch speed {
	case "fast", "balanced", "quality":
	case "":
		speed = "balanced"
	default:
		return nil, fmt.Errorf("%w：无效的 speed 参数", ErrUnsupportedType)
	}

	hasQuota, err := s.quotaService.CheckQuota(userID)
	if err != nil {
		return nil, err
	}
	if !hasQuota {
		return nil, ErrQuotaExceeded
	}

	sum := md5.Sum(req.Content)
	fileHash := hex.EncodeToString(sum[:])

	filePath, err := s.storeFile(userID, ext, req.Content)
	if err != nil {
		return nil, err
	}

	if err := s.quotaService.UseQuota(userID); err != nil {
		s.removeFile(filePath)
		return nil, err
	}

	exam := &model.Exam{
		UserID:    userID,
		Filename:  req.Filename,
		FilePath:  filePath,
		FileHash:  fileHash,
		MimeType:  mimeFromExt(ext),
		Speed:     speed,
		UseVision: req.UseVision,
		Status:    model.StatusPending,
	}

	if err := s.examRepo.Create(exam); err != nil {
		s.quotaService.RefundQuota(userID)
		s.removeFile(filePath)
		return nil, err
	}

	msg := &queue.JobMessage{
		ExamID:    exam.ID,
		UserID:    userID,
		FilePath:  filePath,
		FileHash:  fileHash,
		MimeType:  exam.MimeType,
		Filename:  req.Filename,
		Speed:     speed,
		UseVision: req.UseVision,
	}
	if err := s.jobQueue.Push(ctx, msg); err != nil {
		// 入队失败的任务永远不会被执行，直接置为失败并退还配额
		s.examRepo.UpdateFields(exam.ID, map[string]interface{}{
			"status":        model.StatusFailed,
			"error_message": "任务入队失败",
		})
		s.quotaService.RefundQuota(userID)
		return nil, err
	}

	return &dto.ParseResponse{
		JobID:  exam.ID,
		Status: model.StatusPending,
	}, nil
}

// GetStatus 返回任务当前快照，未知或他人的任务返回 ErrExamNotFound
func (s *ParseService) GetStatus(userID, examID int64) (*dto.JobStatusResponse, error) {
	exam, err := s.examRepo.GetByIDForUser(examID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}

	resp := &dto.JobStatusResponse{
		JobID:        exam.ID,
		Status:       exam.Status,
		Progress:     exam.Progress,
		Message:      exam.CurrentStep,
		ErrorMessage: exam.ErrorMessage,
		CreatedAt:    exam.CreatedAt.Format(time.RFC3339),
	}

	if exam.Status == model.StatusCompleted {
		resp.ResultJSON = exam.ResultJSON
	}
	if exam.StartedAt != nil {
		resp.StartedAt = exam.StartedAt.Format(time.RFC3339)
	}
	if exam.CompletedAt != nil {
		resp.CompletedAt = exam.CompletedAt.Format(time.RFC3339)
		resp.ElapsedSeconds = exam.ElapsedSeconds
	}

	return resp, nil
}

// History 获取解析历史
func (s *ParseService) History(userID int64, page, pageSize int) ([]*dto.ExamListItem, int64, error) {
	exams, total, err := s.examRepo.ListByUserID(userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.ExamListItem, len(exams))
	for i, e := range exams {
		items[i] = &dto.ExamListItem{
			ID:           e.ID,
			Filename:     e.Filename,
			Status:       e.Status,
			Progress:     e.Progress,
			ErrorMessage: e.ErrorMessage,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		}
	}

	return items, total, nil
}

// Delete 删除任务及其文件和题库记录
// 不中断正在执行的任务，worker 对已删除任务的写入会落空
func (s *ParseService) Delete(userID, examID int64) error {
	exam, err := s.examRepo.GetByIDForUser(examID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExamNotFound
		}
		return err
	}

	s.removeFile(exam.FilePath)

	if err := s.questionRepo.DeleteByExamID(examID); err != nil {
		return err
	}

	return s.examRepo.Delete(examID)
}

func (s *ParseService) extAllowed(ext string) bool {
	for _, allowed := range s.cfg.Upload.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// storeFile OSS 配置可用时存 OSS，否则存本地目录
func (s *ParseService) storeFile(userID int64, ext string, content []byte) (string, error) {
	fileID := uuid.NewString()[:8]

	if s.ossClient != nil {
		return s.ossClient.UploadExamFile(userID, fileID, ext, content)
	}

	dir := s.cfg.Upload.Dir
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s%s", userID, fileID, ext))
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return path, nil
}

func (s *ParseService) removeFile(path string) {
	if path == "" {
		return
	}
	if oss.IsObjectPath(path) {
		if s.ossClient != nil {
			if err := s.ossClient.Delete(path); err != nil {
				log.Printf("Failed to delete OSS object %s: %v", path, err)
			}
		}
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to delete file %s: %v", path, err)
	}
}

// mimeFromExt 按扩展名映射 MIME，文本抽取不在本服务范围内，不做内容嗅探
func mimeFromExt(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
