package cron

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/qs3c/exam_go_server/internal/model"
	"github.com/qs3c/exam_go_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_go_server/internal/repository"
	"github.com/qs3c/exam_go_server/internal/service"
)

// StaleJobMessage 僵死任务的失败原因
const StaleJobMessage = "任务处理超时，已自动终止"

type Service struct {
	quotaService    *service.QuotaService
	examRepo        *repository.ExamRepository
	publisher       *pubsub.Publisher
	uploadDir       string
	expireHours     int
	staleJobMinutes int
	stopChan        chan struct{}
}

func NewService(
	quotaService *service.QuotaService,
	examRepo *repository.ExamRepository,
	publisher *pubsub.Publisher,
	uploadDir string,
	expireHours int,
	staleJobMinutes int,
) *Service {
	return &Service{
		quotaService:    quotaService,
		examRepo:        examRepo,
		publisher:       publisher,
		uploadDir:       uploadDir,
		expireHours:     expireHours,
		staleJobMinutes: staleJobMinutes,
		stopChan:        make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runDailyQuotaReset()
	go s.runCleanup()
	go s.runStaleJobReaper()
	log.Println("Cron service started (quota reset + upload cleanup + stale job reaper)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runDailyQuotaReset 每日配额重置任务
func (s *Service) runDailyQuotaReset() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.resetDailyQuotas()
			timer.Reset(24 * time.Hour)
		}
	}
}

// resetDailyQuotas 重置所有用户的每日配额
func (s *Service) resetDailyQuotas() {
	log.Println("Starting daily quota reset...")
	if err := s.quotaService.ResetAllQuotas(); err != nil {
		log.Printf("Failed to reset daily quotas: %v", err)
		return
	}
	log.Println("Daily quota reset completed")
}

// runCleanup 每小时清理一次过期的本地上传文件
func (s *Service) runCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanupExpiredUploads()
		}
	}
}

// cleanupExpiredUploads 清理超过保留期的本地上传文件
// OSS 上的文件走 bucket 生命周期规则，这里只处理本地文件
func (s *Service) cleanupExpiredUploads() {
	expireHours := s.expireHours
	if expireHours <= 0 {
		expireHours = 24
	}

	olderThan := time.Now().Add(-time.Duration(expireHours) * time.Hour)
	paths, err := s.examRepo.ListExpiredLocalFiles(olderThan)
	if err != nil {
		log.Printf("Cleanup uploads: failed to query expired files: %v", err)
		return
	}

	cleaned := 0
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				log.Printf("Cleanup uploads: failed to remove %s: %v", path, err)
			}
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		log.Printf("Cleanup uploads: removed %d expired files", cleaned)
	}
}

// runStaleJobReaper 定期将卡死的 processing 任务置为失败
// worker 崩溃后任务会停留在 processing，靠这里兜底到达终态
func (s *Service) runStaleJobReaper() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.reapStaleJobs()
		}
	}
}

func (s *Service) reapStaleJobs() {
	staleMinutes := s.staleJobMinutes
	if staleMinutes <= 0 {
		staleMinutes = 30
	}

	olderThan := time.Now().Add(-time.Duration(staleMinutes) * time.Minute)
	exams, err := s.examRepo.FailStaleProcessing(olderThan, StaleJobMessage)
	if err != nil {
		log.Printf("Stale job reaper: failed to update: %v", err)
		return
	}

	// 失败任务退配额；推送终态，让还挂在事件流上的订阅者立即收尾
	for _, exam := range exams {
		if err := s.quotaService.RefundQuota(exam.UserID); err != nil {
			log.Printf("Stale job reaper: failed to refund quota for exam %d: %v", exam.ID, err)
		}
		if s.publisher != nil {
			s.publisher.PublishProgress(context.Background(), &pubsub.ProgressMessage{
				Event:    pubsub.EventError,
				ExamID:   exam.ID,
				UserID:   exam.UserID,
				Status:   model.StatusFailed,
				Progress: exam.Progress,
				Error:    StaleJobMessage,
				Message:  StaleJobMessage,
			})
		}
	}

	if len(exams) > 0 {
		log.Printf("Stale job reaper: marked %d stale jobs as failed", len(exams))
	}
}

// RunNow 立即执行配额重置（用于测试或手动触发）
func (s *Service) RunNow() error {
	log.Println("Manual quota reset triggered...")
	return s.quotaService.ResetAllQuotas()
}
