package service

import (
	"errors"
	"time"

	"github.com/qs3c/exam_go_server/config"
	"github.com/qs3c/exam_go_server/internal/repository"
)

var ErrQuotaExceeded = errors.New("今日解析配额已用完，请明天再试或升级订阅")

type QuotaService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
}

func NewQuotaService(userRepo *repository.UserRepository, cfg *config.Config) *QuotaService {
	return &QuotaService{
		userRepo: userRepo,
		cfg:      cfg,
	}
}

// CheckQuota 检查用户今日是否还有解析配额
func (s *QuotaService) CheckQuota(userID int64) (bool, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return false, err
	}
	return user.QuotaUsedToday < user.DailyQuota, nil
}

// UseQuota 扣除一次配额
func (s *QuotaService) UseQuota(userID int64) error {
	return s.userRepo.IncrementQuotaUsed(userID, 1)
}

// RefundQuota 退还一次配额（任务失败时调用）
func (s *QuotaService) RefundQuota(userID int64) error {
	return s.userRepo.IncrementQuotaUsed(userID, -1)
}

// DailyQuotaFor 订阅级别对应的每日配额
func (s *QuotaService) DailyQuotaFor(level string) int {
	if l, ok := s.cfg.Subscription.Levels[level]; ok {
		return l.DailyQuota
	}
	return 5
}

// ResetAllQuotas 重置所有用户的每日配额
func (s *QuotaService) ResetAllQuotas() error {
	nextReset := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	return s.userRepo.ResetAllQuotas(nextReset)
}
