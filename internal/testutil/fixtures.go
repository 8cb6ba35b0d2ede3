package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/exam_go_server/internal/model"
)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	user := &model.User{
		Username:          fmt.Sprintf("testuser_%d", time.Now().UnixNano()%100000),
		Email:             fmt.Sprintf("test_%d@example.com", time.Now().UnixNano()),
		PasswordHash:      "$2a$10$abcdefghijklmnopqrstuvwxyz123456", // bcrypt hash placeholder
		SubscriptionLevel: "free",
		DailyQuota:        5,
		QuotaUsedToday:    0,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithSubscription 设置订阅级别
func WithSubscription(level string, quota int) func(*model.User) {
	return func(u *model.User) {
		u.SubscriptionLevel = level
		u.DailyQuota = quota
	}
}

// WithQuotaUsed 设置已使用配额
func WithQuotaUsed(used int) func(*model.User) {
	return func(u *model.User) {
		u.QuotaUsedToday = used
	}
}

// TestExam 创建测试解析任务
func TestExam(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Exam)) *model.Exam {
	t.Helper()

	exam := &model.Exam{
		UserID:   userID,
		Filename: fmt.Sprintf("exam_%d.pdf", time.Now().UnixNano()%100000),
		MimeType: "application/pdf",
		Speed:    "balanced",
		Status:   model.StatusPending,
	}

	for _, opt := range opts {
		opt(exam)
	}

	if err := db.Create(exam).Error; err != nil {
		t.Fatalf("Failed to create test exam: %v", err)
	}

	return exam
}

// WithStatus 设置任务状态
func WithStatus(status string) func(*model.Exam) {
	return func(e *model.Exam) {
		e.Status = status
	}
}

// WithFilePath 设置文件路径
func WithFilePath(path string) func(*model.Exam) {
	return func(e *model.Exam) {
		e.FilePath = path
	}
}

// WithFileHash 设置内容哈希
func WithFileHash(hash string) func(*model.Exam) {
	return func(e *model.Exam) {
		e.FileHash = hash
	}
}

// WithResult 设置为已完成并带结果
func WithResult(resultJSON string) func(*model.Exam) {
	return func(e *model.Exam) {
		now := time.Now()
		e.Status = model.StatusCompleted
		e.Progress = 100
		e.ResultJSON = resultJSON
		e.StartedAt = &now
		e.CompletedAt = &now
	}
}

// WithError 设置为失败并带错误信息
func WithError(message string) func(*model.Exam) {
	return func(e *model.Exam) {
		now := time.Now()
		e.Status = model.StatusFailed
		e.ErrorMessage = message
		e.StartedAt = &now
		e.CompletedAt = &now
	}
}

// TestQuestion 创建测试题目
func TestQuestion(t *testing.T, db *gorm.DB, userID, examID int64, text string) *model.Question {
	t.Helper()

	question := &model.Question{
		ExamID:       examID,
		UserID:       userID,
		QuestionText: text,
		ContentHash:  model.QuestionHash(text),
		QuestionType: model.TypeMultipleChoice,
	}

	if err := db.Create(question).Error; err != nil {
		t.Fatalf("Failed to create test question: %v", err)
	}

	return question
}
