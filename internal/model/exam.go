package model

import (
	"time"
)

// 解析任务状态，单向流转：pending -> processing -> completed | failed
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Exam 一次上传对应一个解析任务
type Exam struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	UserID         int64      `gorm:"not null;index" json:"user_id"`
	Filename       string     `gorm:"size:255;not null" json:"filename"`
	FilePath       string     `gorm:"size:500" json:"-"`
	FileHash       string     `gorm:"size:32;index" json:"-"` // 内容 MD5，用于解析结果缓存
	MimeType       string     `gorm:"size:100" json:"-"`
	Speed          string     `gorm:"size:20;default:balanced" json:"speed"` // fast, balanced, quality
	UseVision      bool       `gorm:"default:false" json:"use_vision"`
	Status         string     `gorm:"size:20;default:pending;index" json:"status"`
	Progress       int        `gorm:"default:0" json:"progress"`
	CurrentStep    string     `gorm:"size:200" json:"current_step,omitempty"`
	ResultJSON     string     `gorm:"type:longtext" json:"result_json,omitempty"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ElapsedSeconds int        `json:"elapsed_seconds,omitempty"`

	// 关联
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

// IsTerminal 是否已到达终态
func (e *Exam) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}
