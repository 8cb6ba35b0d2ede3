package model

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// 题目类型（闭集，提取边界做校验归一）
const (
	TypeMultipleChoice = "multiple_choice"
	TypeEssay          = "essay"
	TypeCalculation    = "calculation"
	TypeFillBlank      = "fill_blank"
	TypeTrueFalse      = "true_false"
)

// 难度等级（越南高考四级分类）
const (
	DifficultyNB  = "NB"  // 认知
	DifficultyTH  = "TH"  // 理解
	DifficultyVD  = "VD"  // 运用
	DifficultyVDC = "VDC" // 高阶运用
)

// Question 题库中的一道题，来源于一次成功解析
type Question struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	ExamID        int64     `gorm:"not null;index" json:"exam_id"`
	UserID        int64     `gorm:"not null;index:idx_question_user_hash" json:"user_id"`
	QuestionText  string    `gorm:"type:text;not null" json:"question_text"` // LaTeX
	ContentHash   string    `gorm:"size:32;index:idx_question_user_hash" json:"-"`
	QuestionType  string    `gorm:"size:50" json:"question_type,omitempty"`
	Topic         string    `gorm:"size:100" json:"topic,omitempty"`
	Difficulty    string    `gorm:"size:20" json:"difficulty,omitempty"`
	Answer        string    `gorm:"type:text" json:"answer,omitempty"`
	SolutionSteps string    `gorm:"type:text" json:"solution_steps,omitempty"` // JSON 数组字符串
	QuestionOrder int       `gorm:"default:0" json:"question_order"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Question) TableName() string {
	return "questions"
}

// ValidQuestionType 类型是否在闭集内
func ValidQuestionType(t string) bool {
	switch t {
	case TypeMultipleChoice, TypeEssay, TypeCalculation, TypeFillBlank, TypeTrueFalse:
		return true
	}
	return false
}

// ValidDifficulty 难度是否在闭集内
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyNB, DifficultyTH, DifficultyVD, DifficultyVDC:
		return true
	}
	return false
}

// QuestionHash 题目内容指纹，用于同一用户的题目去重
// 归一化：去首尾空白、压缩连续空白、小写
func QuestionHash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
