package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/exam_go_server/internal/model"
)

type QuestionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

func (r *QuestionRepository) CreateBatch(questions []*model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return r.db.Create(&questions).Error
}

func (r *QuestionRepository) ListByExamID(examID int64) ([]*model.Question, error) {
	var questions []*model.Question
	err := r.db.Where("exam_id = ?", examID).
		Order("question_order ASC").
		Find(&questions).Error
	return questions, err
}

// DeleteByExamID 删除某次解析产生的全部题目（重新解析时先清旧数据）
func (r *QuestionRepository) DeleteByExamID(examID int64) error {
	return r.db.Where("exam_id = ?", examID).Delete(&model.Question{}).Error
}

// ExistingHashes 查询用户题库中已存在的内容哈希，用于去重
func (r *QuestionRepository) ExistingHashes(userID int64, hashes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(hashes) == 0 {
		return existing, nil
	}

	var found []string
	err := r.db.Model(&model.Question{}).
		Where("user_id = ? AND content_hash IN ?", userID, hashes).
		Pluck("content_hash", &found).Error
	if err != nil {
		return nil, err
	}

	for _, h := range found {
		existing[h] = struct{}{}
	}
	return existing, nil
}

func (r *QuestionRepository) CountByUserID(userID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.Question{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
