package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/exam_go_server/internal/model"
)

type ExamRepository struct {
	db *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

func (r *ExamRepository) Create(exam *model.Exam) error {
	return r.db.Create(exam).Error
}

func (r *ExamRepository) GetByID(id int64) (*model.Exam, error) {
	var exam model.Exam
	err := r.db.Where("id = ?", id).First(&exam).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

// GetByIDForUser 按归属读取，未知 ID 和他人的 ID 同样返回 ErrRecordNotFound
func (r *ExamRepository) GetByIDForUser(id, userID int64) (*model.Exam, error) {
	var exam model.Exam
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&exam).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) Update(exam *model.Exam) error {
	return r.db.Save(exam).Error
}

func (r *ExamRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Exam{}).Where("id = ?", id).Updates(fields).Error
}

func (r *ExamRepository) Delete(id int64) error {
	return r.db.Delete(&model.Exam{}, id).Error
}

// ListByUserID 获取用户的解析历史
func (r *ExamRepository) ListByUserID(userID int64, page, pageSize int) ([]*model.Exam, int64, error) {
	var exams []*model.Exam
	var total int64

	query := r.db.Model(&model.Exam{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&exams).Error; err != nil {
		return nil, 0, err
	}

	return exams, total, nil
}

// FindCachedResult 查找同一用户、相同内容哈希、已完成的最近一次解析结果
func (r *ExamRepository) FindCachedResult(userID int64, fileHash string, excludeID int64) (string, error) {
	var exam model.Exam
	err := r.db.Where(
		"user_id = ? AND file_hash = ? AND status = ? AND result_json <> '' AND id <> ?",
		userID, fileHash, model.StatusCompleted, excludeID,
	).Order("created_at DESC").First(&exam).Error
	if err != nil {
		return "", err
	}
	return exam.ResultJSON, nil
}

// FailStaleProcessing 将卡在 processing 超过时限的任务置为失败，返回被处理的任务
// worker 崩溃后兜底，保证每个任务最终到达终态；调用方负责退配额和通知
func (r *ExamRepository) FailStaleProcessing(olderThan time.Time, message string) ([]*model.Exam, error) {
	var exams []*model.Exam
	err := r.db.Where("status = ? AND started_at < ?", model.StatusProcessing, olderThan).
		Find(&exams).Error
	if err != nil {
		return nil, err
	}
	if len(exams) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(exams))
	for i, e := range exams {
		ids[i] = e.ID
	}

	err = r.db.Model(&model.Exam{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":        model.StatusFailed,
			"error_message": message,
		}).Error
	return exams, err
}

// ListExpiredLocalFiles 列出超过保留期的本地文件路径
func (r *ExamRepository) ListExpiredLocalFiles(olderThan time.Time) ([]string, error) {
	var paths []string
	err := r.db.Model(&model.Exam{}).
		Where("created_at < ? AND file_path <> '' AND file_path NOT LIKE 'oss://%'", olderThan).
		Pluck("file_path", &paths).Error
	return paths, err
}
