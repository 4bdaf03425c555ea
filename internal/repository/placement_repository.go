package repository

import (
	"errors"
	"lingo_edu_backend/internal/model"

	"gorm.io/gorm"
)

type PlacementRepository struct {
	DB *gorm.DB
}

func NewPlacementRepository(db *gorm.DB) *PlacementRepository {
	return &PlacementRepository{DB: db}
}

func (r *PlacementRepository) CreateAssessment(a *model.Assessment) error {
	return r.DB.Create(a).Error
}

func (r *PlacementRepository) FindAssessmentByID(id string) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.Where("id = ?", id).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PlacementRepository) ListAssessmentsByUser(userID uint) ([]model.Assessment, error) {
	var as []model.Assessment
	err := r.DB.Where("user_id = ?", userID).Order("created_at desc").Find(&as).Error
	return as, err
}

// ListFinishedAssessments 教师端：分页列出已完成的测试
func (r *PlacementRepository) ListFinishedAssessments(page, limit int) ([]model.Assessment, int64, error) {
	var as []model.Assessment
	var total int64
	query := r.DB.Model(&model.Assessment{}).Where("final_score IS NOT NULL")
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("updated_at desc").Offset(offset).Limit(limit).Find(&as).Error
	return as, total, err
}

// CountAnswered 已作答题数
func (r *PlacementRepository) CountAnswered(assessmentID string) (int, error) {
	var count int64
	err := r.DB.Model(&model.AssessmentItem{}).
		Where("assessment_id = ? AND user_answer IS NOT NULL", assessmentID).
		Count(&count).Error
	return int(count), err
}

// FindLastItem 取序号最大的一题；无题时返回 (nil, nil)
func (r *PlacementRepository) FindLastItem(assessmentID string) (*model.AssessmentItem, error) {
	var item model.AssessmentItem
	err := r.DB.Where("assessment_id = ?", assessmentID).Order("id desc").First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *PlacementRepository) ListItems(assessmentID string) ([]model.AssessmentItem, error) {
	var items []model.AssessmentItem
	err := r.DB.Where("assessment_id = ?", assessmentID).Order("id asc").Find(&items).Error
	return items, err
}

func (r *PlacementRepository) CreateItem(item *model.AssessmentItem) error {
	return r.DB.Create(item).Error
}

// RecordAnswer 条件更新：仅当该题仍未作答时写入答案。
// 返回 false 表示该题已被其他请求抢先作答。
func (r *PlacementRepository) RecordAnswer(itemID uint, answer string, correct bool) (bool, error) {
	res := r.DB.Model(&model.AssessmentItem{}).
		Where("id = ? AND user_answer IS NULL", itemID).
		Updates(map[string]interface{}{
			"user_answer": answer,
			"is_correct":  correct,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PlacementRepository) FinalizeAssessment(id string, score int, level string) error {
	return r.DB.Model(&model.Assessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"final_score": score,
			"final_level": level,
		}).Error
}
