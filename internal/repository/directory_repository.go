package repository

import (
	"context"
	"course_eval_backend/internal/model"

	"gorm.io/gorm"
)

// DirectoryRepository 只读访问课程/班级/用户，用于解析通知接收人
type DirectoryRepository struct {
	DB *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{DB: db}
}

func (r *DirectoryRepository) WithTx(tx *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{DB: tx}
}

func (r *DirectoryRepository) FindCourse(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.WithContext(ctx).First(&course, id).Error
	return &course, err
}

func (r *DirectoryRepository) FindClasses(ctx context.Context, ids []uint) ([]model.Class, error) {
	var classes []model.Class
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&classes).Error
	return classes, err
}

func (r *DirectoryRepository) FindUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, id).Error
	return &user, err
}

// StudentIDsOfEvaluation 目标班级中的全部学生（去重）
func (r *DirectoryRepository) StudentIDsOfEvaluation(ctx context.Context, evaluationID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).
		Table("class_students cs").
		Joins("JOIN evaluation_classes ec ON ec.class_id = cs.class_id").
		Joins("JOIN users u ON u.id = cs.user_id AND u.deleted_at IS NULL").
		Where("ec.evaluation_id = ? AND u.role = ?", evaluationID, model.RoleStudent).
		Distinct("cs.user_id").
		Order("cs.user_id").
		Pluck("cs.user_id", &ids).Error
	return ids, err
}

// IsEnrolled 学生是否属于测评的任一目标班级
func (r *DirectoryRepository) IsEnrolled(ctx context.Context, studentID, evaluationID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Table("class_students cs").
		Joins("JOIN evaluation_classes ec ON ec.class_id = cs.class_id").
		Where("ec.evaluation_id = ? AND cs.user_id = ?", evaluationID, studentID).
		Count(&count).Error
	return count > 0, err
}

// Contacts 按 ID 批量取用户联系方式
func (r *DirectoryRepository) Contacts(ctx context.Context, ids []uint) (map[uint]model.User, error) {
	var users []model.User
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]model.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}
