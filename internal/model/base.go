package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// swagger:model
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func GenerateUUID() string {
	return uuid.New().String()
}

// AllModels AutoMigrate 使用的完整模型列表（生产与测试共用）
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Course{},
		&Class{},
		&Evaluation{},
		&Quiz{},
		&Question{},
		&AnonymizationToken{},
		&SubmissionSession{},
		&Answer{},
		&NotificationEvent{},
		&NotificationRecipient{},
		&DeviceEndpoint{},
		&NotificationPreference{},
		&DispatchTask{},
	}
}
