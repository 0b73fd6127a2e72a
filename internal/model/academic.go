package model

// Course / Class 由外部教务系统维护，这里只保留解析接收人所需的字段
type Course struct {
	BaseModel
	Code string `gorm:"size:32;uniqueIndex;not null" json:"code"`
	Name string `gorm:"size:255;not null" json:"name"`
}

func (Course) TableName() string {
	return "courses"
}

type Class struct {
	BaseModel
	Name     string `gorm:"size:100;not null" json:"name"`
	CourseID uint   `gorm:"index" json:"courseId"`
	Students []User `gorm:"many2many:class_students" json:"-"`
}

func (Class) TableName() string {
	return "classes"
}
