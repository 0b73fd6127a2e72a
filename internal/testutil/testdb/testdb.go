// Package testdb 为包内测试提供迁移好的内存 sqlite 数据库
package testdb

import (
	"course_eval_backend/internal/model"
	"course_eval_backend/pkg/database"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// New 每个测试独立的命名内存库，测试结束时关闭
func New(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000", name, seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Fixture 一门课程、一个班级、一位教师和若干学生
type Fixture struct {
	Admin    model.User
	Teacher  model.User
	Course   model.Course
	Class    model.Class
	Students []model.User
}

func (f *Fixture) StudentIDs() []uint {
	ids := make([]uint, len(f.Students))
	for i, s := range f.Students {
		ids[i] = s.ID
	}
	return ids
}

func Seed(t testing.TB, db *gorm.DB, students int) *Fixture {
	t.Helper()

	f := &Fixture{
		Admin:   CreateUser(t, db, "admin", model.RoleAdmin),
		Teacher: CreateUser(t, db, "teacher", model.RoleTeacher),
		Course:  model.Course{Code: "CS101", Name: "Introduction to Programming"},
	}
	require.NoError(t, db.Create(&f.Course).Error)

	for i := 0; i < students; i++ {
		f.Students = append(f.Students, CreateUser(t, db, fmt.Sprintf("student%d", i+1), model.RoleStudent))
	}
	f.Class = CreateClass(t, db, f.Course.ID, "Group A", f.Students...)
	return f
}

func CreateUser(t testing.TB, db *gorm.DB, name string, role model.Role) model.User {
	t.Helper()
	u := model.User{Name: name, Email: name + "@example.edu", Role: role}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func CreateClass(t testing.TB, db *gorm.DB, courseID uint, name string, students ...model.User) model.Class {
	t.Helper()
	c := model.Class{Name: name, CourseID: courseID}
	require.NoError(t, db.Create(&c).Error)
	for i := range students {
		require.NoError(t, db.Model(&c).Association("Students").Append(&students[i]))
	}
	return c
}
