package scheduler

import (
	"context"
	"course_eval_backend/internal/config"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/service"
	"course_eval_backend/internal/testutil/testdb"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterJobs(t *testing.T) {
	db := testdb.New(t)
	fx := testdb.Seed(t, db, 1)
	ctx := context.Background()

	evaluations := service.NewEvaluationService(repository.NewEvaluationRepository(db), repository.NewDirectoryRepository(db), repository.NewDashboardRepository(db), nil)
	devices := service.NewDeviceService(repository.NewDeviceRepository(db))

	s := New()
	require.NoError(t, RegisterJobs(s, config.SchedulerConfig{ActivationSpec: "@every 30s"}, evaluations, devices))

	var names []string
	for _, j := range s.Jobs() {
		names = append(names, j.Name)
		assert.True(t, j.Active)
	}
	assert.ElementsMatch(t, []string{JobActivation, JobDeadlineRemind, JobAutoClose, JobDeviceCleanup}, names)

	// PUBLISHED 且已开始的测评由激活任务推进到 ACTIVE
	now := time.Now().UTC()
	evaluation := model.Evaluation{
		Title:     "Lab feedback",
		CourseID:  fx.Course.ID,
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
		Status:    model.StatusPublished,
		OwnerID:   fx.Teacher.ID,
	}
	require.NoError(t, db.Create(&evaluation).Error)
	require.NoError(t, s.RunNow(ctx, JobActivation))

	var stored model.Evaluation
	require.NoError(t, db.First(&stored, evaluation.ID).Error)
	assert.Equal(t, model.StatusActive, stored.Status)

	// 过期的已停用设备被清理
	stale := model.DeviceEndpoint{UserID: fx.Students[0].ID, Token: "old", Platform: "ios", LastUsedAt: now.Add(-90 * 24 * time.Hour)}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, s.RunNow(ctx, JobDeviceCleanup))
	var count int64
	require.NoError(t, db.Model(&model.DeviceEndpoint{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRegisterJobsRejectsBadSpec(t *testing.T) {
	s := New()
	err := RegisterJobs(s, config.SchedulerConfig{AutoCloseSpec: "sometimes"}, nil, nil)
	assert.Error(t, err)
}
