package scheduler

import (
	"context"
	"course_eval_backend/internal/config"
	"course_eval_backend/internal/service"
	"course_eval_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

const (
	JobActivation     = "evaluation-activation"
	JobDeadlineRemind = "deadline-reminder"
	JobAutoClose      = "auto-close"
	JobDeviceCleanup  = "device-token-cleanup"
)

// RegisterJobs 注册测评生命周期相关的周期任务
func RegisterJobs(s *Scheduler, cfg config.SchedulerConfig, evaluations *service.EvaluationService, devices *service.DeviceService) error {
	retention := time.Duration(cfg.DeviceRetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	jobs := []struct {
		name string
		spec string
		fn   JobFunc
	}{
		{JobActivation, orDefault(cfg.ActivationSpec, "@every 1m"), func(ctx context.Context) error {
			_, err := evaluations.ActivateStarted(ctx)
			return err
		}},
		{JobDeadlineRemind, orDefault(cfg.ReminderSpec, "@every 1h"), func(ctx context.Context) error {
			n, err := evaluations.EnqueueReminders(ctx)
			if n > 0 {
				logger.Log.Info("Reminder tasks enqueued", zap.Int("count", n))
			}
			return err
		}},
		{JobAutoClose, orDefault(cfg.AutoCloseSpec, "@every 10m"), func(ctx context.Context) error {
			n, err := evaluations.AutoClose(ctx)
			if n > 0 {
				logger.Log.Info("Overdue evaluations closed", zap.Int("count", n))
			}
			return err
		}},
		{JobDeviceCleanup, orDefault(cfg.CleanupSpec, "0 3 * * *"), func(ctx context.Context) error {
			n, err := devices.CleanupStale(ctx, retention)
			if n > 0 {
				logger.Log.Info("Stale device endpoints deleted", zap.Int64("count", n))
			}
			return err
		}},
	}

	for _, j := range jobs {
		if err := s.Register(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
