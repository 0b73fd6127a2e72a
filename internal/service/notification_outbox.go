package service

import (
	"context"
	"course_eval_backend/internal/config"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/pkg/logger"
	"course_eval_backend/pkg/monitoring"
	"course_eval_backend/pkg/observability"
	"course_eval_backend/pkg/tracing"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	HorizonFinal = "2h"
	HorizonEarly = "24h"
)

// Outbox 消费 dispatch_tasks：状态变更先提交，通知随后异步投递
type Outbox struct {
	Tasks       *repository.DispatchTaskRepository
	Evaluations *repository.EvaluationRepository
	Directory   *repository.DirectoryRepository
	Preferences *PreferenceService
	Mapper      *AnonymizationService
	Dispatcher  *Dispatcher
	Now         func() time.Time

	cfg      config.OutboxConfig
	kick     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	// 同一进程内只允许一个批次在处理
	batchMu sync.Mutex
}

func NewOutbox(
	tasks *repository.DispatchTaskRepository,
	evaluations *repository.EvaluationRepository,
	directory *repository.DirectoryRepository,
	preferences *PreferenceService,
	mapper *AnonymizationService,
	dispatcher *Dispatcher,
	cfg config.OutboxConfig,
) *Outbox {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	return &Outbox{
		Tasks:       tasks,
		Evaluations: evaluations,
		Directory:   directory,
		Preferences: preferences,
		Mapper:      mapper,
		Dispatcher:  dispatcher,
		Now:         utcNow,
		cfg:         cfg,
		kick:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Enqueue 事务外的入队（如提交确认）；调用方只记录失败
func (o *Outbox) Enqueue(ctx context.Context, task *model.DispatchTask) error {
	if task.AvailableAt.IsZero() {
		task.AvailableAt = o.Now()
	}
	if err := o.Tasks.Enqueue(ctx, task); err != nil {
		return err
	}
	o.Kick()
	return nil
}

// Kick 唤醒 worker 立即处理，不阻塞
func (o *Outbox) Kick() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

func (o *Outbox) Run() {
	defer close(o.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-o.stop
		cancel()
	}()

	if n, err := o.Tasks.RequeueStale(ctx, o.Now().Add(-10*time.Minute), o.Now()); err != nil {
		logger.Log.Error("Failed to requeue stale dispatch tasks", zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("Requeued stale dispatch tasks", zap.Int64("count", n))
	}

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-o.kick:
		case <-ticker.C:
		}
		if _, err := o.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.Error("Outbox drain failed", zap.Error(err))
		}
	}
}

// Stop 等待当前批次结束
func (o *Outbox) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
	<-o.done
	logger.Log.Info("Outbox worker stopped")
}

// Drain 处理所有已到期的任务，返回处理条数
func (o *Outbox) Drain(ctx context.Context) (int, error) {
	o.batchMu.Lock()
	defer o.batchMu.Unlock()

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		tasks, err := o.Tasks.ListReady(ctx, o.Now(), o.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		if len(tasks) == 0 {
			return total, nil
		}
		for i := range tasks {
			claimed, err := o.Tasks.Claim(ctx, tasks[i].ID, o.Now())
			if err != nil {
				return total, err
			}
			if !claimed {
				continue
			}
			tasks[i].Attempts++
			o.process(ctx, &tasks[i])
			total++
		}
	}
}

func (o *Outbox) process(ctx context.Context, task *model.DispatchTask) {
	ctx, span := tracing.StartSpan(ctx, "outbox.process",
		attribute.String("outbox.kind", string(task.Kind)),
		attribute.Int64("outbox.task_id", int64(task.ID)),
	)
	defer span.End()

	err := o.handle(ctx, task)
	// 停止时 ctx 已取消，状态记录仍需写入
	markCtx := context.WithoutCancel(ctx)
	now := o.Now()
	if err == nil {
		if markErr := o.Tasks.MarkDone(markCtx, task.ID, now); markErr != nil {
			logger.Log.Error("Failed to mark dispatch task done", zap.Uint("taskId", task.ID), zap.Error(markErr))
		}
		monitoring.OutboxTasks.WithLabelValues(string(task.Kind), "done").Inc()
		return
	}

	span.RecordError(err)
	fields := []zap.Field{
		zap.Uint("taskId", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Int("attempts", task.Attempts),
		zap.Error(err),
	}
	if task.Attempts >= o.cfg.MaxAttempts {
		logger.Log.Error("Dispatch task failed permanently", fields...)
		observability.CaptureWithTags(err, map[string]string{"outbox.kind": string(task.Kind)})
		if markErr := o.Tasks.MarkFailed(markCtx, task.ID, err.Error(), now); markErr != nil {
			logger.Log.Error("Failed to mark dispatch task failed", zap.Uint("taskId", task.ID), zap.Error(markErr))
		}
		monitoring.OutboxTasks.WithLabelValues(string(task.Kind), "failed").Inc()
		return
	}

	logger.Log.Warn("Dispatch task will be retried", fields...)
	next := now.Add(time.Duration(task.Attempts) * o.cfg.RetryBackoff)
	if markErr := o.Tasks.MarkRetry(markCtx, task.ID, err.Error(), next, now); markErr != nil {
		logger.Log.Error("Failed to reschedule dispatch task", zap.Uint("taskId", task.ID), zap.Error(markErr))
	}
	monitoring.OutboxTasks.WithLabelValues(string(task.Kind), "retry").Inc()
}

func (o *Outbox) handle(ctx context.Context, task *model.DispatchTask) error {
	switch task.Kind {
	case model.DispatchEvaluationPublished:
		return o.handlePublished(ctx, task)
	case model.DispatchEvaluationClosed:
		return o.handleClosed(ctx, task)
	case model.DispatchEvaluationReminder:
		return o.handleReminder(ctx, task)
	case model.DispatchSubmissionConfirmed:
		return o.handleConfirmed(ctx, task)
	}
	return fmt.Errorf("unknown dispatch kind %q", task.Kind)
}

func (o *Outbox) loadEvaluation(ctx context.Context, task *model.DispatchTask) (*model.Evaluation, error) {
	if task.EvaluationID == nil {
		return nil, errors.New("dispatch task has no evaluation")
	}
	return o.Evaluations.FindByIDUnscoped(ctx, *task.EvaluationID)
}

func (o *Outbox) handlePublished(ctx context.Context, task *model.DispatchTask) error {
	evaluation, err := o.loadEvaluation(ctx, task)
	if err != nil {
		return err
	}
	recipients, err := o.Directory.StudentIDsOfEvaluation(ctx, evaluation.ID)
	if err != nil {
		return err
	}

	// 先为每个接收人准备匿名令牌，重跑时复用已有令牌
	for _, studentID := range recipients {
		if _, err := o.Mapper.GetOrCreateToken(ctx, studentID, evaluation.ID); err != nil {
			return fmt.Errorf("provision token for student %d: %w", studentID, err)
		}
	}

	return o.dispatch(ctx, task, recipients, Message{
		Title:        "New evaluation: " + evaluation.Title,
		Body:         fmt.Sprintf("A new course evaluation is open until %s.", evaluation.EndTime.UTC().Format(time.RFC1123)),
		Type:         model.NotificationNewEvaluation,
		EvaluationID: &evaluation.ID,
		TriggerKey:   task.DedupKey,
	})
}

func (o *Outbox) handleClosed(ctx context.Context, task *model.DispatchTask) error {
	evaluation, err := o.loadEvaluation(ctx, task)
	if err != nil {
		return err
	}
	recipients, err := o.Directory.StudentIDsOfEvaluation(ctx, evaluation.ID)
	if err != nil {
		return err
	}
	return o.dispatch(ctx, task, recipients, Message{
		Title:        "Evaluation closed: " + evaluation.Title,
		Body:         "This course evaluation is now closed. Thank you for your feedback.",
		Type:         model.NotificationEvaluationClosed,
		EvaluationID: &evaluation.ID,
		TriggerKey:   task.DedupKey,
	})
}

func (o *Outbox) handleReminder(ctx context.Context, task *model.DispatchTask) error {
	evaluation, err := o.loadEvaluation(ctx, task)
	if err != nil {
		return err
	}
	if evaluation.Status != model.StatusActive || evaluation.DeletedAt.Valid {
		logger.Log.Info("Skipping reminder for evaluation no longer active",
			zap.Uint("evaluationId", evaluation.ID), zap.String("status", string(evaluation.Status)))
		return nil
	}

	horizon, _ := task.Payload["horizon"].(string)
	pending, err := o.Evaluations.PendingStudentIDs(ctx, evaluation.ID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	prefs, err := o.Preferences.ForUsers(ctx, pending)
	if err != nil {
		return err
	}

	recipients := make([]uint, 0, len(pending))
	for _, id := range pending {
		if WantsReminder(prefs[id].ReminderFrequency, horizon) {
			recipients = append(recipients, id)
		}
	}

	return o.dispatch(ctx, task, recipients, Message{
		Title:        "Reminder: " + evaluation.Title,
		Body:         fmt.Sprintf("This evaluation closes at %s. Your answers have not been submitted yet.", evaluation.EndTime.UTC().Format(time.RFC1123)),
		Type:         model.NotificationReminder,
		EvaluationID: &evaluation.ID,
		TriggerKey:   task.DedupKey,
		Data:         map[string]string{"horizon": horizon},
	})
}

func (o *Outbox) handleConfirmed(ctx context.Context, task *model.DispatchTask) error {
	if task.RecipientID == nil {
		return errors.New("confirmation task has no recipient")
	}
	evaluation, err := o.loadEvaluation(ctx, task)
	if err != nil {
		return err
	}
	return o.dispatch(ctx, task, []uint{*task.RecipientID}, Message{
		Title:        "Submission received",
		Body:         fmt.Sprintf("Your answers to %q have been recorded anonymously.", evaluation.Title),
		Type:         model.NotificationSubmissionConfirmed,
		EvaluationID: &evaluation.ID,
		TriggerKey:   task.DedupKey,
	})
}

func (o *Outbox) dispatch(ctx context.Context, task *model.DispatchTask, recipients []uint, msg Message) error {
	if len(recipients) == 0 {
		logger.Log.Info("No recipients for dispatch task",
			zap.Uint("taskId", task.ID), zap.String("kind", string(task.Kind)))
		return nil
	}
	_, err := o.Dispatcher.Dispatch(ctx, recipients, msg)
	return err
}

// WantsReminder ALL 接收两次提醒，FINAL_ONLY 只接收最后 2 小时的提醒
func WantsReminder(freq model.ReminderFrequency, horizon string) bool {
	switch freq {
	case model.ReminderNone:
		return false
	case model.ReminderFinalOnly:
		return horizon == HorizonFinal
	}
	return true
}

func PublishedTask(evaluationID uint) *model.DispatchTask {
	return &model.DispatchTask{
		Kind:         model.DispatchEvaluationPublished,
		DedupKey:     fmt.Sprintf("%s:%d", model.DispatchEvaluationPublished, evaluationID),
		EvaluationID: &evaluationID,
	}
}

func ClosedTask(evaluationID uint) *model.DispatchTask {
	return &model.DispatchTask{
		Kind:         model.DispatchEvaluationClosed,
		DedupKey:     fmt.Sprintf("%s:%d", model.DispatchEvaluationClosed, evaluationID),
		EvaluationID: &evaluationID,
	}
}

func ReminderTask(evaluationID uint, horizon string) *model.DispatchTask {
	return &model.DispatchTask{
		Kind:         model.DispatchEvaluationReminder,
		DedupKey:     fmt.Sprintf("%s:%s:%d", model.DispatchEvaluationReminder, horizon, evaluationID),
		EvaluationID: &evaluationID,
		Payload:      map[string]interface{}{"horizon": horizon},
	}
}

func ConfirmationTask(evaluationID, studentID uint) *model.DispatchTask {
	return &model.DispatchTask{
		Kind:         model.DispatchSubmissionConfirmed,
		DedupKey:     fmt.Sprintf("%s:%s", model.DispatchSubmissionConfirmed, model.GenerateUUID()),
		EvaluationID: &evaluationID,
		RecipientID:  &studentID,
	}
}
