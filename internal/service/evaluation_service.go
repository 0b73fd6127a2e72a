package service

import (
	"context"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/util"
	"course_eval_backend/pkg/logger"
	"course_eval_backend/pkg/monitoring"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EvaluationService 测评状态机：DRAFT -> PUBLISHED -> ACTIVE -> CLOSED
type EvaluationService struct {
	Repo      *repository.EvaluationRepository
	Directory *repository.DirectoryRepository
	Dashboard *repository.DashboardRepository
	Outbox    *Outbox
	Now       func() time.Time
}

func NewEvaluationService(repo *repository.EvaluationRepository, directory *repository.DirectoryRepository, dashboard *repository.DashboardRepository, outbox *Outbox) *EvaluationService {
	return &EvaluationService{Repo: repo, Directory: directory, Dashboard: dashboard, Outbox: outbox, Now: utcNow}
}

type QuestionReq struct {
	Enonce  string             `json:"enonce" binding:"required"`
	Type    model.QuestionType `json:"type" binding:"required,questiontype"`
	Options []string           `json:"options"`
}

type CreateEvaluationReq struct {
	Title     string        `json:"title" binding:"required,max=255"`
	CourseID  uint          `json:"courseId" binding:"required"`
	ClassIDs  []uint        `json:"classIds" binding:"required,min=1"`
	StartTime time.Time     `json:"startTime" binding:"required"`
	EndTime   time.Time     `json:"endTime" binding:"required"`
	Questions []QuestionReq `json:"questions" binding:"omitempty,dive"`
}

func (req QuestionReq) toModel() (model.Question, error) {
	enonce := strings.TrimSpace(req.Enonce)
	if enonce == "" {
		return model.Question{}, util.Validation("question enonce is required")
	}
	if !req.Type.Valid() {
		return model.Question{}, util.Validation("question type must be MULTIPLE_CHOICE or OPEN_TEXT")
	}
	q := model.Question{Enonce: enonce, Type: req.Type}
	if req.Type == model.QuestionMultipleChoice {
		seen := make(map[string]bool, len(req.Options))
		for _, o := range req.Options {
			o = strings.TrimSpace(o)
			if o == "" || seen[o] {
				return model.Question{}, util.Validation("options must be non-empty and unique")
			}
			seen[o] = true
			q.Options = append(q.Options, o)
		}
		if len(q.Options) == 0 {
			return model.Question{}, util.Validation("multiple choice questions need at least one option")
		}
	}
	return q, nil
}

func (s *EvaluationService) Create(ctx context.Context, ownerID uint, req CreateEvaluationReq) (*model.Evaluation, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, util.Validation("title is required")
	}
	classIDs := uniqueIDs(req.ClassIDs)
	if len(classIDs) == 0 {
		return nil, util.Validation("at least one target class is required")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, util.Validation("endTime must be after startTime")
	}

	questions := make([]model.Question, 0, len(req.Questions))
	for _, qr := range req.Questions {
		q, err := qr.toModel()
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}

	if _, err := s.Directory.FindCourse(ctx, req.CourseID); err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	classes, err := s.Directory.FindClasses(ctx, classIDs)
	if err != nil {
		return nil, err
	}
	if len(classes) != len(classIDs) {
		return nil, util.ErrClassNotFound
	}

	evaluation := &model.Evaluation{
		Title:     title,
		CourseID:  req.CourseID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Status:    model.StatusDraft,
		OwnerID:   ownerID,
		Classes:   classes,
	}
	if err := s.Repo.Create(ctx, evaluation, questions); err != nil {
		return nil, err
	}
	return evaluation, nil
}

func (s *EvaluationService) load(ctx context.Context, id uint) (*model.Evaluation, error) {
	evaluation, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrEvaluationNotFound
		}
		return nil, err
	}
	return evaluation, nil
}

// authorize 管理员可操作全部测评，教师只能操作自己创建的
func authorize(p *util.Principal, evaluation *model.Evaluation) error {
	if p == nil {
		return util.ErrPermissionDenied
	}
	if p.Role == model.RoleAdmin || evaluation.OwnerID == p.UserID {
		return nil
	}
	return util.ErrPermissionDenied
}

// Get 加载测评并校验调用者的所有权
func (s *EvaluationService) Get(ctx context.Context, p *util.Principal, id uint) (*model.Evaluation, error) {
	evaluation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, evaluation); err != nil {
		return nil, err
	}
	return evaluation, nil
}

// List 管理员可见全部，教师只看自己创建的
func (s *EvaluationService) List(ctx context.Context, principal *util.Principal, status model.EvaluationStatus, page, limit int) (*util.PageResponse, error) {
	page, limit = util.ClampPage(page, limit)
	ownerID := principal.UserID
	if principal.Role == model.RoleAdmin {
		ownerID = 0
	}
	list, total, err := s.Repo.List(ctx, ownerID, status, page, limit)
	if err != nil {
		return nil, err
	}
	return &util.PageResponse{List: list, Total: total, Page: page, Limit: limit}, nil
}

// Participation 参与情况汇总
func (s *EvaluationService) Participation(ctx context.Context, p *util.Principal, id uint) (*repository.Participation, error) {
	evaluation, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return s.Dashboard.Participation(ctx, evaluation)
}

func (s *EvaluationService) AddQuestion(ctx context.Context, p *util.Principal, evaluationID uint, req QuestionReq) (*model.Question, error) {
	q, err := req.toModel()
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, p, evaluationID); err != nil {
		return nil, err
	}
	added, err := s.Repo.AddQuestion(ctx, evaluationID, &q)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrEvaluationNotFound
		}
		return nil, err
	}
	if !added {
		return nil, util.ErrInvalidStatus
	}
	return &q, nil
}

// Publish 状态变更与发件箱任务同事务提交；通知由 Outbox 异步投递
func (s *EvaluationService) Publish(ctx context.Context, p *util.Principal, id uint) (*model.Evaluation, error) {
	evaluation, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if evaluation.Status != model.StatusDraft {
		return nil, util.ErrInvalidStatus
	}
	if evaluation.Quiz == nil {
		return nil, util.ErrNoQuestions
	}
	count, err := s.Repo.CountQuestions(ctx, evaluation.Quiz.ID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, util.ErrNoQuestions
	}

	changed, err := s.Repo.Transition(ctx, id, model.StatusPublished,
		"status = ?", []interface{}{model.StatusDraft}, s.Now(), PublishedTask(id))
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, util.ErrInvalidStatus
	}
	s.afterTransition(id, model.StatusPublished)
	return s.load(ctx, id)
}

// Close 重复关闭返回 ALREADY_CLOSED；并发关闭时只有一个成功
func (s *EvaluationService) Close(ctx context.Context, p *util.Principal, id uint) (*model.Evaluation, error) {
	evaluation, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return s.close(ctx, evaluation)
}

func (s *EvaluationService) close(ctx context.Context, evaluation *model.Evaluation) (*model.Evaluation, error) {
	id := evaluation.ID
	if evaluation.Status == model.StatusClosed {
		return nil, util.ErrAlreadyClosed
	}

	changed, err := s.Repo.Transition(ctx, id, model.StatusClosed,
		"status <> ?", []interface{}{model.StatusClosed}, s.Now(), ClosedTask(id))
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, util.ErrAlreadyClosed
	}
	s.afterTransition(id, model.StatusClosed)
	return s.load(ctx, id)
}

func (s *EvaluationService) afterTransition(id uint, to model.EvaluationStatus) {
	monitoring.EvaluationTransitions.WithLabelValues(string(to)).Inc()
	logger.Log.Info("Evaluation status changed", zap.Uint("evaluationId", id), zap.String("to", string(to)))
	if s.Outbox != nil {
		s.Outbox.Kick()
	}
}

// Delete 仅允许草稿或没有任何提交会话的测评
func (s *EvaluationService) Delete(ctx context.Context, p *util.Principal, id uint) error {
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}
	deleted, err := s.Repo.HardDelete(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return util.ErrEvaluationNotFound
		}
		return err
	}
	if !deleted {
		return util.ErrHasSubmissions
	}
	logger.Log.Info("Evaluation deleted", zap.Uint("evaluationId", id))
	return nil
}

// Archive 已关闭的测评软删除，提交数据保留
func (s *EvaluationService) Archive(ctx context.Context, p *util.Principal, id uint) error {
	evaluation, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	if evaluation.Status != model.StatusClosed {
		return util.ErrInvalidStatus
	}
	if _, err := s.Repo.Archive(ctx, id); err != nil {
		return err
	}
	return nil
}

// ActivateStarted PUBLISHED 且已到开始时间的测评进入 ACTIVE
func (s *EvaluationService) ActivateStarted(ctx context.Context) (int64, error) {
	n, err := s.Repo.ActivateStarted(ctx, s.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		monitoring.EvaluationTransitions.WithLabelValues(string(model.StatusActive)).Add(float64(n))
		logger.Log.Info("Evaluations activated", zap.Int64("count", n))
	}
	return n, nil
}

// AutoClose 关闭所有已过截止时间的测评；单个失败不影响其他测评
func (s *EvaluationService) AutoClose(ctx context.Context) (int, error) {
	ids, err := s.Repo.ListOverdue(ctx, s.Now())
	if err != nil {
		return 0, err
	}
	closed := 0
	var errs []error
	for _, id := range ids {
		evaluation, err := s.load(ctx, id)
		if err == nil {
			_, err = s.close(ctx, evaluation)
		}
		if err != nil {
			if errors.Is(err, util.ErrAlreadyClosed) {
				continue
			}
			logger.Log.Error("Auto-close failed", zap.Uint("evaluationId", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}

// EnqueueReminders 先处理 2h 窗口；同时落在两个窗口内的测评只发更紧的那一次
func (s *EvaluationService) EnqueueReminders(ctx context.Context) (int, error) {
	now := s.Now()
	final, err := s.Repo.ListEndingWithin(ctx, now, 2*time.Hour)
	if err != nil {
		return 0, err
	}
	early, err := s.Repo.ListEndingWithin(ctx, now, 24*time.Hour)
	if err != nil {
		return 0, err
	}

	inFinal := make(map[uint]bool, len(final))
	enqueued := 0
	var errs []error
	for _, id := range final {
		inFinal[id] = true
		if err := s.Outbox.Enqueue(ctx, ReminderTask(id, HorizonFinal)); err != nil {
			errs = append(errs, err)
			continue
		}
		enqueued++
	}
	for _, id := range early {
		if inFinal[id] {
			continue
		}
		if err := s.Outbox.Enqueue(ctx, ReminderTask(id, HorizonEarly)); err != nil {
			errs = append(errs, err)
			continue
		}
		enqueued++
	}
	return enqueued, errors.Join(errs...)
}

// DueForReminder 截止时间在 horizon 内且尚未完成提交的 (测评, 学生)
func (s *EvaluationService) DueForReminder(ctx context.Context, horizon time.Duration) ([]repository.ReminderTarget, error) {
	return s.Repo.DueForReminder(ctx, s.Now(), horizon)
}
