package service

import (
	"context"
	"course_eval_backend/internal/config"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/testutil/testdb"
	"course_eval_backend/internal/util"
	"course_eval_backend/pkg/mailer"
	"course_eval_backend/pkg/pusher"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakePush struct {
	mu      sync.Mutex
	invalid map[string]bool
	err     error
	calls   [][]string
}

func (f *fakePush) Send(ctx context.Context, tokens []string, n pusher.Notification) ([]pusher.TokenResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), tokens...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([]pusher.TokenResult, len(tokens))
	for i, t := range tokens {
		out[i] = pusher.TokenResult{Token: t, Invalid: f.invalid[t]}
	}
	return out, nil
}

func (f *fakePush) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c...)
	}
	return out
}

// failingMail 对指定地址返回错误，其余交给 ConsoleGateway
type failingMail struct {
	*mailer.ConsoleGateway
	failFor map[string]bool
}

func (f *failingMail) Send(ctx context.Context, msg mailer.Message) error {
	if f.failFor[msg.To.Address] {
		return errors.New("smtp: mailbox unavailable")
	}
	return f.ConsoleGateway.Send(ctx, msg)
}

type testEnv struct {
	db   *gorm.DB
	fx   *testdb.Fixture
	push *fakePush
	mail *failingMail

	evaluationRepo *repository.EvaluationRepository
	taskRepo       *repository.DispatchTaskRepository
	notifications  *repository.NotificationRepository
	devices        *repository.DeviceRepository
	submissions    *repository.SubmissionRepository

	mapper      *AnonymizationService
	preferences *PreferenceService
	dispatcher  *Dispatcher
	outbox      *Outbox
	evaluations *EvaluationService
	submission  *SubmissionService
	deviceSvc   *DeviceService
	inbox       *InboxService
}

func testNotificationConfig() config.NotificationConfig {
	return config.NotificationConfig{
		Timezone:         "UTC",
		ChannelTimeout:   2 * time.Second,
		QuietHoursStart:  "00:00:00",
		QuietHoursEnd:    "00:00:00",
		DevTokenPrefixes: []string{"dev-"},
		Outbox: config.OutboxConfig{
			PollInterval: time.Hour,
			BatchSize:    10,
			MaxAttempts:  3,
			RetryBackoff: time.Minute,
		},
	}
}

func newTestEnv(t *testing.T, students int) *testEnv {
	t.Helper()
	db := testdb.New(t)
	env := &testEnv{
		db:   db,
		fx:   testdb.Seed(t, db, students),
		push: &fakePush{invalid: map[string]bool{}},
		mail: &failingMail{ConsoleGateway: mailer.NewConsoleGateway(), failFor: map[string]bool{}},
	}

	cfg := testNotificationConfig()
	directory := repository.NewDirectoryRepository(db)
	env.evaluationRepo = repository.NewEvaluationRepository(db)
	env.taskRepo = repository.NewDispatchTaskRepository(db)
	env.notifications = repository.NewNotificationRepository(db)
	env.devices = repository.NewDeviceRepository(db)
	env.submissions = repository.NewSubmissionRepository(db)

	env.mapper = NewAnonymizationService(repository.NewAnonymizationRepository(db), "test-secret")
	env.preferences = NewPreferenceService(repository.NewPreferenceRepository(db), cfg.QuietHoursStart, cfg.QuietHoursEnd)
	env.dispatcher = NewDispatcher(env.notifications, env.devices, directory, env.preferences, env.push, env.mail, cfg)
	env.outbox = NewOutbox(env.taskRepo, env.evaluationRepo, directory, env.preferences, env.mapper, env.dispatcher, cfg.Outbox)
	env.evaluations = NewEvaluationService(env.evaluationRepo, directory, repository.NewDashboardRepository(db), env.outbox)
	env.submission = NewSubmissionService(env.submissions, env.evaluationRepo, directory, env.mapper, env.outbox)
	env.deviceSvc = NewDeviceService(env.devices)
	env.inbox = NewInboxService(env.notifications)
	return env
}

// owner 测评创建者（夹具中的教师）
func (e *testEnv) owner() *util.Principal {
	return &util.Principal{UserID: e.fx.Teacher.ID, Role: model.RoleTeacher}
}

// setNow 固定所有组件的当前时间
func (e *testEnv) setNow(now time.Time) {
	fn := func() time.Time { return now }
	e.mapper.Now = fn
	e.dispatcher.Now = fn
	e.outbox.Now = fn
	e.evaluations.Now = fn
	e.submission.Now = fn
	e.deviceSvc.Now = fn
	e.inbox.Now = fn
}

func (e *testEnv) createEvaluation(t *testing.T, start, end time.Time, questions ...QuestionReq) *model.Evaluation {
	t.Helper()
	evaluation, err := e.evaluations.Create(context.Background(), e.fx.Teacher.ID, CreateEvaluationReq{
		Title:     "Mid-term course feedback",
		CourseID:  e.fx.Course.ID,
		ClassIDs:  []uint{e.fx.Class.ID},
		StartTime: start,
		EndTime:   end,
		Questions: questions,
	})
	require.NoError(t, err)
	return evaluation
}

func defaultQuestions() []QuestionReq {
	return []QuestionReq{
		{Enonce: "How clear were the lectures?", Type: model.QuestionMultipleChoice, Options: []string{"Poor", "Fair", "Good"}},
		{Enonce: "What should be improved?", Type: model.QuestionOpenText},
	}
}

// publishedEvaluation 已发布且发件箱已清空
func (e *testEnv) publishedEvaluation(t *testing.T, start, end time.Time) *model.Evaluation {
	t.Helper()
	ctx := context.Background()
	evaluation := e.createEvaluation(t, start, end, defaultQuestions()...)
	_, err := e.evaluations.Publish(ctx, e.owner(), evaluation.ID)
	require.NoError(t, err)
	_, err = e.outbox.Drain(ctx)
	require.NoError(t, err)

	loaded, err := e.evaluations.Get(ctx, e.owner(), evaluation.ID)
	require.NoError(t, err)
	return loaded
}

func (e *testEnv) registerDevice(t *testing.T, userID uint, token string) {
	t.Helper()
	_, err := e.deviceSvc.Register(context.Background(), userID, RegisterDeviceRequest{Token: token, Platform: "android"})
	require.NoError(t, err)
}

func answersFor(evaluation *model.Evaluation, choice, text string) []AnswerReq {
	qs := evaluation.Quiz.Questions
	return []AnswerReq{
		{QuestionID: qs[0].ID, Content: choice},
		{QuestionID: qs[1].ID, Content: text},
	}
}
