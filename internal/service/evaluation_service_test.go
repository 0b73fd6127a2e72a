package service

import (
	"context"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/testutil/testdb"
	"course_eval_backend/internal/util"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEvaluationValidation(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name string
		req  CreateEvaluationReq
		want error
	}{
		{
			name: "end before start",
			req:  CreateEvaluationReq{Title: "x", CourseID: env.fx.Course.ID, ClassIDs: []uint{env.fx.Class.ID}, StartTime: now, EndTime: now.Add(-time.Hour)},
		},
		{
			name: "blank title",
			req:  CreateEvaluationReq{Title: "  ", CourseID: env.fx.Course.ID, ClassIDs: []uint{env.fx.Class.ID}, StartTime: now, EndTime: now.Add(time.Hour)},
		},
		{
			name: "multiple choice without options",
			req: CreateEvaluationReq{Title: "x", CourseID: env.fx.Course.ID, ClassIDs: []uint{env.fx.Class.ID}, StartTime: now, EndTime: now.Add(time.Hour),
				Questions: []QuestionReq{{Enonce: "Pick one", Type: model.QuestionMultipleChoice}}},
		},
		{
			name: "unknown course",
			req:  CreateEvaluationReq{Title: "x", CourseID: 999, ClassIDs: []uint{env.fx.Class.ID}, StartTime: now, EndTime: now.Add(time.Hour)},
			want: util.ErrCourseNotFound,
		},
		{
			name: "unknown class",
			req:  CreateEvaluationReq{Title: "x", CourseID: env.fx.Course.ID, ClassIDs: []uint{env.fx.Class.ID, 999}, StartTime: now, EndTime: now.Add(time.Hour)},
			want: util.ErrClassNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.evaluations.Create(ctx, env.fx.Teacher.ID, tt.req)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			assert.Equal(t, util.KindValidation, util.KindOf(err))
		})
	}
}

func TestCreateEvaluationStartsAsDraft(t *testing.T) {
	env := newTestEnv(t, 2)
	now := time.Now().UTC()
	created := env.createEvaluation(t, now, now.Add(48*time.Hour), defaultQuestions()...)

	evaluation, err := env.evaluations.Get(context.Background(), env.owner(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, evaluation.Status)
	assert.Equal(t, []uint{env.fx.Class.ID}, evaluation.ClassIDs())
	require.NotNil(t, evaluation.Quiz)
	require.Len(t, evaluation.Quiz.Questions, 2)
	assert.Equal(t, 1, evaluation.Quiz.Questions[0].Position)
	assert.Equal(t, 2, evaluation.Quiz.Questions[1].Position)
}

func TestPublishWithoutQuestionsKeepsDraft(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	now := time.Now().UTC()
	evaluation := env.createEvaluation(t, now, now.Add(24*time.Hour))

	_, err := env.evaluations.Publish(ctx, env.owner(), evaluation.ID)
	assert.ErrorIs(t, err, util.ErrNoQuestions)

	loaded, err := env.evaluations.Get(ctx, env.owner(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, loaded.Status)
	assert.Nil(t, loaded.PublishedAt)

	n, err := env.taskRepo.CountByKind(ctx, model.DispatchEvaluationPublished)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublishEnqueuesNotificationInSameTransition(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	now := time.Now().UTC()
	evaluation := env.createEvaluation(t, now, now.Add(24*time.Hour), defaultQuestions()...)

	published, err := env.evaluations.Publish(ctx, env.owner(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, published.Status)
	assert.NotNil(t, published.PublishedAt)

	task, err := env.taskRepo.FindByDedupKey(ctx, PublishedTask(evaluation.ID).DedupKey)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)

	_, err = env.evaluations.Publish(ctx, env.owner(), evaluation.ID)
	assert.ErrorIs(t, err, util.ErrInvalidStatus)

	_, err = env.evaluations.AddQuestion(ctx, env.owner(), evaluation.ID, QuestionReq{Enonce: "Late question", Type: model.QuestionOpenText})
	assert.ErrorIs(t, err, util.ErrInvalidStatus)
}

func TestPublishUnknownEvaluation(t *testing.T) {
	env := newTestEnv(t, 0)
	_, err := env.evaluations.Publish(context.Background(), env.owner(), 12345)
	assert.ErrorIs(t, err, util.ErrEvaluationNotFound)
}

func TestAddQuestionAppendsPosition(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	now := time.Now().UTC()
	evaluation := env.createEvaluation(t, now, now.Add(time.Hour), defaultQuestions()...)

	q, err := env.evaluations.AddQuestion(ctx, env.owner(), evaluation.ID, QuestionReq{Enonce: "Anything else?", Type: model.QuestionOpenText})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Position)

	_, err = env.evaluations.AddQuestion(ctx, env.owner(), evaluation.ID, QuestionReq{Enonce: "Pick", Type: model.QuestionMultipleChoice, Options: []string{"a", "a"}})
	assert.Equal(t, util.KindValidation, util.KindOf(err))
}

func TestCloseTwiceReturnsAlreadyClosed(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	now := time.Now().UTC()
	evaluation := env.publishedEvaluation(t, now, now.Add(time.Hour))

	closed, err := env.evaluations.Close(ctx, env.owner(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	_, err = env.evaluations.Close(ctx, env.owner(), evaluation.ID)
	assert.ErrorIs(t, err, util.ErrAlreadyClosed)
	assert.Equal(t, 400, util.StatusOf(err))

	n, err := env.taskRepo.CountByKind(ctx, model.DispatchEvaluationClosed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestConcurrentCloseHasSingleWinner(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()
	now := time.Now().UTC()
	evaluation := env.publishedEvaluation(t, now, now.Add(time.Hour))

	const callers = 6
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.evaluations.Close(ctx, env.owner(), evaluation.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, util.ErrAlreadyClosed)
	}
	assert.Equal(t, 1, wins)

	n, err := env.taskRepo.CountByKind(ctx, model.DispatchEvaluationClosed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = env.outbox.Drain(ctx)
	require.NoError(t, err)
	events, err := env.notifications.CountEvents(ctx, evaluation.ID, model.NotificationEvaluationClosed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, events)
}

func TestCloseDraftIsAllowed(t *testing.T) {
	env := newTestEnv(t, 1)
	now := time.Now().UTC()
	evaluation := env.createEvaluation(t, now, now.Add(time.Hour))

	closed, err := env.evaluations.Close(context.Background(), env.owner(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, closed.Status)
}

func TestDeleteAndArchive(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	draft := env.createEvaluation(t, now, now.Add(time.Hour), defaultQuestions()...)
	require.NoError(t, env.evaluations.Delete(ctx, env.owner(), draft.ID))
	_, err := env.evaluations.Get(ctx, env.owner(), draft.ID)
	assert.ErrorIs(t, err, util.ErrEvaluationNotFound)

	evaluation := env.publishedEvaluation(t, now.Add(-time.Minute), now.Add(time.Hour))
	student := env.fx.Students[0]
	_, err = env.submission.Submit(ctx, evaluation.Quiz.ID, student.ID, SubmitReq{
		Answers: answersFor(evaluation, "Good", "More examples"),
	})
	require.NoError(t, err)

	err = env.evaluations.Delete(ctx, env.owner(), evaluation.ID)
	assert.ErrorIs(t, err, util.ErrHasSubmissions)

	err = env.evaluations.Archive(ctx, env.owner(), evaluation.ID)
	assert.ErrorIs(t, err, util.ErrInvalidStatus)

	_, err = env.evaluations.Close(ctx, env.owner(), evaluation.ID)
	require.NoError(t, err)
	require.NoError(t, env.evaluations.Archive(ctx, env.owner(), evaluation.ID))

	_, err = env.evaluations.Get(ctx, env.owner(), evaluation.ID)
	assert.ErrorIs(t, err, util.ErrEvaluationNotFound)

	session, err := env.submissions.FindSession(ctx, evaluation.Quiz.ID, mustToken(t, env, student.ID, evaluation.ID))
	require.NoError(t, err)
	assert.Len(t, session.Answers, 2, "archiving keeps submitted answers")
}

func TestActivateAndAutoClose(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	env.setNow(now)

	started := env.publishedEvaluation(t, now.Add(-time.Hour), now.Add(time.Hour))
	future := env.publishedEvaluation(t, now.Add(time.Hour), now.Add(2*time.Hour))

	n, err := env.evaluations.ActivateStarted(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	loaded, err := env.evaluations.Get(ctx, env.owner(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, loaded.Status)
	loaded, err = env.evaluations.Get(ctx, env.owner(), future.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, loaded.Status)

	env.setNow(now.Add(90 * time.Minute))
	closed, err := env.evaluations.AutoClose(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	loaded, err = env.evaluations.Get(ctx, env.owner(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, loaded.Status)

	// 再次运行不会重复关闭
	closed, err = env.evaluations.AutoClose(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestListScopesByOwner(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	now := time.Now().UTC()
	env.createEvaluation(t, now, now.Add(time.Hour))
	env.createEvaluation(t, now, now.Add(time.Hour), defaultQuestions()...)

	other, err := env.evaluations.List(ctx, &util.Principal{UserID: 999, Role: model.RoleTeacher}, "", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, other.Total)

	mine, err := env.evaluations.List(ctx, &util.Principal{UserID: env.fx.Teacher.ID, Role: model.RoleTeacher}, model.StatusDraft, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, mine.Total)

	all, err := env.evaluations.List(ctx, &util.Principal{UserID: env.fx.Admin.ID, Role: model.RoleAdmin}, "", 1, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)
	assert.Len(t, all.List, 1)
}

func TestParticipationCountsOnly(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()
	now := time.Now().UTC()
	evaluation := env.publishedEvaluation(t, now.Add(-time.Minute), now.Add(time.Hour))

	_, err := env.submission.Submit(ctx, evaluation.Quiz.ID, env.fx.Students[0].ID, SubmitReq{
		Answers: answersFor(evaluation, "Fair", "Slower pace"), IsFinal: true,
	})
	require.NoError(t, err)
	_, err = env.submission.Submit(ctx, evaluation.Quiz.ID, env.fx.Students[1].ID, SubmitReq{
		Answers: answersFor(evaluation, "Good", "Nothing"),
	})
	require.NoError(t, err)

	p, err := env.evaluations.Participation(ctx, env.owner(), evaluation.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, p.Eligible)
	assert.EqualValues(t, 3, p.TokensIssued)
	assert.EqualValues(t, 1, p.InProgress)
	assert.EqualValues(t, 1, p.Completed)
	assert.EqualValues(t, 3, p.Notifications[string(model.NotificationNewEvaluation)])
}

func mustToken(t *testing.T, env *testEnv, studentID, evaluationID uint) string {
	t.Helper()
	token, err := env.mapper.GetOrCreateToken(context.Background(), studentID, evaluationID)
	require.NoError(t, err)
	return token
}

func TestOperationsRequireOwnership(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	now := time.Now().UTC()
	evaluation := env.createEvaluation(t, now, now.Add(time.Hour), defaultQuestions()...)

	other := testdb.CreateUser(t, env.db, "other-teacher", model.RoleTeacher)
	intruder := &util.Principal{UserID: other.ID, Role: model.RoleTeacher}

	_, err := env.evaluations.Get(ctx, intruder, evaluation.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
	_, err = env.evaluations.Participation(ctx, intruder, evaluation.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
	_, err = env.evaluations.AddQuestion(ctx, intruder, evaluation.ID, QuestionReq{Enonce: "Sneaky", Type: model.QuestionOpenText})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
	_, err = env.evaluations.Publish(ctx, intruder, evaluation.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
	_, err = env.evaluations.Close(ctx, intruder, evaluation.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
	assert.ErrorIs(t, env.evaluations.Archive(ctx, intruder, evaluation.ID), util.ErrPermissionDenied)
	assert.ErrorIs(t, env.evaluations.Delete(ctx, intruder, evaluation.ID), util.ErrPermissionDenied)
	_, err = env.evaluations.Get(ctx, nil, evaluation.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	loaded, err := env.evaluations.Get(ctx, env.owner(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, loaded.Status)
	assert.Len(t, loaded.Quiz.Questions, 2)

	// 管理员可以操作任何测评
	admin := &util.Principal{UserID: env.fx.Admin.ID, Role: model.RoleAdmin}
	published, err := env.evaluations.Publish(ctx, admin, evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, published.Status)
}

func TestDeleteDropsPendingDispatchTasks(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	evaluation := env.createEvaluation(t, now.Add(time.Hour), now.Add(2*time.Hour), defaultQuestions()...)
	_, err := env.evaluations.Publish(ctx, env.owner(), evaluation.ID)
	require.NoError(t, err)
	require.NoError(t, env.outbox.Enqueue(ctx, ReminderTask(evaluation.ID, HorizonFinal)))

	var pending int64
	require.NoError(t, env.db.Model(&model.DispatchTask{}).
		Where("evaluation_id = ? AND status = ?", evaluation.ID, model.TaskPending).Count(&pending).Error)
	require.EqualValues(t, 2, pending)

	require.NoError(t, env.evaluations.Delete(ctx, env.owner(), evaluation.ID))

	require.NoError(t, env.db.Model(&model.DispatchTask{}).
		Where("evaluation_id = ?", evaluation.ID).Count(&pending).Error)
	assert.Zero(t, pending)

	processed, err := env.outbox.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
}
