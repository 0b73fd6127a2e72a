package app

import (
	"bytes"
	"course_eval_backend/internal/config"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/testutil/testdb"
	"course_eval_backend/internal/util"
	"course_eval_backend/pkg/mailer"
	"course_eval_backend/pkg/pusher"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "app-test-secret"

type testApp struct {
	*App
	fx *testdb.Fixture
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testdb.New(t)
	fx := testdb.Seed(t, db, 2)

	cfg := &config.Config{
		Server:        config.ServerConfig{Port: "0", Mode: "test"},
		JWT:           config.JWTConfig{Secret: testJWTSecret, ExpireTime: time.Hour},
		RateLimit:     config.RateLimitConfig{MaxRequests: 1000, WindowMinutes: 1},
		Anonymization: config.AnonymizationConfig{Secret: "app-test-anonymization"},
		Notification: config.NotificationConfig{
			Timezone:          "UTC",
			ChannelTimeout:    time.Second,
			QuietHoursStart:   "00:00:00",
			QuietHoursEnd:     "00:00:00",
			FanoutConcurrency: 2,
			Outbox: config.OutboxConfig{
				PollInterval: time.Hour,
				BatchSize:    10,
				MaxAttempts:  3,
				RetryBackoff: time.Minute,
			},
		},
	}

	a, err := New(cfg, db, nil, Gateways{Push: pusher.NewConsoleGateway(), Email: mailer.NewConsoleGateway()})
	require.NoError(t, err)
	return &testApp{App: a, fx: fx}
}

func (a *testApp) tokenFor(t *testing.T, u model.User) string {
	t.Helper()
	token, err := util.GenerateJWT(&u, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	var body util.ErrorResponse
	decode(t, w, &body)
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Message)
}

func TestAuthFlow(t *testing.T) {
	a := newTestApp(t)

	register := map[string]string{"name": "Alice", "email": "Alice@Example.edu", "password": "s3cret-pass", "role": "student"}
	w := a.do(t, http.MethodPost, "/auth/register", "", register)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var user model.User
	decode(t, w, &user)
	assert.Equal(t, "alice@example.edu", user.Email)
	assert.Equal(t, model.RoleStudent, user.Role)
	assert.NotContains(t, w.Body.String(), "s3cret-pass")

	assertError(t, a.do(t, http.MethodPost, "/auth/register", "", register), http.StatusConflict, "EMAIL_REGISTERED")

	// 不允许自助注册为管理员
	w = a.do(t, http.MethodPost, "/auth/register", "", map[string]string{"name": "Eve", "email": "eve@example.edu", "password": "whatever1", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assertError(t, a.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.edu", "password": "wrong-pass"}),
		http.StatusUnauthorized, "UNAUTHORIZED")

	w = a.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.edu", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	decode(t, w, &login)
	require.NotEmpty(t, login.Token)

	w = a.do(t, http.MethodGet, "/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me model.User
	decode(t, w, &me)
	assert.Equal(t, user.ID, me.ID)
}

func TestRoleGating(t *testing.T) {
	a := newTestApp(t)

	assertError(t, a.do(t, http.MethodGet, "/evaluations", "", nil), http.StatusUnauthorized, "UNAUTHORIZED")
	assertError(t, a.do(t, http.MethodGet, "/evaluations", "not-a-jwt", nil), http.StatusUnauthorized, "UNAUTHORIZED")
	assertError(t, a.do(t, http.MethodGet, "/evaluations", a.tokenFor(t, a.fx.Students[0]), nil), http.StatusForbidden, "FORBIDDEN")
	assertError(t, a.do(t, http.MethodGet, "/quizzes/1", a.tokenFor(t, a.fx.Teacher), nil), http.StatusForbidden, "FORBIDDEN")

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/evaluations", a.tokenFor(t, a.fx.Teacher), nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/evaluations", a.tokenFor(t, a.fx.Admin), nil).Code)
}

func TestEvaluationLifecycleOverHTTP(t *testing.T) {
	a := newTestApp(t)
	teacher := a.tokenFor(t, a.fx.Teacher)
	student := a.tokenFor(t, a.fx.Students[0])
	now := time.Now().UTC()

	create := map[string]interface{}{
		"title":     "Week 4 feedback",
		"courseId":  a.fx.Course.ID,
		"classIds":  []uint{a.fx.Class.ID},
		"startTime": now.Add(-time.Hour),
		"endTime":   now.Add(48 * time.Hour),
		"questions": []map[string]interface{}{
			{"enonce": "How clear were the lectures?", "type": "MULTIPLE_CHOICE", "options": []string{"Poor", "Fair", "Good"}},
			{"enonce": "Anything else?", "type": "OPEN_TEXT"},
		},
	}
	w := a.do(t, http.MethodPost, "/evaluations", teacher, create)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Evaluation
	decode(t, w, &created)
	assert.Equal(t, model.StatusDraft, created.Status)

	w = a.do(t, http.MethodPost, fmt.Sprintf("/evaluations/%d/publish", created.ID), teacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var published model.Evaluation
	decode(t, w, &published)
	assert.Equal(t, model.StatusPublished, published.Status)
	require.NotNil(t, published.Quiz)
	require.Len(t, published.Quiz.Questions, 2)

	assertError(t, a.do(t, http.MethodPost, fmt.Sprintf("/evaluations/%d/publish", created.ID), teacher, nil),
		http.StatusBadRequest, "INVALID_STATUS")

	quizPath := fmt.Sprintf("/quizzes/%d", published.Quiz.ID)
	w = a.do(t, http.MethodGet, quizPath, student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	answers := map[string]interface{}{
		"isFinal": true,
		"answers": []map[string]interface{}{
			{"questionId": published.Quiz.Questions[0].ID, "content": "Good"},
			{"questionId": published.Quiz.Questions[1].ID, "content": "More examples please"},
		},
	}
	w = a.do(t, http.MethodPost, quizPath+"/submit", student, answers)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result struct {
		Token  string              `json:"token"`
		Status model.SessionStatus `json:"status"`
	}
	decode(t, w, &result)
	assert.Equal(t, model.SessionDone, result.Status)
	assert.NotEmpty(t, result.Token)
	assert.NotContains(t, w.Body.String(), fmt.Sprintf(`"studentId":%d`, a.fx.Students[0].ID))

	w = a.do(t, http.MethodGet, fmt.Sprintf("/evaluations/%d/participation", created.ID), teacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var participation struct {
		Eligible  int64 `json:"eligible"`
		Completed int64 `json:"completed"`
	}
	decode(t, w, &participation)
	assert.EqualValues(t, 2, participation.Eligible)
	assert.EqualValues(t, 1, participation.Completed)

	w = a.do(t, http.MethodPost, fmt.Sprintf("/evaluations/%d/close", created.ID), teacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assertError(t, a.do(t, http.MethodPost, fmt.Sprintf("/evaluations/%d/close", created.ID), teacher, nil),
		http.StatusBadRequest, "ALREADY_CLOSED")

	assertError(t, a.do(t, http.MethodPost, quizPath+"/submit", student, answers), http.StatusForbidden, "EVALUATION_NOT_OPEN")
	assertError(t, a.do(t, http.MethodDelete, fmt.Sprintf("/evaluations/%d", created.ID), teacher, nil), http.StatusConflict, "HAS_SUBMISSIONS")
}

func TestPublishWithoutQuestions(t *testing.T) {
	a := newTestApp(t)
	teacher := a.tokenFor(t, a.fx.Teacher)
	now := time.Now().UTC()

	w := a.do(t, http.MethodPost, "/evaluations", teacher, map[string]interface{}{
		"title":     "Empty",
		"courseId":  a.fx.Course.ID,
		"classIds":  []uint{a.fx.Class.ID},
		"startTime": now,
		"endTime":   now.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Evaluation
	decode(t, w, &created)

	assertError(t, a.do(t, http.MethodPost, fmt.Sprintf("/evaluations/%d/publish", created.ID), teacher, nil),
		http.StatusBadRequest, "NO_QUESTIONS")
	assertError(t, a.do(t, http.MethodPost, "/evaluations/9999/publish", teacher, nil), http.StatusNotFound, "NOT_FOUND")

	// endTime 不晚于 startTime
	w = a.do(t, http.MethodPost, "/evaluations", teacher, map[string]interface{}{
		"title":     "Backwards",
		"courseId":  a.fx.Course.ID,
		"classIds":  []uint{a.fx.Class.ID},
		"startTime": now,
		"endTime":   now.Add(-time.Hour),
	})
	assertError(t, w, http.StatusBadRequest, "VALIDATION")
}

func TestPreferencesAndDevices(t *testing.T) {
	a := newTestApp(t)
	student := a.tokenFor(t, a.fx.Students[0])

	w := a.do(t, http.MethodGet, "/push-notifications/preferences", student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pref model.NotificationPreference
	decode(t, w, &pref)
	assert.True(t, pref.InAppEnabled)

	w = a.do(t, http.MethodPut, "/push-notifications/preferences", student, map[string]interface{}{"quietHoursStart": "25:00"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPut, "/push-notifications/preferences", student, map[string]interface{}{
		"pushEnabled":       false,
		"reminderFrequency": "FINAL_ONLY",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &pref)
	assert.False(t, pref.PushEnabled)
	assert.Equal(t, model.ReminderFinalOnly, pref.ReminderFrequency)

	w = a.do(t, http.MethodPost, "/push-notifications/register", student, map[string]string{"token": "fcm-token-1", "platform": "Android"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var device model.DeviceEndpoint
	decode(t, w, &device)
	assert.Equal(t, "android", device.Platform)
	assert.True(t, device.IsActive)

	w = a.do(t, http.MethodPost, "/push-notifications/unregister", student, map[string]string{"token": "fcm-token-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assertError(t, a.do(t, http.MethodPost, "/push-notifications/unregister", student, map[string]string{"token": "unknown"}),
		http.StatusNotFound, "NOT_FOUND")

	w = a.do(t, http.MethodGet, "/notifications/unread-count", student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["jobs"], 4)
}

func TestEvaluationOwnershipOverHTTP(t *testing.T) {
	a := newTestApp(t)
	owner := a.tokenFor(t, a.fx.Teacher)
	intruder := a.tokenFor(t, testdb.CreateUser(t, a.DB, "intruder", model.RoleTeacher))
	now := time.Now().UTC()

	w := a.do(t, http.MethodPost, "/evaluations", owner, map[string]interface{}{
		"title":     "Owned",
		"courseId":  a.fx.Course.ID,
		"classIds":  []uint{a.fx.Class.ID},
		"startTime": now,
		"endTime":   now.Add(time.Hour),
		"questions": []map[string]interface{}{{"enonce": "Thoughts?", "type": "OPEN_TEXT"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Evaluation
	decode(t, w, &created)
	base := fmt.Sprintf("/evaluations/%d", created.ID)

	assertError(t, a.do(t, http.MethodGet, base, intruder, nil), http.StatusForbidden, "FORBIDDEN")
	assertError(t, a.do(t, http.MethodGet, base+"/participation", intruder, nil), http.StatusForbidden, "FORBIDDEN")
	assertError(t, a.do(t, http.MethodPost, base+"/questions", intruder, map[string]string{"enonce": "x", "type": "OPEN_TEXT"}), http.StatusForbidden, "FORBIDDEN")
	assertError(t, a.do(t, http.MethodPost, base+"/publish", intruder, nil), http.StatusForbidden, "FORBIDDEN")
	assertError(t, a.do(t, http.MethodPost, base+"/close", intruder, nil), http.StatusForbidden, "FORBIDDEN")
	assertError(t, a.do(t, http.MethodPost, base+"/archive", intruder, nil), http.StatusForbidden, "FORBIDDEN")
	assertError(t, a.do(t, http.MethodDelete, base, intruder, nil), http.StatusForbidden, "FORBIDDEN")

	w = a.do(t, http.MethodGet, base, owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var loaded model.Evaluation
	decode(t, w, &loaded)
	assert.Equal(t, model.StatusDraft, loaded.Status)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, base+"/publish", a.tokenFor(t, a.fx.Admin), nil).Code)
}
