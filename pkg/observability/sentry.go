package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled bool

func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	enabled = true
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func CaptureErr(err error) {
	if err != nil && enabled {
		sentry.CaptureException(err)
	}
}

// CaptureWithTags 附带业务标签（job、evaluationId 等）
func CaptureWithTags(err error, tags map[string]string) {
	if err == nil || !enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}
