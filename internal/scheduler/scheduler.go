package scheduler

import (
	"context"
	"course_eval_backend/pkg/logger"
	"course_eval_backend/pkg/monitoring"
	"course_eval_backend/pkg/observability"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc 任务主体；返回的 error 只记录，不影响后续调度
type JobFunc func(ctx context.Context) error

// Locker 多实例部署时保证同一任务同一时刻只在一个实例上运行
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

type JobInfo struct {
	Name   string    `json:"name"`
	Spec   string    `json:"spec"`
	Active bool      `json:"active"`
	Next   time.Time `json:"next,omitempty"`
}

type job struct {
	name    string
	spec    string
	fn      JobFunc
	entryID cron.EntryID
	active  bool
}

// Scheduler 按名称管理周期任务；同名重复注册会替换旧任务
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	locker  Locker
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]*job
}

type Option func(*Scheduler)

func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithJobTimeout 单次运行的超时时间，同时用作分布式锁的 TTL
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cron = cron.New(cron.WithLocation(loc), cron.WithParser(s.parser), cron.WithLogger(cronLogger{}))
	}
}

func New(opts ...Option) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		parser:  parser,
		timeout: 10 * time.Minute,
		jobs:    make(map[string]*job),
	}
	s.cron = cron.New(cron.WithLocation(time.UTC), cron.WithParser(parser), cron.WithLogger(cronLogger{}))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register 新增或替换任务；替换时旧任务先从调度中移除
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if fn == nil {
		return fmt.Errorf("job %s: nil func", name)
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("job %s: invalid spec %q: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok && old.active {
		s.cron.Remove(old.entryID)
		logger.Log.Info("Replacing scheduled job", zap.String("job", name))
	}

	j := &job{name: name, spec: spec, fn: fn}
	if err := s.schedule(j); err != nil {
		return err
	}
	s.jobs[name] = j
	logger.Log.Info("Scheduled job registered", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) schedule(j *job) error {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(func() {
		_ = s.execute(context.Background(), j.name, j.fn)
	}))
	id, err := s.cron.AddJob(j.spec, wrapped)
	if err != nil {
		return fmt.Errorf("job %s: %w", j.name, err)
	}
	j.entryID = id
	j.active = true
	return nil
}

// Start 恢复一个已停止的任务
func (s *Scheduler) Start(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	if j.active {
		return nil
	}
	return s.schedule(j)
}

// Stop 停止调度但保留注册信息；正在运行的那一次不会被中断
func (s *Scheduler) Stop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	if j.active {
		s.cron.Remove(j.entryID)
		j.active = false
	}
	return nil
}

// RunNow 立即同步执行一次（手动触发与测试）
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	return s.execute(ctx, j.name, j.fn)
}

func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := JobInfo{Name: j.name, Spec: j.spec, Active: j.active}
		if j.active {
			info.Next = s.cron.Entry(j.entryID).Next
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Scheduler) Run() {
	s.cron.Start()
	logger.Log.Info("Scheduler started", zap.Int("jobs", len(s.Jobs())))
}

// Shutdown 停止触发新任务，并等待正在运行的任务结束
func (s *Scheduler) Shutdown(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		logger.Log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute 捕获 panic 与错误，保证一个任务失败不影响其它任务与后续运行
func (s *Scheduler) execute(parent context.Context, name string, fn JobFunc) (err error) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if s.locker != nil {
		release, ok, lockErr := s.locker.Acquire(ctx, name, s.timeout)
		if lockErr != nil {
			logger.Log.Warn("Job lock unavailable, running without it", zap.String("job", name), zap.Error(lockErr))
		} else if !ok {
			logger.Log.Debug("Job is running on another instance", zap.String("job", name))
			return nil
		} else {
			defer release()
		}
	}

	start := time.Now()
	monitoring.JobRuns.WithLabelValues(name).Inc()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
		monitoring.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			monitoring.JobErrors.WithLabelValues(name).Inc()
			observability.CaptureWithTags(err, map[string]string{"job": name})
			logger.Log.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		logger.Log.Debug("Scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}()

	return fn(ctx)
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
