package app

import (
	"context"
	"course_eval_backend/internal/config"
	"course_eval_backend/internal/controller"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/scheduler"
	"course_eval_backend/internal/service"
	"course_eval_backend/internal/util"
	"course_eval_backend/pkg/configwatcher"
	"course_eval_backend/pkg/database"
	"course_eval_backend/pkg/logger"
	"course_eval_backend/pkg/mailer"
	"course_eval_backend/pkg/monitoring"
	"course_eval_backend/pkg/observability"
	"course_eval_backend/pkg/pusher"
	"course_eval_backend/pkg/security"
	"course_eval_backend/pkg/tracing"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config    *config.Config
	Router    *gin.Engine
	DB        *gorm.DB
	Redis     *redis.Client
	Scheduler *scheduler.Scheduler

	services        *services
	limiter         *security.Limiter
	tracer          *sdktrace.TracerProvider
	flushSentry     func()
	stopWatch       context.CancelFunc
	configCallbacks []func(*config.Config)
}

// Gateways 外部通知渠道，测试中可替换为假实现
type Gateways struct {
	Push  pusher.Gateway
	Email mailer.Gateway
}

type repositories struct {
	directory     *repository.DirectoryRepository
	evaluation    *repository.EvaluationRepository
	anonymization *repository.AnonymizationRepository
	submission    *repository.SubmissionRepository
	notification  *repository.NotificationRepository
	device        *repository.DeviceRepository
	preference    *repository.PreferenceRepository
	dispatchTask  *repository.DispatchTaskRepository
	user          *repository.UserRepository
	dashboard     *repository.DashboardRepository
}

type services struct {
	auth       *service.AuthService
	mapper     *service.AnonymizationService
	preference *service.PreferenceService
	device     *service.DeviceService
	inbox      *service.InboxService
	dispatcher *service.Dispatcher
	outbox     *service.Outbox
	evaluation *service.EvaluationService
	submission *service.SubmissionService
}

type controllers struct {
	auth             *controller.AuthController
	health           *controller.HealthController
	evaluation       *controller.EvaluationController
	quiz             *controller.QuizController
	pushNotification *controller.PushNotificationController
	notification     *controller.NotificationController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		directory:     repository.NewDirectoryRepository(db),
		evaluation:    repository.NewEvaluationRepository(db),
		anonymization: repository.NewAnonymizationRepository(db),
		submission:    repository.NewSubmissionRepository(db),
		notification:  repository.NewNotificationRepository(db),
		device:        repository.NewDeviceRepository(db),
		preference:    repository.NewPreferenceRepository(db),
		dispatchTask:  repository.NewDispatchTaskRepository(db),
		user:          repository.NewUserRepository(db),
		dashboard:     repository.NewDashboardRepository(db),
	}
}

func (a *App) initServices(r *repositories, cfg *config.Config, gw Gateways) *services {
	ncfg := cfg.Notification
	mapper := service.NewAnonymizationService(r.anonymization, cfg.Anonymization.Secret)
	preference := service.NewPreferenceService(r.preference, ncfg.QuietHoursStart, ncfg.QuietHoursEnd)
	dispatcher := service.NewDispatcher(r.notification, r.device, r.directory, preference, gw.Push, gw.Email, ncfg)
	outbox := service.NewOutbox(r.dispatchTask, r.evaluation, r.directory, preference, mapper, dispatcher, ncfg.Outbox)

	return &services{
		auth:       service.NewAuthService(r.user, cfg.JWT),
		mapper:     mapper,
		preference: preference,
		device:     service.NewDeviceService(r.device),
		inbox:      service.NewInboxService(r.notification),
		dispatcher: dispatcher,
		outbox:     outbox,
		evaluation: service.NewEvaluationService(r.evaluation, r.directory, r.dashboard, outbox),
		submission: service.NewSubmissionService(r.submission, r.evaluation, r.directory, mapper, outbox),
	}
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:             controller.NewAuthController(s.auth),
		health:           controller.NewHealthController(a.DB, a.Redis, a.Scheduler),
		evaluation:       controller.NewEvaluationController(s.evaluation),
		quiz:             controller.NewQuizController(s.submission),
		pushNotification: controller.NewPushNotificationController(s.device, s.preference),
		notification:     controller.NewNotificationController(s.inbox),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	a.limiter = security.NewLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// New 在已就绪的数据库/Redis 之上装配业务组件，不启动任何后台任务
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, gw Gateways) (*App, error) {
	if err := util.RegisterValidators(); err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	var opts []scheduler.Option
	opts = append(opts, scheduler.WithLocation(time.UTC))
	if rdb != nil {
		opts = append(opts, scheduler.WithLocker(scheduler.NewRedisLocker(rdb)))
	}
	app.Scheduler = scheduler.New(opts...)

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, gw)
	if err := scheduler.RegisterJobs(app.Scheduler, cfg.Scheduler, app.services.evaluation, app.services.device); err != nil {
		return nil, err
	}

	controllers := app.initControllers(app.services)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)
	app.Router = router

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		app.services.dispatcher.UpdateSettings(newCfg.Notification)
	})
	return app, nil
}

func newGateways(cfg *config.NotificationConfig) Gateways {
	var gw Gateways
	switch cfg.Email.Provider {
	case "sendgrid":
		gw.Email = mailer.NewSendgridGateway(cfg.Email.SendGridAPIKey, cfg.Email.FromName, cfg.Email.FromEmail)
	default:
		gw.Email = mailer.NewConsoleGateway()
	}
	switch cfg.Push.Provider {
	case "fcm":
		gw.Push = pusher.NewFCMGateway(cfg.Push.Endpoint, cfg.Push.ServerKey, nil)
	default:
		gw.Push = pusher.NewConsoleGateway()
	}
	return gw
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	flushSentry, err := observability.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment, cfg.Sentry.Release)
	if err != nil {
		logger.Log.Error("Failed to initialize sentry", zap.Error(err))
	}

	migrate := cfg.ForceMigrate || cfg.Server.Mode != "release"
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
	}

	// 监控初始化
	monitoring.Init()

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tp, err = tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app, err := New(cfg, db, rdb, newGateways(&cfg.Notification))
	if err != nil {
		logger.Log.Fatal("Failed to assemble application", zap.Error(err))
	}
	app.tracer = tp
	app.flushSentry = flushSentry
	return app
}

func (a *App) startBackgroundTasks(configFile string) {
	go a.services.outbox.Run()
	if a.limiter != nil {
		go a.limiter.Run()
	}
	a.Scheduler.Run()

	ctx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel
	go func() {
		err := configwatcher.WatchConfig(ctx, configFile, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

// Run 启动 HTTP 服务与后台任务，收到信号后按顺序优雅退出
func (a *App) Run(configDir string) {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.startBackgroundTasks(filepath.Join(configDir, "config.yaml"))

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if err := a.Scheduler.Shutdown(ctx); err != nil {
		logger.Log.Warn("Scheduler did not stop in time", zap.Error(err))
	}
	a.services.outbox.Stop()
	a.limiter.Close()

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if a.flushSentry != nil {
		a.flushSentry()
	}
	logger.Log.Info("Server exiting")
}
