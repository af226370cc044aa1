package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lms-core-api/api/swagger"
	"github.com/noah-isme/lms-core-api/internal/handler"
	"github.com/noah-isme/lms-core-api/internal/repository"
	"github.com/noah-isme/lms-core-api/internal/server"
	"github.com/noah-isme/lms-core-api/internal/service"
	"github.com/noah-isme/lms-core-api/migrations"
	"github.com/noah-isme/lms-core-api/pkg/cache"
	"github.com/noah-isme/lms-core-api/pkg/config"
	"github.com/noah-isme/lms-core-api/pkg/database"
	"github.com/noah-isme/lms-core-api/pkg/jobs"
	"github.com/noah-isme/lms-core-api/pkg/logger"
	"github.com/noah-isme/lms-core-api/pkg/mailer"
)

// @title LMS Core API
// @version 1.0.0
// @description Course lifecycle, enrollment and grading API
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := database.NewMigrator(db, logr).Up(context.Background(), migrations.Files)
		if err != nil {
			logr.Sugar().Fatalw("failed to apply migrations", "error", err)
		}
		logr.Sugar().Infow("schema up to date", "applied", applied)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	sender, err := mailer.New(cfg.Notifications, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init mailer", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue("notifications", jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})

	router := buildRouter(cfg, logr, db, redisClient, queue, sender)
	queue.Start(ctx)
	defer queue.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func buildRouter(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, queue *jobs.Queue, sender mailer.Sender) http.Handler {
	validate := validator.New()
	metrics := service.NewMetricsService()

	courseRepo := repository.NewCourseRepository(db)
	methodRepo := repository.NewEnrollmentMethodRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	requestRepo := repository.NewEnrollmentRequestRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	permissionRepo := repository.NewPermissionRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, cfg.Cache.Namespace)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.AccessTTL, logr, cfg.Cache.Enabled && redisClient != nil)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Audience: cfg.JWT.Audience})
	accessSvc := service.NewAccessService(permissionRepo, courseRepo, cacheSvc, cfg.Cache.AccessTTL, logr)
	notifier := service.NewNotificationService(queue, sender, userRepo, logr)

	courseSvc := service.NewCourseService(courseRepo, userRepo, metrics, validate, logr,
		service.WithAutoPublishOnApprove(cfg.Enrollment.AutoPublishOnApprove))
	methodSvc := service.NewEnrollmentMethodService(courseRepo, methodRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(courseRepo, methodRepo, enrollmentRepo, requestRepo, userRepo, validate, logr,
		service.WithEnrollmentNotifier(notifier),
		service.WithGroupAssigner(groupRepo),
		service.WithEnrollmentAudit(userRepo),
		service.WithEnrollmentMetrics(metrics),
		service.WithBulkMaxBatch(cfg.Enrollment.BulkMaxBatch),
	)
	gradeSvc := service.NewGradeService(courseRepo, gradeRepo, cacheSvc, cfg.Cache.GradeSummaryTTL, validate, logr)
	exportSvc := service.NewExportService(courseRepo, enrollmentRepo, gradeRepo, logr)
	reconcileSvc := service.NewReconcileService(enrollmentRepo, courseRepo, userRepo, metrics, 4, logr)

	return server.NewRouter(server.Deps{
		Config:  cfg,
		Logger:  logr,
		Tokens:  tokens,
		Access:  accessSvc,
		Audit:   userRepo,
		Metrics: metrics,
		Ready: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if redisClient != nil {
				if err := redisClient.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
		Courses:     handler.NewCourseHandler(courseSvc),
		Methods:     handler.NewEnrollmentMethodHandler(methodSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Grades:      handler.NewGradeHandler(gradeSvc),
		Permissions: handler.NewPermissionHandler(accessSvc),
		Exports:     handler.NewExportHandler(exportSvc),
		Admin:       handler.NewAdminHandler(metrics, reconcileSvc),
	})
}
