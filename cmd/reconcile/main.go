package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/repository"
	"github.com/noah-isme/lms-core-api/internal/service"
	"github.com/noah-isme/lms-core-api/pkg/config"
	"github.com/noah-isme/lms-core-api/pkg/database"
	"github.com/noah-isme/lms-core-api/pkg/logger"
)

// reconcile recomputes the denormalized enrollment counters from the enrollment rows and prints
// the drift it repaired as JSON.
func main() {
	courseID := flag.String("course", "", "reconcile a single course instead of all courses")
	workers := flag.Int("workers", 4, "courses reconciled concurrently")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	enrollments := repository.NewEnrollmentRepository(db)
	svc := service.NewReconcileService(enrollments, repository.NewCourseRepository(db), repository.NewUserRepository(db), nil, *workers, logr)
	system := &models.AccessContext{Role: models.RoleSuperAdmin}

	var result interface{}
	if *courseID != "" {
		result, err = svc.ReconcileCourse(ctx, system, *courseID)
	} else {
		result, err = svc.ReconcileAll(ctx, system)
	}
	if err != nil {
		logr.Sugar().Errorw("reconciliation failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logr.Sugar().Errorw("failed to write report", "error", err)
		os.Exit(1)
	}
}
