package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/handler"
	internalmiddleware "github.com/noah-isme/lms-core-api/internal/middleware"
	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	"github.com/noah-isme/lms-core-api/pkg/config"
	"github.com/noah-isme/lms-core-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lms-core-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-core-api/pkg/middleware/requestid"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// AccessResolver turns token claims into the per-request capability set.
type AccessResolver interface {
	Resolve(ctx context.Context, claims *models.JWTClaims) (*models.AccessContext, error)
}

// AuditWriter persists request-level audit rows.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Deps carries everything the router mounts.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Tokens  TokenValidator
	Access  AccessResolver
	Audit   AuditWriter
	Metrics *service.MetricsService
	Ready   ReadinessCheck

	Courses     *handler.CourseHandler
	Methods     *handler.EnrollmentMethodHandler
	Enrollments *handler.EnrollmentHandler
	Grades      *handler.GradeHandler
	Permissions *handler.PermissionHandler
	Exports     *handler.ExportHandler
	Admin       *handler.AdminHandler
}

// NewRouter assembles the gin engine with the global middleware chain and every API route.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.Logger))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(d.Metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if d.Ready != nil {
			if err := d.Ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", d.Admin.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Catalogue reads work anonymously; a valid token widens what is visible.
	public := api.Group("")
	public.Use(internalmiddleware.OptionalJWT(d.Tokens), internalmiddleware.Access(d.Access))
	public.GET("/courses", d.Courses.List)
	public.GET("/courses/:id", d.Courses.Get)
	public.GET("/courses/:id/enrollment-methods/available", d.Methods.Available)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(d.Tokens), internalmiddleware.Access(d.Access))

	courses := secured.Group("/courses")
	courses.POST("", d.Courses.Create)
	courses.PATCH("/:id", d.Courses.Update)
	courses.DELETE("/:id", d.Courses.Delete)
	courses.POST("/:id/submit", d.Courses.Submit)
	courses.POST("/:id/approve", d.Courses.Approve)
	courses.POST("/:id/reject", d.Courses.Reject)
	courses.POST("/:id/publish", d.Courses.Publish)
	courses.POST("/:id/archive", d.Courses.Archive)
	courses.POST("/:id/restore", d.Courses.Restore)

	courses.GET("/:id/enrollment-methods", d.Methods.List)
	courses.POST("/:id/enrollment-methods", d.Methods.Create)
	courses.GET("/:id/participants", d.Enrollments.Participants)
	courses.POST("/:id/participants", d.Enrollments.AddParticipant)
	courses.GET("/:id/enrollment-requests", d.Enrollments.Requests)
	courses.GET("/:id/grades/summary", d.Grades.Summary)
	courses.GET("/:id/exports/roster", internalmiddleware.Audit(d.Audit, d.Logger, models.AuditActionExport, "course", "id"), d.Exports.Roster)
	courses.GET("/:id/exports/gradebook", internalmiddleware.Audit(d.Audit, d.Logger, models.AuditActionExport, "course", "id"), d.Exports.Gradebook)

	courses.GET("/:id/permissions", d.Permissions.List)
	courses.POST("/:id/permissions", internalmiddleware.Audit(d.Audit, d.Logger, models.AuditActionPermissionGrant, "course", "id"), d.Permissions.Grant)
	courses.DELETE("/:id/permissions/:userId", internalmiddleware.Audit(d.Audit, d.Logger, models.AuditActionPermissionRevoke, "course", "id"), d.Permissions.Revoke)

	methods := secured.Group("/enrollment-methods")
	methods.PUT("/:id", d.Methods.Update)
	methods.DELETE("/:id", d.Methods.Delete)
	methods.POST("/:id/enroll", d.Enrollments.Enroll)
	methods.POST("/:id/bulk", d.Enrollments.Bulk)

	enrollments := secured.Group("/enrollments")
	enrollments.PATCH("/:id/status", d.Enrollments.UpdateStatus)
	enrollments.PATCH("/:id/progress", d.Enrollments.UpdateProgress)
	enrollments.DELETE("/:id", d.Enrollments.Remove)

	secured.GET("/me/enrollments", d.Enrollments.Mine)
	secured.POST("/enrollment-requests/:id/review", d.Enrollments.Review)
	secured.POST("/submissions/:id/grade", d.Grades.Grade)

	admin := secured.Group("/admin", internalmiddleware.RequireAdmin())
	admin.GET("/metrics", d.Admin.Metrics)
	admin.POST("/reconcile", d.Admin.ReconcileAll)
	admin.POST("/courses/:id/reconcile", d.Admin.ReconcileCourse)

	return r
}
