package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type permissionStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.Permission, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Permission, error)
	Upsert(ctx context.Context, perm *models.Permission) error
	Delete(ctx context.Context, userID, courseID string) error
}

// AccessService resolves the caller's capability set and administers per-course grants.
type AccessService struct {
	perms   permissionStore
	courses courseReader
	cache   *CacheService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewAccessService constructs the service. cache may be nil.
func NewAccessService(perms permissionStore, courses courseReader, cache *CacheService, ttl time.Duration, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{perms: perms, courses: courses, cache: cache, ttl: ttl, logger: logger}
}

// Resolve builds the AccessContext for token claims. Admins skip the grant lookup.
func (s *AccessService) Resolve(ctx context.Context, claims *models.JWTClaims) (*models.AccessContext, error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	access := &models.AccessContext{UserID: claims.UserID, Role: claims.Role, Grants: map[string]models.PermissionLevel{}}
	if access.IsAdmin() {
		return access, nil
	}

	key := accessCacheKey(claims.UserID)
	var cached map[string]models.PermissionLevel
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		if cached != nil {
			access.Grants = cached
		}
		return access, nil
	}

	perms, err := s.perms.ListByUser(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load permissions")
	}
	for _, p := range perms {
		if p.Level.Covers(access.Grants[p.CourseID]) {
			access.Grants[p.CourseID] = p.Level
		}
	}
	_ = s.cache.Set(ctx, key, access.Grants, s.ttl)
	return access, nil
}

// ListGrants returns the grants on a course; manage permission required.
func (s *AccessService) ListGrants(ctx context.Context, access *models.AccessContext, courseID string) ([]models.Permission, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if !access.CanManage(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "manage permission required")
	}
	perms, err := s.perms.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list permissions")
	}
	return perms, nil
}

// Grant gives userID a level on the course.
func (s *AccessService) Grant(ctx context.Context, access *models.AccessContext, courseID, userID string, level models.PermissionLevel) (*models.Permission, error) {
	if !level.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "level must be view, edit or manage")
	}
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user_id is required")
	}
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if !access.CanManage(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "manage permission required")
	}
	grantedBy := access.UserID
	perm := &models.Permission{UserID: userID, CourseID: courseID, Level: level, GrantedBy: &grantedBy}
	if err := s.perms.Upsert(ctx, perm); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant permission")
	}
	s.forget(ctx, userID)
	return perm, nil
}

// Revoke removes userID's grant on the course.
func (s *AccessService) Revoke(ctx context.Context, access *models.AccessContext, courseID, userID string) error {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return err
	}
	if !access.CanManage(course) {
		return appErrors.Clone(appErrors.ErrForbidden, "manage permission required")
	}
	if err := s.perms.Delete(ctx, userID, courseID); err != nil {
		return notFoundOr(err, "permission not found", "failed to revoke permission")
	}
	s.forget(ctx, userID)
	return nil
}

func (s *AccessService) forget(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, accessCacheKey(userID)); err != nil {
		s.logger.Warn("failed to drop cached grants", zap.String("user_id", userID), zap.Error(err))
	}
}
