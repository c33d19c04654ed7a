// Package httpapi exposes the attendance service over HTTP with gin.
package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendance/internal/attendance"
	"attendance/internal/auth"
	"attendance/internal/catalog"
	"attendance/internal/httpmiddleware"
	"attendance/internal/users"
)

// Attendance is the check-in engine as seen by handlers.
type Attendance interface {
	SubmitCheckIn(ctx context.Context, req attendance.CheckInRequest) (attendance.Outcome, error)
	History(ctx context.Context, userID string, limit int) ([]attendance.Entry, error)
	Report(ctx context.Context, f attendance.Filter) (attendance.Report, error)
	Today() time.Time
}

// Catalog manages courses, locations and credentials.
type Catalog interface {
	ListCourses(ctx context.Context, activeOnly bool) ([]catalog.Course, error)
	CreateCourse(ctx context.Context, name, code, description string) (catalog.Course, error)
	SetCourseActive(ctx context.Context, id string, active bool) error
	CreateLocation(ctx context.Context, in catalog.LocationInput) (catalog.Location, error)
	ListLocations(ctx context.Context) ([]catalog.Location, error)
	SetLocationActive(ctx context.Context, id string, active bool) error
	IssueCredential(ctx context.Context, code string, locationID *string) (catalog.Credential, error)
	Credential(ctx context.Context, code string) (catalog.Credential, error)
	DeactivateCredential(ctx context.Context, code string) error
}

// Accounts registers and authenticates users.
type Accounts interface {
	Register(ctx context.Context, in users.RegisterInput) (users.User, error)
	Authenticate(ctx context.Context, login, password string) (users.User, error)
	Get(ctx context.Context, id string) (users.User, error)
}

// TokenConfig controls issued JWTs.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler serves the /v1 API.
type Handler struct {
	attendance Attendance
	catalog    Catalog
	accounts   Accounts
	tokens     TokenConfig
	logger     *zap.Logger
}

// NewHandler wires handlers to their services.
func NewHandler(att Attendance, cat Catalog, acc Accounts, tokens TokenConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{attendance: att, catalog: cat, accounts: acc, tokens: tokens, logger: logger}
}

// Register mounts every route on r. limiter, when non-nil, throttles
// check-ins per user.
func (h *Handler) Register(r gin.IRouter, limiter *httpmiddleware.RateLimiter) {
	v1 := r.Group("/v1")
	v1.POST("/auth/register", h.Signup)
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)

	authed := v1.Group("", auth.Bearer(h.tokens.SigningKey, h.tokens.Issuer))
	checkin := []gin.HandlerFunc{h.CheckIn}
	if limiter != nil {
		checkin = append([]gin.HandlerFunc{limiter.Middleware(userKey)}, checkin...)
	}
	authed.POST("/checkins", checkin...)
	authed.GET("/courses", h.ActiveCourses)
	authed.GET("/me/attendance", h.MyAttendance)

	admin := authed.Group("", auth.RequireRole(string(users.RoleAdmin)))
	admin.GET("/reports/attendance", h.Report)
	admin.GET("/admin/courses", h.AllCourses)
	admin.POST("/admin/courses", h.CreateCourse)
	admin.PATCH("/admin/courses/:id", h.UpdateCourse)
	admin.GET("/admin/locations", h.ListLocations)
	admin.POST("/admin/locations", h.CreateLocation)
	admin.PATCH("/admin/locations/:id", h.UpdateLocation)
	admin.POST("/admin/credentials", h.IssueCredential)
	admin.DELETE("/admin/credentials/:code", h.DeactivateCredential)
	admin.GET("/admin/credentials/:code/qr.png", h.CredentialImage)
}

func userKey(c *gin.Context) string {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Subject
}
