package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendance/internal/catalog"
	"attendance/internal/qrimage"
)

type courseRequest struct {
	Name        string `json:"name" binding:"required"`
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
}

type activeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type locationRequest struct {
	Name         string   `json:"name" binding:"required"`
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	RadiusMeters *float64 `json:"radius_meters"`
}

type credentialRequest struct {
	Code       string  `json:"code"`
	LocationID *string `json:"location_id"`
}

// catalogError maps catalog sentinels to responses.
func (h *Handler) catalogError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, catalog.ErrCodeTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "code already exists"})
	case errors.Is(err, catalog.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) AllCourses(c *gin.Context) {
	courses, err := h.catalog.ListCourses(c.Request.Context(), false)
	if err != nil {
		h.catalogError(c, "list courses", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (h *Handler) CreateCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	course, err := h.catalog.CreateCourse(c.Request.Context(), req.Name, req.Code, req.Description)
	if err != nil {
		h.catalogError(c, "create course", err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// UpdateCourse toggles whether a course accepts check-ins.
func (h *Handler) UpdateCourse(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.catalog.SetCourseActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		h.catalogError(c, "update course", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": *req.Active})
}

func (h *Handler) ListLocations(c *gin.Context) {
	locations, err := h.catalog.ListLocations(c.Request.Context())
	if err != nil {
		h.catalogError(c, "list locations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locations})
}

func (h *Handler) CreateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loc, err := h.catalog.CreateLocation(c.Request.Context(), catalog.LocationInput{
		Name:         req.Name,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		RadiusMeters: req.RadiusMeters,
	})
	if err != nil {
		h.catalogError(c, "create location", err)
		return
	}
	c.JSON(http.StatusCreated, loc)
}

// UpdateLocation activates or deactivates a site. Inactive sites are
// ignored by the geofence.
func (h *Handler) UpdateLocation(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.catalog.SetLocationActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		h.catalogError(c, "update location", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": *req.Active})
}

func (h *Handler) IssueCredential(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cred, err := h.catalog.IssueCredential(c.Request.Context(), req.Code, req.LocationID)
	if err != nil {
		h.catalogError(c, "issue credential", err)
		return
	}
	c.JSON(http.StatusCreated, cred)
}

// DeactivateCredential permanently retires a code.
func (h *Handler) DeactivateCredential(c *gin.Context) {
	if err := h.catalog.DeactivateCredential(c.Request.Context(), c.Param("code")); err != nil {
		h.catalogError(c, "deactivate credential", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CredentialImage renders the printable QR for a credential.
func (h *Handler) CredentialImage(c *gin.Context) {
	cred, err := h.catalog.Credential(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.catalogError(c, "load credential", err)
		return
	}
	png, err := qrimage.PNG(cred.Code, qrimage.DefaultSize)
	if err != nil {
		h.logger.Error("render qr failed", zap.Error(err), zap.String("code", cred.Code))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+qrimage.Filename(cred.Code)+`"`)
	c.Data(http.StatusOK, "image/png", png)
}
