package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendance/internal/attendance"
	"attendance/internal/users"
)

type reportEntry struct {
	recordResponse
	UserID       string  `json:"user_id"`
	Username     string  `json:"username"`
	UserRole     string  `json:"user_role"`
	CourseCode   string  `json:"course_code"`
	CourseName   string  `json:"course_name"`
	LocationID   *string `json:"location_id,omitempty"`
	LocationName *string `json:"location_name,omitempty"`
}

// Report returns filtered attendance with per-role, per-course and
// per-location counts. The date filter defaults to today; date=all disables it.
func (h *Handler) Report(c *gin.Context) {
	var f attendance.Filter

	switch d := c.Query("date"); d {
	case "":
		today := h.attendance.Today()
		f.Date = &today
	case "all":
	default:
		day, err := time.Parse(attendance.DateLayout, d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		f.Date = &day
	}
	for param, dst := range map[string]*string{"course_id": &f.CourseID, "location_id": &f.LocationID} {
		v := c.Query(param)
		if v == "" {
			continue
		}
		if _, err := uuid.Parse(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be a uuid"})
			return
		}
		*dst = v
	}
	if role := c.Query("user_role"); role != "" {
		if !users.Role(role).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown user_role"})
			return
		}
		f.UserRole = role
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			f.Offset = parsed
		}
	}

	rep, err := h.attendance.Report(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("report query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	entries := make([]reportEntry, len(rep.Entries))
	for i, e := range rep.Entries {
		entries[i] = reportEntry{
			recordResponse: toRecordResponse(e.Record),
			UserID:         e.UserID,
			Username:       e.Username,
			UserRole:       e.UserRole,
			CourseCode:     e.CourseCode,
			CourseName:     e.CourseName,
			LocationID:     e.LocationID,
			LocationName:   e.LocationName,
		}
	}
	filters := gin.H{"course_id": f.CourseID, "user_role": f.UserRole, "location_id": f.LocationID}
	if f.Date != nil {
		filters["date"] = f.Date.Format(attendance.DateLayout)
	}
	c.JSON(http.StatusOK, gin.H{
		"filters":     filters,
		"entries":     entries,
		"total":       rep.Total,
		"by_role":     rep.ByRole,
		"by_course":   rep.ByCourse,
		"by_location": rep.ByLocation,
	})
}
