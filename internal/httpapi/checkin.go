package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendance/internal/attendance"
	"attendance/internal/auth"
)

// coordinate accepts a JSON number or a numeric string. Anything else
// leaves it unset so the engine reports a missing location.
type coordinate struct {
	value *float64
}

func (c *coordinate) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		c.value = &t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			c.value = &f
		}
	}
	return nil
}

type checkInRequest struct {
	Code      string     `json:"code"`
	CourseID  string     `json:"course_id"`
	Latitude  coordinate `json:"latitude"`
	Longitude coordinate `json:"longitude"`
}

type recordResponse struct {
	ID           string    `json:"id"`
	CourseID     string    `json:"course_id"`
	CredentialID *string   `json:"credential_id,omitempty"`
	CheckInTime  time.Time `json:"check_in_time"`
	CheckInDate  string    `json:"check_in_date"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Valid        bool      `json:"valid"`
}

func toRecordResponse(r attendance.Record) recordResponse {
	return recordResponse{
		ID:           r.ID,
		CourseID:     r.CourseID,
		CredentialID: r.CredentialID,
		CheckInTime:  r.CheckInTime,
		CheckInDate:  r.Day(),
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		Valid:        r.Valid,
	}
}

var reasonStatus = map[attendance.Reason]int{
	attendance.ReasonMissingLocation:   http.StatusUnprocessableEntity,
	attendance.ReasonInvalidCredential: http.StatusBadRequest,
	attendance.ReasonUnknownCourse:     http.StatusNotFound,
	attendance.ReasonOutOfRange:        http.StatusForbidden,
	attendance.ReasonDuplicateCheckIn:  http.StatusConflict,
}

// CheckIn submits a check-in for the authenticated user.
func (h *Handler) CheckIn(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	out, err := h.attendance.SubmitCheckIn(c.Request.Context(), attendance.CheckInRequest{
		UserID:    claims.Subject,
		CourseID:  req.CourseID,
		Code:      req.Code,
		Latitude:  req.Latitude.value,
		Longitude: req.Longitude.value,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record attendance, try again"})
		return
	}

	if out.Accepted {
		c.JSON(http.StatusCreated, gin.H{
			"status":  "accepted",
			"message": out.Message(),
			"record":  toRecordResponse(out.Record),
		})
		return
	}
	status, ok := reasonStatus[out.Reason]
	if !ok {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{
		"status":   "rejected",
		"reason":   out.Reason,
		"severity": out.Reason.Severity(),
		"message":  out.Message(),
	})
}

// MyAttendance lists the caller's own records.
func (h *Handler) MyAttendance(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	entries, err := h.attendance.History(c.Request.Context(), claims.Subject, limit)
	if err != nil {
		h.logger.Error("history query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	records := make([]recordResponse, len(entries))
	for i, e := range entries {
		records[i] = toRecordResponse(e.Record)
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ActiveCourses lists courses open for check-in.
func (h *Handler) ActiveCourses(c *gin.Context) {
	courses, err := h.catalog.ListCourses(c.Request.Context(), true)
	if err != nil {
		h.logger.Error("list courses failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}
