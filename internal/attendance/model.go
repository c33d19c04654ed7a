package attendance

import (
	"errors"
	"fmt"
	"time"

	"attendance/internal/catalog"
)

// DateLayout formats the calendar date of a check-in.
const DateLayout = "2006-01-02"

// Record is an accepted check-in. Records are never updated once written.
type Record struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	CredentialID *string   `json:"credential_id,omitempty"`
	CheckInTime  time.Time `json:"check_in_time"`
	CheckInDate  time.Time `json:"-"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Valid        bool      `json:"valid"`
	CreatedAt    time.Time `json:"created_at"`
}

// Day returns the calendar date the record counts towards.
func (r Record) Day() string { return r.CheckInDate.Format(DateLayout) }

// Entry is a record joined with the attributes reports group by.
type Entry struct {
	Record
	Username     string  `json:"username"`
	UserRole     string  `json:"user_role"`
	CourseCode   string  `json:"course_code"`
	CourseName   string  `json:"course_name"`
	LocationID   *string `json:"location_id,omitempty"`
	LocationName *string `json:"location_name,omitempty"`
}

// Reason explains why a check-in was rejected.
type Reason string

const (
	ReasonMissingLocation   Reason = "missing_location"
	ReasonInvalidCredential Reason = "invalid_credential"
	ReasonUnknownCourse     Reason = "unknown_course"
	ReasonOutOfRange        Reason = "out_of_range"
	ReasonDuplicateCheckIn  Reason = "duplicate_checkin"
)

// Severity is "warning" for duplicates and "error" for every other reason.
func (r Reason) Severity() string {
	if r == ReasonDuplicateCheckIn {
		return "warning"
	}
	return "error"
}

// Message is the user-facing copy for a rejection.
func (r Reason) Message() string {
	switch r {
	case ReasonMissingLocation:
		return "Location permission is required to sign in."
	case ReasonInvalidCredential:
		return "Invalid QR code."
	case ReasonUnknownCourse:
		return "Course not found."
	case ReasonOutOfRange:
		return "You must be within the organization premises to sign in."
	case ReasonDuplicateCheckIn:
		return "You have already signed in for this course today."
	}
	return string(r)
}

// Outcome is the result of a check-in attempt. Exactly one of Record or
// Reason is meaningful, depending on Accepted. Course is set once the course
// has been resolved.
type Outcome struct {
	Accepted bool
	Record   Record
	Reason   Reason
	Course   catalog.Course
	// Sites lists the ids of the locations containing the check-in point.
	Sites []string
}

// Message is the user-facing copy for the outcome, naming the course where known.
func (o Outcome) Message() string {
	switch {
	case o.Accepted:
		return fmt.Sprintf("Successfully signed in for %s!", o.Course.Name)
	case o.Reason == ReasonDuplicateCheckIn && o.Course.Name != "":
		return fmt.Sprintf("You have already signed in for %s today.", o.Course.Name)
	}
	return o.Reason.Message()
}

func accepted(r Record, c catalog.Course, sites []string) Outcome {
	return Outcome{Accepted: true, Record: r, Course: c, Sites: sites}
}

func rejected(reason Reason) Outcome { return Outcome{Reason: reason} }

func duplicate(c catalog.Course) Outcome { return Outcome{Reason: ReasonDuplicateCheckIn, Course: c} }

// CheckInRequest carries one check-in attempt. Coordinates are pointers so
// that absent values can be told apart from zero.
type CheckInRequest struct {
	UserID    string
	CourseID  string
	Code      string
	Latitude  *float64
	Longitude *float64
}

// ErrDuplicate is returned by a Ledger when a record for the same user,
// course and day already exists.
var ErrDuplicate = errors.New("attendance already recorded for this day")

// ErrStorage matches every StorageError via errors.Is.
var ErrStorage = errors.New("attendance storage failure")

// StorageError reports a storage fault that aborted a check-in. No record is
// persisted when it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "attendance: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
