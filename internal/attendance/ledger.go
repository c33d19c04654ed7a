package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"attendance/internal/store"
)

// Ledger is the append-only store of accepted check-ins.
type Ledger interface {
	Append(ctx context.Context, rec Record) (Record, error)
	ExistsForDay(ctx context.Context, userID, courseID string, day time.Time) (bool, error)
	Query(ctx context.Context, f Filter) ([]Entry, error)
}

// Filter narrows a ledger query. Zero fields are ignored; set fields combine with AND.
type Filter struct {
	Date       *time.Time
	CourseID   string
	UserID     string
	UserRole   string
	LocationID string
	Limit      int
	Offset     int
}

// Repository is the Postgres ledger. Uniqueness of (user, course, day) is
// enforced by the uq_attendance_daily constraint.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append inserts rec. A second record for the same user, course and day
// yields ErrDuplicate, including when two inserts race.
func (r *Repository) Append(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, user_id, course_id, credential_id, check_in_time, check_in_date, latitude, longitude, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT uq_attendance_daily DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.UserID, rec.CourseID, rec.CredentialID, rec.CheckInTime,
		rec.CheckInDate.Format(DateLayout), rec.Latitude, rec.Longitude, rec.Valid)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) || store.IsUniqueViolation(err, "uq_attendance_daily") {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// ExistsForDay reports whether the user already has a record for the course on day.
func (r *Repository) ExistsForDay(ctx context.Context, userID, courseID string, day time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE user_id = $1 AND course_id = $2 AND check_in_date = $3
		)
	`, userID, courseID, day.Format(DateLayout)).Scan(&exists)
	return exists, err
}

const entrySelect = `
	SELECT a.id, a.user_id, a.course_id, a.credential_id, a.check_in_time, a.check_in_date,
		a.latitude, a.longitude, a.is_valid, a.created_at,
		u.username, u.role, c.code, c.name, sc.location_id, l.name
	FROM attendance_records a
	JOIN users u ON u.id = a.user_id
	JOIN courses c ON c.id = a.course_id
	LEFT JOIN scan_credentials sc ON sc.id = a.credential_id
	LEFT JOIN organization_locations l ON l.id = sc.location_id`

// Query returns matching records, newest first. Ties on check-in time are
// broken by id so identical filters always produce identical sequences.
func (r *Repository) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, clause+" = $"+strconv.Itoa(len(args)))
	}
	if f.Date != nil {
		add("a.check_in_date", f.Date.Format(DateLayout))
	}
	if f.CourseID != "" {
		add("a.course_id", f.CourseID)
	}
	if f.UserID != "" {
		add("a.user_id", f.UserID)
	}
	if f.UserRole != "" {
		add("u.role", f.UserRole)
	}
	if f.LocationID != "" {
		add("sc.location_id", f.LocationID)
	}

	query := entrySelect
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY a.check_in_time DESC, a.id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.CredentialID, &e.CheckInTime, &e.CheckInDate,
			&e.Latitude, &e.Longitude, &e.Valid, &e.CreatedAt,
			&e.Username, &e.UserRole, &e.CourseCode, &e.CourseName, &e.LocationID, &e.LocationName); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
