package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"attendance/internal/store"
)

const (
	courseColumns     = `id, name, code, description, is_active, created_at`
	credentialColumns = `id, code, location_id, image_url, is_active, created_at`
	locationColumns   = `id, name, latitude, longitude, radius_meters, is_active`
)

// Repository persists courses, credentials and locations in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(row scanner) (Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.Name, &c.Code, &c.Description, &c.Active, &c.CreatedAt)
	return c, err
}

func scanCredential(row scanner) (Credential, error) {
	var c Credential
	err := row.Scan(&c.ID, &c.Code, &c.LocationID, &c.ImageURL, &c.Active, &c.CreatedAt)
	return c, err
}

func scanLocation(row scanner) (Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude, &l.RadiusMeters, &l.Active)
	return l, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ActiveCredentialByCode looks a credential up by exact code; inactive codes are not returned.
func (r *Repository) ActiveCredentialByCode(ctx context.Context, code string) (Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM scan_credentials WHERE code = $1 AND is_active
	`, code)
	c, err := scanCredential(row)
	return c, notFound(err)
}

// ActiveCourse returns an active course by id.
func (r *Repository) ActiveCourse(ctx context.Context, id string) (Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+courseColumns+`
		FROM courses WHERE id = $1 AND is_active
	`, id)
	c, err := scanCourse(row)
	return c, notFound(err)
}

// ActiveLocations returns every location currently accepting check-ins.
func (r *Repository) ActiveLocations(ctx context.Context) ([]Location, error) {
	return r.listLocations(ctx, true)
}

// ListLocations returns all locations ordered by name.
func (r *Repository) ListLocations(ctx context.Context) ([]Location, error) {
	return r.listLocations(ctx, false)
}

func (r *Repository) listLocations(ctx context.Context, activeOnly bool) ([]Location, error) {
	query := `SELECT ` + locationColumns + ` FROM organization_locations`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// ListCourses returns courses ordered by code.
func (r *Repository) ListCourses(ctx context.Context, activeOnly bool) ([]Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY code`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// InsertCourse writes a new course.
func (r *Repository) InsertCourse(ctx context.Context, c Course) (Course, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (id, name, code, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.Name, c.Code, c.Description, c.Active)
	if err := row.Scan(&c.CreatedAt); err != nil {
		if store.IsUniqueViolation(err, "uq_courses_code") {
			return Course{}, ErrCodeTaken
		}
		return Course{}, fmt.Errorf("insert course: %w", err)
	}
	return c, nil
}

// SetCourseActive toggles a course.
func (r *Repository) SetCourseActive(ctx context.Context, id string, active bool) error {
	return r.execOne(ctx, `UPDATE courses SET is_active = $2 WHERE id = $1`, id, active)
}

// InsertLocation writes a new location.
func (r *Repository) InsertLocation(ctx context.Context, l Location) (Location, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organization_locations (id, name, latitude, longitude, radius_meters, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.ID, l.Name, l.Latitude, l.Longitude, l.RadiusMeters, l.Active)
	if err != nil {
		return Location{}, fmt.Errorf("insert location: %w", err)
	}
	return l, nil
}

// SetLocationActive toggles a location.
func (r *Repository) SetLocationActive(ctx context.Context, id string, active bool) error {
	return r.execOne(ctx, `UPDATE organization_locations SET is_active = $2 WHERE id = $1`, id, active)
}

// InsertCredential writes a new credential.
func (r *Repository) InsertCredential(ctx context.Context, c Credential) (Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO scan_credentials (id, code, location_id, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.Code, c.LocationID, c.Active)
	if err := row.Scan(&c.CreatedAt); err != nil {
		if store.IsUniqueViolation(err, "uq_scan_credentials_code") {
			return Credential{}, ErrCodeTaken
		}
		if store.IsForeignKeyViolation(err, "fk_scan_credentials_location") {
			return Credential{}, fmt.Errorf("%w: unknown location", ErrInvalid)
		}
		return Credential{}, fmt.Errorf("insert credential: %w", err)
	}
	return c, nil
}

// CredentialByCode returns a credential regardless of its active flag.
func (r *Repository) CredentialByCode(ctx context.Context, code string) (Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM scan_credentials WHERE code = $1
	`, code)
	c, err := scanCredential(row)
	return c, notFound(err)
}

// DeactivateCredential disables a code permanently. There is no way back to active.
func (r *Repository) DeactivateCredential(ctx context.Context, code string) error {
	return r.execOne(ctx, `UPDATE scan_credentials SET is_active = FALSE WHERE code = $1`, code)
}

// SetCredentialImage records where the rendered image of a credential lives.
func (r *Repository) SetCredentialImage(ctx context.Context, id, url string) error {
	return r.execOne(ctx, `UPDATE scan_credentials SET image_url = $2 WHERE id = $1`, id, url)
}

func (r *Repository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
