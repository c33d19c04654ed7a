package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendance/internal/geofence"
	"attendance/internal/queue"
)

// Service resolves scanned codes and courses for check-ins and manages the
// administrative catalog.
type Service struct {
	repo   *Repository
	jobs   queue.Queue
	logger *zap.Logger
}

// NewService creates a service backed by a repository. jobs may be nil, in
// which case no image rendering is requested for new credentials.
func NewService(repo *Repository, jobs queue.Queue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, jobs: jobs, logger: logger}
}

// ResolveCredential maps a scanned code to an active credential. Unknown and
// revoked codes both yield ErrNotFound.
func (s *Service) ResolveCredential(ctx context.Context, code string) (Credential, error) {
	if code == "" {
		return Credential{}, ErrNotFound
	}
	return s.repo.ActiveCredentialByCode(ctx, code)
}

// ResolveCourse returns an active course eligible for new check-ins.
func (s *Service) ResolveCourse(ctx context.Context, id string) (Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Course{}, ErrNotFound
	}
	return s.repo.ActiveCourse(ctx, id)
}

// ActiveRegions snapshots the geofences of all active locations.
func (s *Service) ActiveRegions(ctx context.Context) ([]geofence.Region, error) {
	locs, err := s.repo.ActiveLocations(ctx)
	if err != nil {
		return nil, err
	}
	regions := make([]geofence.Region, len(locs))
	for i, l := range locs {
		regions[i] = l.Region()
	}
	return regions, nil
}

// ListCourses returns courses, optionally only active ones.
func (s *Service) ListCourses(ctx context.Context, activeOnly bool) ([]Course, error) {
	return s.repo.ListCourses(ctx, activeOnly)
}

// CreateCourse adds an active course. Codes are unique.
func (s *Service) CreateCourse(ctx context.Context, name, code, description string) (Course, error) {
	name, code = strings.TrimSpace(name), strings.TrimSpace(code)
	if name == "" || code == "" {
		return Course{}, fmt.Errorf("%w: name and code required", ErrInvalid)
	}
	c, err := s.repo.InsertCourse(ctx, Course{
		ID:          uuid.NewString(),
		Name:        name,
		Code:        code,
		Description: description,
		Active:      true,
	})
	if err != nil {
		return Course{}, err
	}
	s.logger.Info("course created", zap.String("course_id", c.ID), zap.String("code", c.Code))
	return c, nil
}

// SetCourseActive activates or deactivates a course.
func (s *Service) SetCourseActive(ctx context.Context, id string, active bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.repo.SetCourseActive(ctx, id, active)
}

// LocationInput describes a new organization location.
type LocationInput struct {
	Name         string
	Latitude     float64
	Longitude    float64
	RadiusMeters *float64
}

// CreateLocation adds an active location, defaulting the radius to 100 meters.
func (s *Service) CreateLocation(ctx context.Context, in LocationInput) (Location, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Location{}, fmt.Errorf("%w: name required", ErrInvalid)
	}
	center := geofence.Point{Latitude: in.Latitude, Longitude: in.Longitude}
	if err := center.Validate(); err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	radius := float64(DefaultRadiusMeters)
	if in.RadiusMeters != nil {
		radius = *in.RadiusMeters
	}
	if !(radius > 0) {
		return Location{}, fmt.Errorf("%w: radius must be positive", ErrInvalid)
	}
	l, err := s.repo.InsertLocation(ctx, Location{
		ID:           uuid.NewString(),
		Name:         name,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		RadiusMeters: radius,
		Active:       true,
	})
	if err != nil {
		return Location{}, err
	}
	s.logger.Info("location created", zap.String("location_id", l.ID), zap.Float64("radius_m", l.RadiusMeters))
	return l, nil
}

// ListLocations returns all locations.
func (s *Service) ListLocations(ctx context.Context) ([]Location, error) {
	return s.repo.ListLocations(ctx)
}

// SetLocationActive activates or deactivates a location.
func (s *Service) SetLocationActive(ctx context.Context, id string, active bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.repo.SetLocationActive(ctx, id, active)
}

// IssueCredential creates an active credential. An empty code gets a random
// one. The credential may be tied to a location for reporting.
func (s *Service) IssueCredential(ctx context.Context, code string, locationID *string) (Credential, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = randomCode()
	}
	if locationID != nil {
		if _, err := uuid.Parse(*locationID); err != nil {
			return Credential{}, fmt.Errorf("%w: location id", ErrInvalid)
		}
	}
	c, err := s.repo.InsertCredential(ctx, Credential{
		ID:         uuid.NewString(),
		Code:       code,
		LocationID: locationID,
		Active:     true,
	})
	if err != nil {
		return Credential{}, err
	}
	s.logger.Info("credential issued", zap.String("credential_id", c.ID))

	if s.jobs != nil {
		msg, err := queue.NewMessage(MessageCredentialIssued, CredentialIssued{ID: c.ID, Code: c.Code})
		if err == nil {
			err = s.jobs.Publish(ctx, msg)
		}
		if err != nil {
			s.logger.Warn("queue publish failed", zap.String("credential_id", c.ID), zap.Error(err))
		}
	}
	return c, nil
}

// Credential returns a credential by code whether or not it is active.
func (s *Service) Credential(ctx context.Context, code string) (Credential, error) {
	return s.repo.CredentialByCode(ctx, code)
}

// DeactivateCredential revokes a code. History referencing it is kept.
func (s *Service) DeactivateCredential(ctx context.Context, code string) error {
	if err := s.repo.DeactivateCredential(ctx, code); err != nil {
		return err
	}
	s.logger.Info("credential deactivated", zap.String("code", code))
	return nil
}

// SetCredentialImage stores the URL of a rendered credential image.
func (s *Service) SetCredentialImage(ctx context.Context, id, url string) error {
	return s.repo.SetCredentialImage(ctx, id, url)
}

func randomCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
