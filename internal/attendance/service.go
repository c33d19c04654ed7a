package attendance

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendance/internal/catalog"
	"attendance/internal/geofence"
)

// Resolver looks up the catalog state a check-in depends on.
type Resolver interface {
	ResolveCredential(ctx context.Context, code string) (catalog.Credential, error)
	ResolveCourse(ctx context.Context, id string) (catalog.Course, error)
	ActiveRegions(ctx context.Context) ([]geofence.Region, error)
}

// Recorder observes check-in outcomes, e.g. for metrics. result is
// "accepted", a Reason, or "storage_failure".
type Recorder interface {
	ObserveCheckIn(result string, elapsed time.Duration)
}

// Options tune a Service. Zero values pick defaults.
type Options struct {
	// Location defines the calendar day used for duplicate detection. Defaults to UTC.
	Location *time.Location
	Logger   *zap.Logger
	Recorder Recorder
	Now      func() time.Time
}

// Service decides whether check-in attempts are accepted.
type Service struct {
	resolver Resolver
	ledger   Ledger
	loc      *time.Location
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

// NewService creates a service over a resolver and a ledger.
func NewService(resolver Resolver, ledger Ledger, opts Options) *Service {
	s := &Service{
		resolver: resolver,
		ledger:   ledger,
		loc:      opts.Location,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		now:      opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Today returns the current calendar date in the service's time zone.
func (s *Service) Today() time.Time {
	return dayOf(s.now(), s.loc)
}

// SubmitCheckIn runs the check-in gates in order: coordinates present, code
// valid, course valid, position on premises, no record yet today. The first
// failing gate decides the rejection. The returned error is non-nil only for
// storage faults and then satisfies errors.Is(err, ErrStorage).
func (s *Service) SubmitCheckIn(ctx context.Context, req CheckInRequest) (Outcome, error) {
	started := time.Now()
	out, err := s.submit(ctx, req)

	log := s.logger.With(zap.String("user_id", req.UserID), zap.String("course_id", req.CourseID))
	result := "accepted"
	switch {
	case err != nil:
		result = "storage_failure"
		log.Error("check-in failed", zap.Error(err))
	case out.Accepted:
		log.Info("check-in accepted",
			zap.String("record_id", out.Record.ID),
			zap.String("day", out.Record.Day()),
			zap.Strings("sites", out.Sites))
	default:
		result = string(out.Reason)
		log.Warn("check-in rejected", zap.String("reason", result))
	}
	if s.recorder != nil {
		s.recorder.ObserveCheckIn(result, time.Since(started))
	}
	return out, err
}

func (s *Service) submit(ctx context.Context, req CheckInRequest) (Outcome, error) {
	if req.Latitude == nil || req.Longitude == nil || !finite(*req.Latitude) || !finite(*req.Longitude) {
		return rejected(ReasonMissingLocation), nil
	}
	point := geofence.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}

	cred, err := s.resolver.ResolveCredential(ctx, req.Code)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return rejected(ReasonInvalidCredential), nil
		}
		return Outcome{}, &StorageError{Op: "resolve credential", Err: err}
	}

	course, err := s.resolver.ResolveCourse(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return rejected(ReasonUnknownCourse), nil
		}
		return Outcome{}, &StorageError{Op: "resolve course", Err: err}
	}

	regions, err := s.resolver.ActiveRegions(ctx)
	if err != nil {
		return Outcome{}, &StorageError{Op: "load locations", Err: err}
	}
	// invalid coordinates fail closed
	if inside, err := geofence.WithinPremises(point, regions); err != nil || !inside {
		return rejected(ReasonOutOfRange), nil
	}
	var sites []string
	for _, r := range geofence.Matching(point, regions) {
		sites = append(sites, r.ID)
	}

	now := s.now()
	day := dayOf(now, s.loc)
	exists, err := s.ledger.ExistsForDay(ctx, req.UserID, course.ID, day)
	if err != nil {
		return Outcome{}, &StorageError{Op: "check duplicate", Err: err}
	}
	if exists {
		return duplicate(course), nil
	}

	credID := cred.ID
	rec, err := s.ledger.Append(ctx, Record{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		CourseID:     course.ID,
		CredentialID: &credID,
		CheckInTime:  now.UTC(),
		CheckInDate:  day,
		Latitude:     point.Latitude,
		Longitude:    point.Longitude,
		Valid:        true,
	})
	if err != nil {
		// lost a race with a concurrent submission for the same day
		if errors.Is(err, ErrDuplicate) {
			return duplicate(course), nil
		}
		return Outcome{}, &StorageError{Op: "append record", Err: err}
	}
	return accepted(rec, course, sites), nil
}

// History returns a user's own records, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.ledger.Query(ctx, Filter{UserID: userID, Limit: limit})
}

// Report aggregates every record matching f. Limit and Offset page the
// returned entries only; the counts cover the whole filtered set.
func (s *Service) Report(ctx context.Context, f Filter) (Report, error) {
	all := f
	all.Limit, all.Offset = 0, 0
	entries, err := s.ledger.Query(ctx, all)
	if err != nil {
		return Report{}, err
	}
	rep := BuildReport(entries)
	rep.Entries = page(rep.Entries, f.Limit, f.Offset)
	return rep, nil
}

// dayOf returns the calendar date of t in loc as midnight UTC.
func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
