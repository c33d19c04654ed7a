package attendance

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"attendance/internal/catalog"
	"attendance/internal/geofence"
)

type fakeResolver struct {
	credentials map[string]catalog.Credential
	courses     map[string]catalog.Course
	regions     []geofence.Region
	err         error
}

func (f *fakeResolver) ResolveCredential(ctx context.Context, code string) (catalog.Credential, error) {
	if f.err != nil {
		return catalog.Credential{}, f.err
	}
	c, ok := f.credentials[code]
	if !ok || !c.Active {
		return catalog.Credential{}, catalog.ErrNotFound
	}
	return c, nil
}

func (f *fakeResolver) ResolveCourse(ctx context.Context, id string) (catalog.Course, error) {
	c, ok := f.courses[id]
	if !ok || !c.Active {
		return catalog.Course{}, catalog.ErrNotFound
	}
	return c, nil
}

func (f *fakeResolver) ActiveRegions(ctx context.Context) ([]geofence.Region, error) {
	return f.regions, nil
}

// memLedger enforces one record per user, course and day under a mutex,
// like the unique constraint of the Postgres ledger.
type memLedger struct {
	mu        sync.Mutex
	records   []Record
	appendErr error
	existsErr error
	// hideExisting makes ExistsForDay always answer false so Append must
	// catch the duplicate, as when two submissions race.
	hideExisting bool
}

func (m *memLedger) Append(ctx context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return Record{}, m.appendErr
	}
	for _, r := range m.records {
		if r.UserID == rec.UserID && r.CourseID == rec.CourseID && r.CheckInDate.Equal(rec.CheckInDate) {
			return Record{}, ErrDuplicate
		}
	}
	rec.CreatedAt = rec.CheckInTime
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memLedger) ExistsForDay(ctx context.Context, userID, courseID string, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	if m.hideExisting {
		return false, nil
	}
	for _, r := range m.records {
		if r.UserID == userID && r.CourseID == courseID && r.CheckInDate.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.CourseID != "" && r.CourseID != f.CourseID {
			continue
		}
		if f.Date != nil && !r.CheckInDate.Equal(*f.Date) {
			continue
		}
		out = append(out, Entry{Record: r, UserRole: "student"})
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []string
}

func (f *fakeRecorder) ObserveCheckIn(result string, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	resolver *fakeResolver
	ledger   *memLedger
	clock    *clock
	recorder *fakeRecorder
	service  *Service
	userID   string
	courseID string
}

var hq = geofence.Point{Latitude: 10, Longitude: 10}

func north(p geofence.Point, meters float64) (float64, float64) {
	return p.Latitude + meters/(math.Pi*geofence.EarthRadiusMeters/180), p.Longitude
}

func ptr(v float64) *float64 { return &v }

func setup(t *testing.T) *fixture {
	t.Helper()
	courseID := uuid.NewString()
	f := &fixture{
		resolver: &fakeResolver{
			credentials: map[string]catalog.Credential{
				"ABC123":  {ID: uuid.NewString(), Code: "ABC123", Active: true},
				"REVOKED": {ID: uuid.NewString(), Code: "REVOKED", Active: false},
			},
			courses: map[string]catalog.Course{
				courseID: {ID: courseID, Code: "CS101", Name: "Intro to CS", Active: true},
			},
			regions: []geofence.Region{{ID: "hq", Name: "HQ", Center: hq, RadiusMeters: 100}},
		},
		ledger:   &memLedger{},
		clock:    &clock{now: time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)},
		recorder: &fakeRecorder{},
		userID:   uuid.NewString(),
		courseID: courseID,
	}
	f.service = NewService(f.resolver, f.ledger, Options{Now: f.clock.Now, Recorder: f.recorder})
	return f
}

func (f *fixture) request(code string, lat, lon *float64) CheckInRequest {
	return CheckInRequest{UserID: f.userID, CourseID: f.courseID, Code: code, Latitude: lat, Longitude: lon}
}

func TestSubmitCheckIn_AcceptedThenDuplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	out, err := f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
	require.NoError(t, err)
	require.True(t, out.Accepted)
	assert.True(t, out.Record.Valid)
	assert.Equal(t, f.userID, out.Record.UserID)
	assert.Equal(t, f.courseID, out.Record.CourseID)
	assert.Equal(t, "2024-03-04", out.Record.Day())
	assert.Equal(t, "Successfully signed in for Intro to CS!", out.Message())
	require.NotNil(t, out.Record.CredentialID)
	assert.Equal(t, f.resolver.credentials["ABC123"].ID, *out.Record.CredentialID)
	assert.Equal(t, []string{"hq"}, out.Sites)
	assert.Equal(t, 1, f.ledger.count())

	f.clock.advance(time.Minute)
	out, err = f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, ReasonDuplicateCheckIn, out.Reason)
	assert.Equal(t, "warning", out.Reason.Severity())
	assert.Equal(t, "You have already signed in for Intro to CS today.", out.Message())
	assert.Equal(t, 1, f.ledger.count())

	assert.Equal(t, []string{"accepted", "duplicate_checkin"}, f.recorder.results)
}

func TestSubmitCheckIn_NextDaySucceeds(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.clock.now = time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC)

	out, err := f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
	require.NoError(t, err)
	require.True(t, out.Accepted)

	f.clock.advance(2 * time.Minute)
	out, err = f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
	require.NoError(t, err)
	require.True(t, out.Accepted)
	assert.Equal(t, "2024-03-05", out.Record.Day())
	assert.Equal(t, 2, f.ledger.count())
}

func TestSubmitCheckIn_CalendarDayFollowsLocation(t *testing.T) {
	f := setup(t)
	lagos, err := time.LoadLocation("Africa/Lagos") // UTC+1, no DST
	require.NoError(t, err)
	f.service = NewService(f.resolver, f.ledger, Options{Now: f.clock.Now, Location: lagos})

	// 23:30 UTC on the 4th is already the 5th in Lagos.
	f.clock.now = time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC)
	out, err := f.service.SubmitCheckIn(context.Background(), f.request("ABC123", ptr(10), ptr(10)))
	require.NoError(t, err)
	require.True(t, out.Accepted)
	assert.Equal(t, "2024-03-05", out.Record.Day())
	assert.Equal(t, time.UTC, out.Record.CheckInTime.Location())
}

func TestSubmitCheckIn_Rejections(t *testing.T) {
	lat200, lon200 := north(hq, 200)

	cases := []struct {
		name   string
		mutate func(f *fixture, req *CheckInRequest)
		want   Reason
	}{
		{"missing latitude", func(f *fixture, r *CheckInRequest) { r.Latitude = nil }, ReasonMissingLocation},
		{"missing longitude", func(f *fixture, r *CheckInRequest) { r.Longitude = nil }, ReasonMissingLocation},
		{"non-numeric latitude", func(f *fixture, r *CheckInRequest) { r.Latitude = ptr(math.NaN()) }, ReasonMissingLocation},
		{"unknown code", func(f *fixture, r *CheckInRequest) { r.Code = "NOPE" }, ReasonInvalidCredential},
		{"inactive code", func(f *fixture, r *CheckInRequest) { r.Code = "REVOKED" }, ReasonInvalidCredential},
		{"unknown course", func(f *fixture, r *CheckInRequest) { r.CourseID = uuid.NewString() }, ReasonUnknownCourse},
		{"inactive course", func(f *fixture, r *CheckInRequest) {
			c := f.resolver.courses[f.courseID]
			c.Active = false
			f.resolver.courses[f.courseID] = c
		}, ReasonUnknownCourse},
		{"200m from a 100m fence", func(f *fixture, r *CheckInRequest) { r.Latitude, r.Longitude = ptr(lat200), ptr(lon200) }, ReasonOutOfRange},
		{"no active locations", func(f *fixture, r *CheckInRequest) { f.resolver.regions = nil }, ReasonOutOfRange},
		{"latitude out of range", func(f *fixture, r *CheckInRequest) { r.Latitude = ptr(120) }, ReasonOutOfRange},
		{"bad code and off premises", func(f *fixture, r *CheckInRequest) {
			r.Code = "NOPE"
			r.Latitude, r.Longitude = ptr(lat200), ptr(lon200)
		}, ReasonInvalidCredential},
		{"inactive code beats duplicate", func(f *fixture, r *CheckInRequest) {
			_, _ = f.service.SubmitCheckIn(context.Background(), f.request("ABC123", ptr(10), ptr(10)))
			r.Code = "REVOKED"
		}, ReasonInvalidCredential},
		{"off premises beats duplicate", func(f *fixture, r *CheckInRequest) {
			_, _ = f.service.SubmitCheckIn(context.Background(), f.request("ABC123", ptr(10), ptr(10)))
			r.Latitude, r.Longitude = ptr(lat200), ptr(lon200)
		}, ReasonOutOfRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			req := f.request("ABC123", ptr(10), ptr(10))
			tc.mutate(f, &req)
			before := f.ledger.count()

			out, err := f.service.SubmitCheckIn(context.Background(), req)
			require.NoError(t, err)
			assert.False(t, out.Accepted)
			assert.Equal(t, tc.want, out.Reason)
			assert.NotEmpty(t, out.Reason.Message())
			assert.Equal(t, before, f.ledger.count())
		})
	}
}

func TestSubmitCheckIn_RaceCaughtByLedger(t *testing.T) {
	f := setup(t)
	f.ledger.hideExisting = true
	ctx := context.Background()

	out, err := f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
	require.NoError(t, err)
	require.True(t, out.Accepted)

	out, err = f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicateCheckIn, out.Reason)
	assert.Equal(t, 1, f.ledger.count())
}

func TestSubmitCheckIn_ConcurrentSameDay(t *testing.T) {
	f := setup(t)
	f.ledger.hideExisting = true

	const attempts = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dupes    int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.service.SubmitCheckIn(context.Background(), f.request("ABC123", ptr(10), ptr(10)))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if out.Accepted {
				accepted++
			} else if out.Reason == ReasonDuplicateCheckIn {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, attempts-1, dupes)
	assert.Equal(t, 1, f.ledger.count())
}

func TestSubmitCheckIn_StorageFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("resolver", func(t *testing.T) {
		f := setup(t)
		f.resolver.err = errors.New("connection reset")
		_, err := f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
		assert.ErrorIs(t, err, ErrStorage)
		var se *StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "resolve credential", se.Op)
	})

	t.Run("duplicate lookup", func(t *testing.T) {
		f := setup(t)
		f.ledger.existsErr = errors.New("timeout")
		_, err := f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
		assert.ErrorIs(t, err, ErrStorage)
		assert.Equal(t, 0, f.ledger.count())
	})

	t.Run("append", func(t *testing.T) {
		f := setup(t)
		f.ledger.appendErr = errors.New("disk full")
		_, err := f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
		assert.ErrorIs(t, err, ErrStorage)
		assert.Equal(t, 0, f.ledger.count())
		assert.Equal(t, []string{"storage_failure"}, f.recorder.results)
	})
}

func TestService_HistoryAndReport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.service.SubmitCheckIn(ctx, f.request("ABC123", ptr(10), ptr(10)))
	require.NoError(t, err)

	history, err := f.service.History(ctx, f.userID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)

	today := f.service.Today()
	rep, err := f.service.Report(ctx, Filter{Date: &today})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Total)

	again, err := f.service.Report(ctx, Filter{Date: &today})
	require.NoError(t, err)
	assert.Equal(t, rep, again)
}

func TestService_ReportCountsIgnorePaging(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := f.request("ABC123", ptr(10), ptr(10))
		req.UserID = uuid.NewString()
		out, err := f.service.SubmitCheckIn(ctx, req)
		require.NoError(t, err)
		require.True(t, out.Accepted)
	}

	rep, err := f.service.Report(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, map[string]int{"student": 3}, rep.ByRole)
	assert.Len(t, rep.Entries, 1)

	second, err := f.service.Report(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, second.Total)
	require.Len(t, second.Entries, 1)
	assert.NotEqual(t, rep.Entries[0].ID, second.Entries[0].ID)

	past, err := f.service.Report(ctx, Filter{Offset: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, past.Total)
	assert.Empty(t, past.Entries)
}

func TestSubmitCheckIn_LogsMatchedSites(t *testing.T) {
	f := setup(t)
	f.resolver.regions = append(f.resolver.regions,
		geofence.Region{ID: "annex", Name: "Annex", Center: hq, RadiusMeters: 500},
		geofence.Region{ID: "far", Name: "Far", Center: geofence.Point{Latitude: 40, Longitude: 40}, RadiusMeters: 100},
	)
	core, logs := observer.New(zap.InfoLevel)
	f.service = NewService(f.resolver, f.ledger, Options{Now: f.clock.Now, Logger: zap.New(core)})

	out, err := f.service.SubmitCheckIn(context.Background(), f.request("ABC123", ptr(10), ptr(10)))
	require.NoError(t, err)
	require.True(t, out.Accepted)
	assert.Equal(t, []string{"hq", "annex"}, out.Sites)

	entries := logs.FilterMessage("check-in accepted").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"hq", "annex"}, entries[0].ContextMap()["sites"])
}
