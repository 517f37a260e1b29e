package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"gradewatch/lib/gradestore"
	"gradewatch/lib/scrapers/jiaowu"
	"gradewatch/lib/testutil"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testGrade(gpa float64) jiaowu.Grade {
	return jiaowu.Grade{
		Gpa:     gpa,
		SemGpa:  3.8,
		Credits: 120,
		Scores: []jiaowu.SemesterScore{
			{
				Semester: "2023春",
				Courses: jiaowu.SemesterGrade{
					{Name: "线性代数", Score: "A", Credits: 4},
				},
			},
		},
	}
}

// scriptSource hands out one scripted result per check and fails the
// test loudly if the watcher checks more often than scripted.
type scriptSource struct {
	mu     sync.Mutex
	calls  int
	script []func() (jiaowu.Grade, error)
}

func (s *scriptSource) next(ctx context.Context) (jiaowu.Grade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.script) {
		return jiaowu.Grade{}, fmt.Errorf("unscripted check %d", s.calls)
	}
	result := s.script[s.calls]
	s.calls++
	return result()
}

type recordMailer struct {
	mu        sync.Mutex
	reports   []jiaowu.Grade
	failures  []string
	reportErr error
	failErrs  int
}

func (m *recordMailer) SendReport(ctx context.Context, grade jiaowu.Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reportErr != nil {
		return m.reportErr
	}
	m.reports = append(m.reports, grade)
	return nil
}

func (m *recordMailer) SendFailure(ctx context.Context, reason string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErrs > 0 {
		m.failErrs--
		return errors.New("smtp is down")
	}
	m.failures = append(m.failures, fmt.Sprintf("%s: %s", reason, err))
	return nil
}

func watcherStore(t *testing.T) (gradestore.Store, func()) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/watcher",
		DbSchema: gradestore.Schema,
	})
	return gradestore.NewStore(setup.DB), cleanup
}

func TestNewServiceInterval(t *testing.T) {
	_, err := NewService(Options{Interval: time.Minute * 5})
	require.Error(t, err)
	require.Contains(t, err.Error(), "too small")

	_, err = NewService(Options{Interval: MinInterval})
	require.NoError(t, err)
}

// The Run tests build the service directly with an interval far below
// the public minimum so the loop spins without real waiting; the last
// script entry returns an unchanged grade and cancels the context to
// stop it.

func TestRunSilentFirstCheck(t *testing.T) {
	store, cleanup := watcherStore(t)
	defer cleanup()
	mailer := &recordMailer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptSource{script: []func() (jiaowu.Grade, error){
		func() (jiaowu.Grade, error) { return testGrade(3.5), nil },
		func() (jiaowu.Grade, error) { cancel(); return testGrade(3.5), nil },
	}}

	svc := &Service{options: Options{
		Source:   src.next,
		Mailer:   mailer,
		Store:    store,
		User:     "alice",
		Interval: time.Millisecond * 5,
	}}
	require.NoError(t, svc.Run(ctx))

	// without SendFirst the first snapshot becomes the baseline quietly
	require.Empty(t, mailer.reports)
	require.Empty(t, mailer.failures)

	latest, ok, err := store.Latest(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, latest.Grade.Equal(testGrade(3.5)))
}

func TestRunSendFirst(t *testing.T) {
	store, cleanup := watcherStore(t)
	defer cleanup()
	mailer := &recordMailer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptSource{script: []func() (jiaowu.Grade, error){
		func() (jiaowu.Grade, error) { return testGrade(3.5), nil },
		func() (jiaowu.Grade, error) { cancel(); return testGrade(3.5), nil },
	}}

	svc := &Service{options: Options{
		Source:    src.next,
		Mailer:    mailer,
		Store:     store,
		User:      "alice",
		Interval:  time.Millisecond * 5,
		SendFirst: true,
	}}
	require.NoError(t, svc.Run(ctx))

	require.Len(t, mailer.reports, 1)
	require.True(t, mailer.reports[0].Equal(testGrade(3.5)))
}

func TestRunResumesFromStore(t *testing.T) {
	store, cleanup := watcherStore(t)
	defer cleanup()
	mailer := &recordMailer{}

	err := store.Push(context.Background(), gradestore.PushRequest{
		User:  "alice",
		Time:  time.Now(),
		Grade: testGrade(3.5),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptSource{script: []func() (jiaowu.Grade, error){
		func() (jiaowu.Grade, error) { return testGrade(3.6), nil },
		func() (jiaowu.Grade, error) { cancel(); return testGrade(3.6), nil },
	}}

	svc := &Service{options: Options{
		Source:   src.next,
		Mailer:   mailer,
		Store:    store,
		User:     "alice",
		Interval: time.Millisecond * 5,
	}}
	require.NoError(t, svc.Run(ctx))

	// the change happened "while the daemon was down", the stored
	// snapshot is what the user saw last so it must still be reported
	require.Len(t, mailer.reports, 1)
	require.True(t, mailer.reports[0].Equal(testGrade(3.6)))

	latest, _, err := store.Latest(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, latest.Grade.Equal(testGrade(3.6)))
}

func TestRunFirstCheckFails(t *testing.T) {
	store, cleanup := watcherStore(t)
	defer cleanup()
	mailer := &recordMailer{}

	src := &scriptSource{script: []func() (jiaowu.Grade, error){
		func() (jiaowu.Grade, error) { return jiaowu.Grade{}, jiaowu.LoginFailed },
	}}

	svc := &Service{options: Options{
		Source:   src.next,
		Mailer:   mailer,
		Store:    store,
		User:     "alice",
		Interval: time.Millisecond * 5,
	}}
	err := svc.Run(context.Background())
	require.ErrorIs(t, err, jiaowu.LoginFailed)

	// a failed first check is fatal, the caller owns the last email
	require.Empty(t, mailer.reports)
	require.Empty(t, mailer.failures)
}

func TestTickFetchFailure(t *testing.T) {
	store, cleanup := watcherStore(t)
	defer cleanup()
	mailer := &recordMailer{}
	ctx := context.Background()

	src := &scriptSource{script: []func() (jiaowu.Grade, error){
		func() (jiaowu.Grade, error) { return jiaowu.Grade{}, errors.New("portal timeout") },
		func() (jiaowu.Grade, error) { return testGrade(3.5), nil },
	}}
	svc, err := NewService(Options{
		Source:   src.next,
		Mailer:   mailer,
		Store:    store,
		User:     "alice",
		Interval: MinInterval,
	})
	require.NoError(t, err)
	svc.setBaseline(testGrade(3.5))

	{
		// a failed check emails a notice and keeps going
		require.NoError(t, svc.tick(ctx))
		require.Equal(t, []string{"Get grade failed: portal timeout"}, mailer.failures)
		require.Empty(t, mailer.reports)
	}
	{
		// the next check comes back unchanged, nothing more to say
		require.NoError(t, svc.tick(ctx))
		require.Len(t, mailer.failures, 1)
		require.Empty(t, mailer.reports)
	}
}

func TestTickSendFailureKeepsBaseline(t *testing.T) {
	store, cleanup := watcherStore(t)
	defer cleanup()
	mailer := &recordMailer{}
	ctx := context.Background()

	src := &scriptSource{script: []func() (jiaowu.Grade, error){
		func() (jiaowu.Grade, error) { return testGrade(3.6), nil },
		func() (jiaowu.Grade, error) { return testGrade(3.6), nil },
	}}
	svc, err := NewService(Options{
		Source:   src.next,
		Mailer:   mailer,
		Store:    store,
		User:     "alice",
		Interval: MinInterval,
	})
	require.NoError(t, err)
	require.NoError(t, svc.advance(ctx, testGrade(3.5)))

	{
		// the report cannot be delivered, so the baseline must not move
		mailer.reportErr = errors.New("smtp is down")
		require.NoError(t, svc.tick(ctx))
		require.Empty(t, mailer.reports)
		require.Equal(t, []string{"Send mail failed: smtp is down"}, mailer.failures)

		latest, _, err := store.Latest(ctx, "alice")
		require.NoError(t, err)
		require.True(t, latest.Grade.Equal(testGrade(3.5)))
	}
	{
		// once mail works again the same change is reported
		mailer.reportErr = nil
		require.NoError(t, svc.tick(ctx))
		require.Len(t, mailer.reports, 1)
		require.True(t, mailer.reports[0].Equal(testGrade(3.6)))

		latest, _, err := store.Latest(ctx, "alice")
		require.NoError(t, err)
		require.True(t, latest.Grade.Equal(testGrade(3.6)))
	}
}

func TestTickFailureEmailFails(t *testing.T) {
	store, cleanup := watcherStore(t)
	defer cleanup()
	mailer := &recordMailer{failErrs: 1}

	src := &scriptSource{script: []func() (jiaowu.Grade, error){
		func() (jiaowu.Grade, error) { return jiaowu.Grade{}, errors.New("portal timeout") },
	}}
	svc, err := NewService(Options{
		Source:   src.next,
		Mailer:   mailer,
		Store:    store,
		User:     "alice",
		Interval: MinInterval,
	})
	require.NoError(t, err)
	svc.setBaseline(testGrade(3.5))

	err = svc.tick(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "send mail failed")
}

func TestStatus(t *testing.T) {
	store, cleanup := watcherStore(t)
	defer cleanup()
	mailer := &recordMailer{}
	ctx := context.Background()

	src := &scriptSource{script: []func() (jiaowu.Grade, error){
		func() (jiaowu.Grade, error) { return testGrade(3.6), nil },
		func() (jiaowu.Grade, error) { return jiaowu.Grade{}, errors.New("portal timeout") },
	}}
	svc, err := NewService(Options{
		Source:   src.next,
		Mailer:   mailer,
		Store:    store,
		User:     "alice",
		Interval: MinInterval,
	})
	require.NoError(t, err)

	{
		status := svc.Status()
		require.Equal(t, "alice", status.User)
		require.Zero(t, status.Checks)
		require.Nil(t, status.LastCheck)
		require.Nil(t, status.Gpa)
	}

	svc.setBaseline(testGrade(3.5))
	require.NoError(t, svc.tick(ctx))
	require.NoError(t, svc.tick(ctx))

	status := svc.Status()
	require.Equal(t, int64(2), status.Checks)
	require.Equal(t, int64(1), status.Changes)
	require.NotNil(t, status.LastCheck)
	require.Equal(t, "portal timeout", status.LastError)
	require.NotNil(t, status.Gpa)
	require.Equal(t, 3.6, *status.Gpa)
	require.NotNil(t, status.Credits)
	require.Equal(t, int64(120), *status.Credits)

	rec := httptest.NewRecorder()
	svc.StatusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	require.Equal(t, "application/json", rec.Header().Get("content-type"))

	var served Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &served))
	require.Equal(t, "alice", served.User)
	require.Equal(t, int64(2), served.Checks)
}

func TestSleepJitterCancelled(t *testing.T) {
	svc := &Service{options: Options{Jitter: time.Hour}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	svc.sleepJitter(ctx)
	require.Less(t, time.Since(start), time.Second)
}
