package watcher

import (
	"context"
	"fmt"
	"gradewatch/lib/gradestore"
	"gradewatch/lib/scrapers/jiaowu"
	"gradewatch/lib/timezone"
	"log/slog"
	"sync"
	"time"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/watcher")
var meter = otel.Meter("services/watcher")

var checkCounter, _ = meter.Int64Counter("checks")
var checkFailureCounter, _ = meter.Int64Counter("check_failures")
var changeCounter, _ = meter.Int64Counter("changes")
var reportCounter, _ = meter.Int64Counter("reports_sent")

// Source produces a fresh grade snapshot, logging in from scratch on
// every call.
type Source func(ctx context.Context) (jiaowu.Grade, error)

// Mailer delivers reports and failure notices to the user.
type Mailer interface {
	SendReport(ctx context.Context, grade jiaowu.Grade) error
	SendFailure(ctx context.Context, reason string, err error) error
}

// MinInterval is the shortest allowed check interval. Anything faster
// hammers the portal for data that changes a few times a semester.
const MinInterval = time.Minute * 10

type Options struct {
	Source Source
	Mailer Mailer
	Store  gradestore.Store
	// User keys the snapshot history in the store.
	User string
	// Interval between checks, at least MinInterval.
	Interval time.Duration
	// Jitter delays every check by a random duration in [0, Jitter) so
	// the portal does not see perfectly periodic logins.
	Jitter time.Duration
	// SendFirst emails a report for the first snapshot even though
	// nothing changed yet.
	SendFirst bool
	// Keep trims the stored history to this many snapshots, 0 keeps
	// everything.
	Keep int64
}

type Service struct {
	options Options

	mu          sync.Mutex
	baseline    jiaowu.Grade
	hasBaseline bool
	stats       stats
}

type stats struct {
	startedAt time.Time
	checks    int64
	changes   int64
	lastCheck time.Time
	lastError string
}

func NewService(options Options) (*Service, error) {
	if options.Interval < MinInterval {
		return nil, fmt.Errorf(
			"Interval %v is too small, it should be at least %v.",
			options.Interval, MinInterval,
		)
	}
	return &Service{
		options: options,
		stats:   stats{startedAt: timezone.Now()},
	}, nil
}

// Run checks for grade changes until ctx is cancelled. The first check
// happens immediately and a failure there is fatal, at that point it
// almost always means bad credentials rather than a flaky portal.
//
// A report that cannot be delivered does not advance the comparison
// baseline, so the change is reported again on the next check.
func (s *Service) Run(ctx context.Context) error {
	// the stored snapshot is whatever the user saw last, seeding the
	// baseline from it catches changes that happened while the daemon
	// was down. with SendFirst the first report covers those anyway.
	if !s.options.SendFirst {
		stored, ok, err := s.options.Store.Latest(ctx, s.options.User)
		if err != nil {
			return err
		}
		if ok {
			s.setBaseline(stored.Grade)
			slog.InfoContext(
				ctx, "resuming from stored snapshot",
				"user", s.options.User, "time", stored.Time,
			)
		}
	}

	grade, err := s.check(ctx)
	if err != nil {
		return fmt.Errorf("get grade failed: %w", err)
	}
	if s.baselined() {
		err = s.notifyChange(ctx, grade)
		if err != nil {
			return err
		}
	} else {
		err = s.advance(ctx, grade)
		if err != nil {
			return err
		}
		if s.options.SendFirst {
			err = s.options.Mailer.SendReport(ctx, grade)
			if err != nil {
				return fmt.Errorf("send mail failed: %w", err)
			}
			reportCounter.Add(ctx, 1)
		}
	}

	ticker := time.NewTicker(s.options.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := s.tick(ctx)
			if err != nil {
				return err
			}
		}
	}
}

func (s *Service) tick(ctx context.Context) error {
	s.sleepJitter(ctx)
	if ctx.Err() != nil {
		return nil
	}

	grade, err := s.check(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "get grade", "err", err)
		err = s.options.Mailer.SendFailure(ctx, "Get grade failed", err)
		if err != nil {
			return fmt.Errorf("send mail failed: %w", err)
		}
		return nil
	}

	return s.notifyChange(ctx, grade)
}

func (s *Service) check(ctx context.Context) (jiaowu.Grade, error) {
	ctx, span := tracer.Start(ctx, "check")
	defer span.End()
	checkCounter.Add(ctx, 1)

	grade, err := s.options.Source(ctx)

	s.mu.Lock()
	s.stats.checks++
	s.stats.lastCheck = timezone.Now()
	s.stats.lastError = ""
	if err != nil {
		s.stats.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		checkFailureCounter.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch grade")
		return jiaowu.Grade{}, err
	}
	return grade, nil
}

func (s *Service) notifyChange(ctx context.Context, grade jiaowu.Grade) error {
	s.mu.Lock()
	unchanged := grade.Equal(s.baseline)
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	slog.InfoContext(
		ctx, "grade changed",
		"user", s.options.User, "gpa", grade.Gpa, "credits", grade.Credits,
	)
	changeCounter.Add(ctx, 1)
	s.mu.Lock()
	s.stats.changes++
	s.mu.Unlock()

	err := s.options.Mailer.SendReport(ctx, grade)
	if err != nil {
		slog.ErrorContext(ctx, "send report", "err", err)
		err = s.options.Mailer.SendFailure(ctx, "Send mail failed", err)
		if err != nil {
			return fmt.Errorf("send mail failed: %w", err)
		}
		return nil
	}
	reportCounter.Add(ctx, 1)

	return s.advance(ctx, grade)
}

// advance moves the comparison baseline and persists it.
func (s *Service) advance(ctx context.Context, grade jiaowu.Grade) error {
	s.setBaseline(grade)
	return s.options.Store.Push(ctx, gradestore.PushRequest{
		User:  s.options.User,
		Time:  timezone.Now(),
		Grade: grade,
		Keep:  s.options.Keep,
	})
}

func (s *Service) setBaseline(grade jiaowu.Grade) {
	s.mu.Lock()
	s.baseline = grade
	s.hasBaseline = true
	s.mu.Unlock()
}

func (s *Service) baselined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasBaseline
}

func (s *Service) sleepJitter(ctx context.Context) {
	seconds := int(s.options.Jitter / time.Second)
	if seconds <= 0 {
		return
	}
	n, err := random.IntRange(0, seconds)
	if err != nil {
		slog.WarnContext(ctx, "pick jitter", "err", err)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(n) * time.Second):
	}
}
