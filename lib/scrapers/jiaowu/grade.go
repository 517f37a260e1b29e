package jiaowu

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var GradeMalformed = fmt.Errorf("The grade sheet data is malformed.")

// Grade is one observation of the grade sheet.
type Grade struct {
	// cumulative gpa across every semester
	Gpa float64
	// gpa across just the selected semesters
	SemGpa float64
	// total credits passed
	Credits int64
	// per-semester course scores for the selected semesters
	Scores []SemesterScore
}

type SemesterScore struct {
	Semester string
	Courses  SemesterGrade
}

// SemesterGrade lists courses in the order the portal reports them.
type SemesterGrade []Course

type Course struct {
	Name    string
	Score   string
	Credits float64
}

// Equal reports whether two snapshots are structurally identical,
// course order included.
func (g Grade) Equal(other Grade) bool {
	return g.Gpa == other.Gpa &&
		g.SemGpa == other.SemGpa &&
		g.Credits == other.Credits &&
		slices.EqualFunc(g.Scores, other.Scores, func(a, b SemesterScore) bool {
			return a.Semester == b.Semester && slices.Equal(a.Courses, b.Courses)
		})
}

// FetchGrade takes a grade snapshot over an already logged in session.
// `semesters` narrows the per-course scores and the semester gpa down
// to the semesters with those exact display names, unknown names are
// ignored.
func (c *Client) FetchGrade(ctx context.Context, semesters []string) (Grade, error) {
	ctx, span := tracer.Start(ctx, "client:FetchGrade")
	defer span.End()

	catalog, err := c.Semesters(ctx)
	if err != nil {
		return Grade{}, err
	}

	var ids []string
	names := make(map[int64]string, len(catalog))
	for _, s := range catalog {
		names[s.Id] = s.NameZh
		if slices.Contains(semesters, s.NameZh) {
			ids = append(ids, strconv.FormatInt(s.Id, 10))
		}
	}
	span.SetAttributes(attribute.Int("selected_semesters", len(ids)))

	// the two sheets are independent requests, let both finish instead
	// of cancelling one when the other fails
	var all, filtered string
	var group errgroup.Group
	group.Go(func() error {
		var err error
		all, err = c.GradeList(ctx, "")
		return err
	})
	group.Go(func() error {
		var err error
		filtered, err = c.GradeList(ctx, strings.Join(ids, ","))
		return err
	})
	err = group.Wait()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch grade sheets")
		return Grade{}, err
	}

	grade, ok := ExtractGrade(all, filtered, names)
	if !ok {
		span.SetStatus(codes.Error, GradeMalformed.Error())
		return Grade{}, GradeMalformed
	}
	return grade, nil
}

type GetGradeOptions struct {
	ClientOptions
	Username  string
	Password  string
	Semesters []string
}

// GetGrade runs the whole flow over a fresh session: login, semester
// catalog, both grade sheets, extraction.
func GetGrade(ctx context.Context, opts GetGradeOptions) (Grade, error) {
	ctx, span := tracer.Start(ctx, "GetGrade")
	defer span.End()

	client, err := NewClient(ctx, opts.ClientOptions)
	if err != nil {
		return Grade{}, err
	}
	err = client.LoginUsernamePassword(ctx, opts.Username, opts.Password)
	if err != nil {
		return Grade{}, err
	}
	return client.FetchGrade(ctx, opts.Semesters)
}
