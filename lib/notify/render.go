package notify

import (
	"fmt"
	"gradewatch/lib/scrapers/jiaowu"
	"html"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderText formats a grade report as plain text, one rounded table
// per semester so it stays readable in terminal mail clients.
func RenderText(grade jiaowu.Grade) string {
	var out strings.Builder

	fmt.Fprintf(&out, "Total GPA: %.2f\n", grade.Gpa)
	fmt.Fprintf(&out, "Semester GPA: %.2f\n", grade.SemGpa)
	fmt.Fprintf(&out, "Credits earned: %d\n", grade.Credits)

	for _, semester := range grade.Scores {
		out.WriteString("\n")
		out.WriteString(semester.Semester)
		out.WriteString("\n")
		out.WriteString(courseTable(semester.Courses).Render())
		out.WriteString("\n")
	}

	return out.String()
}

// RenderHtml formats the same report for the html part of the email.
func RenderHtml(grade jiaowu.Grade) string {
	var out strings.Builder

	fmt.Fprintf(
		&out,
		"<p>Total GPA: %.2f<br/>Semester GPA: %.2f<br/>Credits earned: %d</p>\n",
		grade.Gpa, grade.SemGpa, grade.Credits,
	)

	for _, semester := range grade.Scores {
		fmt.Fprintf(&out, "<h4>%s</h4>\n", html.EscapeString(semester.Semester))
		out.WriteString(courseTable(semester.Courses).RenderHTML())
		out.WriteString("\n")
	}

	return out.String()
}

func courseTable(courses jiaowu.SemesterGrade) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"课程", "成绩", "学分"})
	for _, course := range courses {
		t.AppendRow(table.Row{course.Name, course.Score, course.Credits})
	}
	return t
}
