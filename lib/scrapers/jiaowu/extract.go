package jiaowu

import (
	"encoding/json"
	"math"
)

// ExtractGrade pulls a Grade snapshot out of a raw grade sheet pair.
// `all` is the sheet across every semester, `filtered` is the sheet
// narrowed to the selected semesters and `names` maps semester ids to
// display names. Returns false if anything in either document is
// missing or has the wrong shape, a half-read snapshot is worse than
// none at all.
func ExtractGrade(all, filtered string, names map[int64]string) (Grade, bool) {
	var allDoc any
	if err := json.Unmarshal([]byte(all), &allDoc); err != nil {
		return Grade{}, false
	}
	var filteredDoc any
	if err := json.Unmarshal([]byte(filtered), &filteredDoc); err != nil {
		return Grade{}, false
	}

	overview, ok := getKey(allDoc, "overview")
	if !ok {
		return Grade{}, false
	}
	gpa, ok := floatKey(overview, "gpa")
	if !ok {
		return Grade{}, false
	}
	credits, ok := intKey(overview, "passedCredits")
	if !ok {
		return Grade{}, false
	}

	filteredOverview, ok := getKey(filteredDoc, "overview")
	if !ok {
		return Grade{}, false
	}
	semGpa, ok := floatKey(filteredOverview, "gpa")
	if !ok {
		return Grade{}, false
	}

	rawSemesters, ok := getKey(filteredDoc, "semesters")
	if !ok {
		return Grade{}, false
	}
	semesters, ok := rawSemesters.([]any)
	if !ok {
		return Grade{}, false
	}

	scores := []SemesterScore{}
	for _, semester := range semesters {
		id, ok := intKey(semester, "id")
		if !ok {
			return Grade{}, false
		}
		name, ok := names[id]
		if !ok {
			return Grade{}, false
		}

		rawScores, ok := getKey(semester, "scores")
		if !ok {
			return Grade{}, false
		}
		scoreList, ok := rawScores.([]any)
		if !ok {
			return Grade{}, false
		}

		courses := SemesterGrade{}
		for _, raw := range scoreList {
			courseName, ok := stringKey(raw, "courseNameCh")
			if !ok {
				return Grade{}, false
			}
			score, ok := stringKey(raw, "scoreCh")
			if !ok {
				return Grade{}, false
			}
			credit, ok := floatKey(raw, "credits")
			if !ok {
				return Grade{}, false
			}
			courses = append(courses, Course{
				Name:    courseName,
				Score:   score,
				Credits: credit,
			})
		}

		scores = append(scores, SemesterScore{
			Semester: name,
			Courses:  courses,
		})
	}

	return Grade{
		Gpa:     gpa,
		SemGpa:  semGpa,
		Credits: credits,
		Scores:  scores,
	}, true
}

func getKey(v any, key string) (any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	field, ok := obj[key]
	return field, ok
}

func floatKey(v any, key string) (float64, bool) {
	field, ok := getKey(v, key)
	if !ok {
		return 0, false
	}
	f, ok := field.(float64)
	return f, ok
}

func stringKey(v any, key string) (string, bool) {
	field, ok := getKey(v, key)
	if !ok {
		return "", false
	}
	s, ok := field.(string)
	return s, ok
}

// json numbers decode as float64, ids and credit totals must be whole
// and non-negative
func intKey(v any, key string) (int64, bool) {
	f, ok := floatKey(v, key)
	if !ok || f < 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
