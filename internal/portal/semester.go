package portal

import (
	"fmt"
	"time"
)

// The autumn semester of the 2025/2026 study year has id 26; every study
// year adds two semesters.
const (
	baseStudyYear  = 2025
	baseSemesterID = 26
	autumnStartsIn = time.September
)

// Semester identifies a portal semester.
type Semester struct {
	ID   int
	Name string
}

// CurrentSemester computes the portal semester that contains now.
func CurrentSemester(now time.Time) Semester {
	studyYear := now.Year()
	if now.Month() < autumnStartsIn {
		studyYear--
	}

	id := baseSemesterID + (studyYear-baseStudyYear)*2
	years := fmt.Sprintf("%d/%d", studyYear, studyYear+1)
	if now.Month() < autumnStartsIn {
		return Semester{ID: id + 1, Name: years + " весенний"}
	}
	return Semester{ID: id, Name: years + " осенний"}
}
