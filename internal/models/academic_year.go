package models

import "time"

// AcademicYear is the root of the academic hierarchy. Its name follows the
// YYYY-YYYY format where the second year is the first plus one.
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AcademicYearFilter defines filters supported by list endpoints.
type AcademicYearFilter struct {
	IsActive  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SemesterRollup is a join-time aggregate over a semester's enrollments and
// grades. Counts are computed from the live tables on every read, never from
// stored counters.
type SemesterRollup struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	EndDate          time.Time `db:"end_date" json:"end_date"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	EnrollmentsCount int       `db:"enrollments_count" json:"enrollments_count"`
	GradesCount      int       `db:"grades_count" json:"grades_count"`
}

// YearTotals sums per-semester rollups for a year.
type YearTotals struct {
	Enrollments int `json:"enrollments"`
	Grades      int `json:"grades"`
}

// AcademicYearDetail is the year-details payload: the year, its semesters in
// name order with their rollups, and year-level totals.
type AcademicYearDetail struct {
	AcademicYear AcademicYear     `json:"academic_year"`
	Semesters    []SemesterRollup `json:"semesters"`
	Totals       YearTotals       `json:"totals"`
}
