package models

import "time"

// SemesterName enumerates the two semesters of an academic year.
type SemesterName string

const (
	SemesterS1 SemesterName = "S1"
	SemesterS2 SemesterName = "S2"
)

// Semester belongs to exactly one AcademicYear. The (academic_year_id, name)
// pair is unique.
type Semester struct {
	ID             string       `db:"id" json:"id"`
	AcademicYearID string       `db:"academic_year_id" json:"academic_year_id"`
	Name           SemesterName `db:"name" json:"name"`
	StartDate      time.Time    `db:"start_date" json:"start_date"`
	EndDate        time.Time    `db:"end_date" json:"end_date"`
	IsActive       bool         `db:"is_active" json:"is_active"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// SemesterDetail enriches Semester with the owning year's name.
type SemesterDetail struct {
	Semester
	AcademicYearName string `db:"academic_year_name" json:"academic_year_name"`
}

// SemesterFilter provides filters for listing semesters.
type SemesterFilter struct {
	AcademicYearID string
	Name           SemesterName
	IsActive       *bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
