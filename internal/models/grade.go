package models

import "time"

// Grade records a single result for an enrollment. At most one grade exists
// per enrollment and the value lies in [0, 100].
type Grade struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Value        float64   `db:"value" json:"value"`
	GradedAt     time.Time `db:"graded_at" json:"graded_at"`
	GradedByID   string    `db:"graded_by_id" json:"graded_by_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GradeDetail enriches Grade with enrollment context and the grader's email.
type GradeDetail struct {
	Grade
	StudentName  string       `db:"student_name" json:"student_name"`
	CourseName   string       `db:"course_name" json:"course_name"`
	SemesterName SemesterName `db:"semester_name" json:"semester_name"`
	GradedBy     string       `db:"graded_by" json:"graded_by"`
}

// GradeFilter provides filters for listing grades.
type GradeFilter struct {
	EnrollmentID string
	SemesterID   string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
