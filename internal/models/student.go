package models

import "time"

// Student represents a learner registered in the institution. StudentCode
// follows the STD-YYYY-NNNN format.
type Student struct {
	ID          string    `db:"id" json:"id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	StudentCode string    `db:"student_code" json:"student_code"`
	DateOfBirth time.Time `db:"date_of_birth" json:"date_of_birth"`
	Sex         string    `db:"sex" json:"sex"`
	Phone       string    `db:"phone" json:"phone"`
	Address     string    `db:"address" json:"address"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
