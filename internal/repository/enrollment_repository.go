package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students st ON st.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id
LEFT JOIN semesters s ON s.id = e.semester_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("e.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "st.last_name",
		"course_name":  "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.semester_id, e.status, e.created_at, e.updated_at,
        st.first_name || ' ' || st.last_name AS student_name, st.student_code,
        c.name AS course_name, c.code AS course_code, s.name AS semester_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, q database.Querier, id string) (*models.Enrollment, error) {
	if q == nil {
		q = r.db
	}
	const query = `SELECT id, student_id, course_id, semester_id, status, created_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := q.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info. Intended for
// response shaping after commit, it reads outside any transaction.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.semester_id, e.status, e.created_at, e.updated_at,
        st.first_name || ' ' || st.last_name AS student_name, st.student_code,
        c.name AS course_name, c.code AS course_code, s.name AS semester_name
        FROM enrollments e
        LEFT JOIN students st ON st.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        LEFT JOIN semesters s ON s.id = e.semester_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists probes for the enrollment's existence within the given scope.
func (r *EnrollmentRepository) Exists(ctx context.Context, q database.Querier, id string) (bool, error) {
	if q == nil {
		q = r.db
	}
	var one int
	if err := q.GetContext(ctx, &one, "SELECT 1 FROM enrollments WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment existence: %w", err)
	}
	return true, nil
}

// ExistsTriple checks the (student, course, semester) invariant key,
// optionally excluding the record being updated.
func (r *EnrollmentRepository) ExistsTriple(ctx context.Context, q database.Querier, studentID, courseID, semesterID, excludeID string) (bool, error) {
	if q == nil {
		q = r.db
	}
	query := "SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND semester_id = $3"
	args := []interface{}{studentID, courseID, semesterID}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	var one int
	if err := q.GetContext(ctx, &one, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment uniqueness: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, q database.Querier, enrollment *models.Enrollment) error {
	if q == nil {
		q = r.db
	}
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, student_id, course_id, semester_id, status, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :semester_id, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Update modifies an existing enrollment.
func (r *EnrollmentRepository) Update(ctx context.Context, q database.Querier, enrollment *models.Enrollment) error {
	if q == nil {
		q = r.db
	}
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET student_id = :student_id, course_id = :course_id, semester_id = :semester_id, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, q, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment permanently.
func (r *EnrollmentRepository) Delete(ctx context.Context, q database.Querier, id string) error {
	if q == nil {
		q = r.db
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// CountGrades returns the number of grades referencing the enrollment.
func (r *EnrollmentRepository) CountGrades(ctx context.Context, q database.Querier, id string) (int, error) {
	if q == nil {
		q = r.db
	}
	var count int
	if err := q.GetContext(ctx, &count, `SELECT COUNT(*) FROM grades WHERE enrollment_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count enrollment grades: %w", err)
	}
	return count, nil
}
