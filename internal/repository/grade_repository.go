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

// GradeRepository handles persistence of grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grades filtered by the provided criteria.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	base := `FROM grades g
LEFT JOIN enrollments e ON e.id = g.enrollment_id
LEFT JOIN students st ON st.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id
LEFT JOIN semesters s ON s.id = e.semester_id
LEFT JOIN users u ON u.id = g.graded_by_id`
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("e.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"graded_at": "g.graded_at",
		"value":     "g.value",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "g.graded_at"
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

	query := fmt.Sprintf(`SELECT g.id, g.enrollment_id, g.value, g.graded_at, g.graded_by_id, g.created_at, g.updated_at,
        st.first_name || ' ' || st.last_name AS student_name,
        c.name AS course_name, s.name AS semester_name, u.email AS graded_by
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID returns a grade by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, q database.Querier, id string) (*models.Grade, error) {
	if q == nil {
		q = r.db
	}
	const query = `SELECT id, enrollment_id, value, graded_at, graded_by_id, created_at, updated_at FROM grades WHERE id = $1`
	var grade models.Grade
	if err := q.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FindDetailByID returns a grade with contextual info for response shaping.
func (r *GradeRepository) FindDetailByID(ctx context.Context, id string) (*models.GradeDetail, error) {
	const query = `SELECT g.id, g.enrollment_id, g.value, g.graded_at, g.graded_by_id, g.created_at, g.updated_at,
        st.first_name || ' ' || st.last_name AS student_name,
        c.name AS course_name, s.name AS semester_name, u.email AS graded_by
        FROM grades g
        LEFT JOIN enrollments e ON e.id = g.enrollment_id
        LEFT JOIN students st ON st.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        LEFT JOIN semesters s ON s.id = e.semester_id
        LEFT JOIN users u ON u.id = g.graded_by_id
        WHERE g.id = $1`
	var detail models.GradeDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByEnrollment checks the one-grade-per-enrollment invariant key.
func (r *GradeRepository) ExistsByEnrollment(ctx context.Context, q database.Querier, enrollmentID, excludeID string) (bool, error) {
	if q == nil {
		q = r.db
	}
	query := "SELECT 1 FROM grades WHERE enrollment_id = $1"
	args := []interface{}{enrollmentID}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var one int
	if err := q.GetContext(ctx, &one, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check grade uniqueness: %w", err)
	}
	return true, nil
}

// Create persists a new grade record.
func (r *GradeRepository) Create(ctx context.Context, q database.Querier, grade *models.Grade) error {
	if q == nil {
		q = r.db
	}
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.GradedAt.IsZero() {
		grade.GradedAt = now
	}
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now

	const query = `INSERT INTO grades (id, enrollment_id, value, graded_at, graded_by_id, created_at, updated_at)
        VALUES (:id, :enrollment_id, :value, :graded_at, :graded_by_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update modifies an existing grade.
func (r *GradeRepository) Update(ctx context.Context, q database.Querier, grade *models.Grade) error {
	if q == nil {
		q = r.db
	}
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET enrollment_id = :enrollment_id, value = :value, graded_at = :graded_at, graded_by_id = :graded_by_id, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, q, query, grade); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Delete removes a grade permanently.
func (r *GradeRepository) Delete(ctx context.Context, q database.Querier, id string) error {
	if q == nil {
		q = r.db
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}
