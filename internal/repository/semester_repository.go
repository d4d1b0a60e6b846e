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

// SemesterRepository handles persistence of semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// List returns semesters filtered by the provided criteria.
func (r *SemesterRepository) List(ctx context.Context, filter models.SemesterFilter) ([]models.SemesterDetail, int, error) {
	base := `FROM semesters s
LEFT JOIN academic_years y ON y.id = s.academic_year_id`
	var conditions []string
	var args []interface{}

	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("s.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.Name != "" {
		conditions = append(conditions, fmt.Sprintf("s.name = $%d", len(args)+1))
		args = append(args, filter.Name)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("s.is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "s.name",
		"start_date": "s.start_date",
		"year_name":  "y.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "s.start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT s.id, s.academic_year_id, s.name, s.start_date, s.end_date, s.is_active, s.created_at, s.updated_at,
        y.name AS academic_year_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var semesters []models.SemesterDetail
	if err := r.db.SelectContext(ctx, &semesters, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list semesters: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count semesters: %w", err)
	}
	return semesters, total, nil
}

// FindByID returns a semester by its ID.
func (r *SemesterRepository) FindByID(ctx context.Context, q database.Querier, id string) (*models.Semester, error) {
	if q == nil {
		q = r.db
	}
	const query = `SELECT id, academic_year_id, name, start_date, end_date, is_active, created_at, updated_at FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := q.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindDetailByID returns a semester with the owning year's name populated.
func (r *SemesterRepository) FindDetailByID(ctx context.Context, id string) (*models.SemesterDetail, error) {
	const query = `SELECT s.id, s.academic_year_id, s.name, s.start_date, s.end_date, s.is_active, s.created_at, s.updated_at,
        y.name AS academic_year_name
        FROM semesters s
        LEFT JOIN academic_years y ON y.id = s.academic_year_id
        WHERE s.id = $1`
	var detail models.SemesterDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists probes for the semester's existence within the given scope.
func (r *SemesterRepository) Exists(ctx context.Context, q database.Querier, id string) (bool, error) {
	if q == nil {
		q = r.db
	}
	var one int
	if err := q.GetContext(ctx, &one, "SELECT 1 FROM semesters WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check semester existence: %w", err)
	}
	return true, nil
}

// ExistsByYearAndName checks the (academic_year_id, name) invariant key.
func (r *SemesterRepository) ExistsByYearAndName(ctx context.Context, q database.Querier, yearID string, name models.SemesterName, excludeID string) (bool, error) {
	if q == nil {
		q = r.db
	}
	query := "SELECT 1 FROM semesters WHERE academic_year_id = $1 AND name = $2"
	args := []interface{}{yearID, name}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var one int
	if err := q.GetContext(ctx, &one, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check semester uniqueness: %w", err)
	}
	return true, nil
}

// Create inserts a new semester record.
func (r *SemesterRepository) Create(ctx context.Context, q database.Querier, semester *models.Semester) error {
	if q == nil {
		q = r.db
	}
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if semester.CreatedAt.IsZero() {
		semester.CreatedAt = now
	}
	semester.UpdatedAt = now

	const query = `INSERT INTO semesters (id, academic_year_id, name, start_date, end_date, is_active, created_at, updated_at)
        VALUES (:id, :academic_year_id, :name, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// Update modifies an existing semester.
func (r *SemesterRepository) Update(ctx context.Context, q database.Querier, semester *models.Semester) error {
	if q == nil {
		q = r.db
	}
	semester.UpdatedAt = time.Now().UTC()
	const query = `UPDATE semesters SET academic_year_id = :academic_year_id, name = :name, start_date = :start_date, end_date = :end_date, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, q, query, semester); err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	return nil
}

// Delete removes a semester permanently.
func (r *SemesterRepository) Delete(ctx context.Context, q database.Querier, id string) error {
	if q == nil {
		q = r.db
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM semesters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete semester: %w", err)
	}
	return nil
}

// CountEnrollments returns the number of enrollments referencing the semester.
func (r *SemesterRepository) CountEnrollments(ctx context.Context, q database.Querier, id string) (int, error) {
	if q == nil {
		q = r.db
	}
	var count int
	if err := q.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE semester_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count semester enrollments: %w", err)
	}
	return count, nil
}
