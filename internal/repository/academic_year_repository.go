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

// AcademicYearRepository handles persistence for academic years.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository instantiates the repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// List returns academic years matching provided filters.
func (r *AcademicYearRepository) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	base := "FROM academic_years WHERE 1=1"
	var args []interface{}

	if filter.IsActive != nil {
		base += fmt.Sprintf(" AND is_active = $%d", len(args)+1)
		args = append(args, *filter.IsActive)
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"name": true, "start_date": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
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

	query := fmt.Sprintf("SELECT id, name, start_date, end_date, is_active, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)

	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list academic years: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count academic years: %w", err)
	}
	return years, total, nil
}

// FindByID loads an academic year using the provided query scope.
func (r *AcademicYearRepository) FindByID(ctx context.Context, q database.Querier, id string) (*models.AcademicYear, error) {
	if q == nil {
		q = r.db
	}
	const query = `SELECT id, name, start_date, end_date, is_active, created_at, updated_at FROM academic_years WHERE id = $1`
	var year models.AcademicYear
	if err := q.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// Exists probes for the year's existence within the given scope.
func (r *AcademicYearRepository) Exists(ctx context.Context, q database.Querier, id string) (bool, error) {
	if q == nil {
		q = r.db
	}
	var one int
	if err := q.GetContext(ctx, &one, "SELECT 1 FROM academic_years WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check academic year existence: %w", err)
	}
	return true, nil
}

// ExistsByName checks the name uniqueness invariant, optionally excluding the
// record being updated.
func (r *AcademicYearRepository) ExistsByName(ctx context.Context, q database.Querier, name, excludeID string) (bool, error) {
	if q == nil {
		q = r.db
	}
	query := "SELECT 1 FROM academic_years WHERE name = $1"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var one int
	if err := q.GetContext(ctx, &one, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check academic year name: %w", err)
	}
	return true, nil
}

// Create inserts a new academic year record.
func (r *AcademicYearRepository) Create(ctx context.Context, q database.Querier, year *models.AcademicYear) error {
	if q == nil {
		q = r.db
	}
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now

	const query = `INSERT INTO academic_years (id, name, start_date, end_date, is_active, created_at, updated_at)
        VALUES (:id, :name, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// Update modifies an existing academic year.
func (r *AcademicYearRepository) Update(ctx context.Context, q database.Querier, year *models.AcademicYear) error {
	if q == nil {
		q = r.db
	}
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_years SET name = :name, start_date = :start_date, end_date = :end_date, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, q, query, year); err != nil {
		return fmt.Errorf("update academic year: %w", err)
	}
	return nil
}

// Delete removes an academic year permanently.
func (r *AcademicYearRepository) Delete(ctx context.Context, q database.Querier, id string) error {
	if q == nil {
		q = r.db
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM academic_years WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete academic year: %w", err)
	}
	return nil
}

// CountSemesters returns the number of semesters referencing the year.
func (r *AcademicYearRepository) CountSemesters(ctx context.Context, q database.Querier, id string) (int, error) {
	if q == nil {
		q = r.db
	}
	var count int
	if err := q.GetContext(ctx, &count, `SELECT COUNT(*) FROM semesters WHERE academic_year_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count year semesters: %w", err)
	}
	return count, nil
}

// SemesterRollups aggregates enrollment and grade counts per semester of the
// year, joined from the live tables at query time. Semesters come back in
// name order so S1 always precedes S2.
func (r *AcademicYearRepository) SemesterRollups(ctx context.Context, yearID string) ([]models.SemesterRollup, error) {
	const query = `SELECT s.id, s.name, s.start_date, s.end_date, s.is_active,
        COUNT(DISTINCT e.id) AS enrollments_count,
        COUNT(DISTINCT g.id) AS grades_count
        FROM semesters s
        LEFT JOIN enrollments e ON e.semester_id = s.id
        LEFT JOIN grades g ON g.enrollment_id = e.id
        WHERE s.academic_year_id = $1
        GROUP BY s.id, s.name, s.start_date, s.end_date, s.is_active
        ORDER BY s.name ASC`
	var rollups []models.SemesterRollup
	if err := r.db.SelectContext(ctx, &rollups, query, yearID); err != nil {
		return nil, fmt.Errorf("aggregate semester rollups: %w", err)
	}
	return rollups, nil
}
