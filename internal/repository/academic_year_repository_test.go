package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcademicYearRepositorySemesterRollups(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "start_date", "end_date", "is_active", "enrollments_count", "grades_count"}).
		AddRow("sem-1", "S1", now, now, true, 2, 1).
		AddRow("sem-2", "S2", now, now, false, 1, 1)

	mock.ExpectQuery("SELECT s.id, s.name, s.start_date, s.end_date, s.is_active").
		WithArgs("year-1").
		WillReturnRows(rows)

	rollups, err := repo.SemesterRollups(context.Background(), "year-1")
	require.NoError(t, err)
	require.Len(t, rollups, 2)
	assert.Equal(t, "S1", rollups[0].Name)
	assert.Equal(t, 2, rollups[0].EnrollmentsCount)
	assert.Equal(t, "S2", rollups[1].Name)
	assert.Equal(t, 1, rollups[1].GradesCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositorySemesterRollupsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectQuery("SELECT s.id, s.name, s.start_date, s.end_date, s.is_active").
		WithArgs("year-empty").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "start_date", "end_date", "is_active", "enrollments_count", "grades_count"}))

	rollups, err := repo.SemesterRollups(context.Background(), "year-empty")
	require.NoError(t, err)
	assert.Empty(t, rollups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositoryExistsByName(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM academic_years WHERE name = $1 AND id <> $2 LIMIT 1")).
		WithArgs("2025-2026", "self").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsByName(context.Background(), nil, "2025-2026", "self")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
