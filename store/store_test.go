package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pevans/coursefed/course"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "courses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return New(sqlx.NewDb(mockDB, DriverSQLite)), mock
}

// seedParents creates one institution, department and category.
func seedParents(t *testing.T, s *Store) (Institution, Department, Category) {
	t.Helper()
	ctx := context.Background()

	inst, err := s.CreateInstitution(ctx, Institution{
		Name:       "University of Edinburgh",
		Country:    "United Kingdom",
		City:       "Edinburgh",
		WebsiteURL: "https://www.ed.ac.uk",
	})
	require.NoError(t, err)

	dept, err := s.CreateDepartment(ctx, Department{
		InstitutionID: inst.ID,
		Name:          "School of Informatics",
		Code:          "SI",
	})
	require.NoError(t, err)

	cat, err := s.CreateCategory(ctx, Category{Name: "MSc", Description: "Master of Science"})
	require.NoError(t, err)

	return inst, dept, cat
}

func sampleRecord(inst Institution, dept Department, cat Category) CourseRecord {
	deadline := "2027-07-31"
	return CourseRecord{
		InstitutionID: inst.ID,
		DepartmentID:  dept.ID,
		CategoryID:    cat.ID,
		Course: course.Course{
			Title:               "MSc Computing Science",
			Description:         "A conversion course.",
			Duration:            "12 months",
			DurationMonths:      12,
			Fees:                35900,
			Currency:            course.Currency,
			Location:            "Edinburgh, Scotland",
			Modules:             []string{"Algorithms", "Databases"},
			ApplicationDeadline: &deadline,
			IsActive:            true,
			LastScrapedAt:       time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
		},
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestCreateInstitution_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.CreateInstitution(ctx, Institution{Name: "University of Bristol", City: "Bristol"})
	require.NoError(t, err)
	second, err := s.CreateInstitution(ctx, Institution{Name: "University of Bristol", City: "Elsewhere"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Bristol", second.City, "existing row wins")
}

func TestFindInstitutionByName_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.FindInstitutionByName(context.Background(), "Nowhere University")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDepartment_ScopedByInstitution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inst, dept, _ := seedParents(t, s)

	again, err := s.CreateDepartment(ctx, Department{InstitutionID: inst.ID, Name: dept.Name})
	require.NoError(t, err)
	assert.Equal(t, dept.ID, again.ID)

	other, err := s.CreateInstitution(ctx, Institution{Name: "Imperial College London"})
	require.NoError(t, err)
	sameName, err := s.CreateDepartment(ctx, Department{InstitutionID: other.ID, Name: dept.Name})
	require.NoError(t, err)
	assert.NotEqual(t, dept.ID, sameName.ID)
}

func TestCreateCategory_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.CreateCategory(ctx, Category{Name: "MSc"})
	require.NoError(t, err)
	second, err := s.CreateCategory(ctx, Category{Name: "MSc"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCourse_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inst, dept, cat := seedParents(t, s)
	rec := sampleRecord(inst, dept, cat)

	id, err := s.InsertCourse(ctx, rec)
	require.NoError(t, err)

	got, err := s.FindCourseByNaturalKey(ctx, rec.Title, inst.ID)
	require.NoError(t, err)

	assert.Equal(t, id, got.ID)
	assert.Equal(t, dept.ID, got.DepartmentID)
	assert.Equal(t, 35900, got.Fees)
	assert.Equal(t, []string{"Algorithms", "Databases"}, got.Modules)
	assert.Nil(t, got.StartDates)
	assert.Nil(t, got.Accreditation)
	require.NotNil(t, got.ApplicationDeadline)
	assert.Equal(t, "2027-07-31", *got.ApplicationDeadline)
	assert.True(t, got.IsActive)
	assert.True(t, rec.LastScrapedAt.Equal(got.LastScrapedAt))
}

func TestInsertCourse_Conflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := sampleRecord(seedParents(t, s))

	_, err := s.InsertCourse(ctx, rec)
	require.NoError(t, err)
	_, err = s.InsertCourse(ctx, rec)
	assert.ErrorIs(t, err, ErrConflict)

	n, err := s.CountCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateCourse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := sampleRecord(seedParents(t, s))

	id, err := s.InsertCourse(ctx, rec)
	require.NoError(t, err)

	rec.Fees = 37000
	rec.StartDates = []string{"September 2027"}
	require.NoError(t, s.UpdateCourse(ctx, id, rec))

	got, err := s.FindCourseByNaturalKey(ctx, rec.Title, rec.InstitutionID)
	require.NoError(t, err)
	assert.Equal(t, 37000, got.Fees)
	assert.Equal(t, []string{"September 2027"}, got.StartDates)
}

func TestUpdateCourse_NotFound(t *testing.T) {
	s := openTestStore(t)
	rec := sampleRecord(seedParents(t, s))

	err := s.UpdateCourse(context.Background(), "missing-id", rec)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateInstitution_ExecError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO institutions").
		WillReturnError(errors.New("connection refused"))

	_, err := s.CreateInstitution(context.Background(), Institution{Name: "University of Oxford"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create institution")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCategoryByName_QueryError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM categories WHERE name").
		WithArgs("MSc").
		WillReturnError(errors.New("connection reset"))

	_, err := s.FindCategoryByName(context.Background(), "MSc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "failed to find category")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDepartment_NoRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM departments WHERE institution_id").
		WithArgs("inst-1", "School of Informatics").
		WillReturnRows(sqlmock.NewRows([]string{"id", "institution_id", "name", "code", "description"}))

	_, err := s.FindDepartmentByNaturalKey(context.Background(), "inst-1", "School of Informatics")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCourse_ConflictFromDriver(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO courses").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.InsertCourse(context.Background(), CourseRecord{Course: course.Course{Title: "MSc Data Science"}})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCourse_ExecError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE courses SET").
		WillReturnError(errors.New("disk I/O error"))

	err := s.UpdateCourse(context.Background(), "c-1", CourseRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update course")
	assert.NoError(t, mock.ExpectationsWereMet())
}
