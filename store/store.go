// Package store implements the course storage contract over SQLite or
// PostgreSQL. Parent rows are resolved by natural key and created with an
// atomic insert-if-absent so concurrent runs never duplicate them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/coursefed/course"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("row with this natural key already exists")
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
)

// Institution is a university row.
type Institution struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Country     string `db:"country"`
	City        string `db:"city"`
	WebsiteURL  string `db:"website_url"`
	Description string `db:"description"`
	CreatedAt   string `db:"created_at"`
}

// Department is keyed by institution and name.
type Department struct {
	ID            string `db:"id"`
	InstitutionID string `db:"institution_id"`
	Name          string `db:"name"`
	Code          string `db:"code"`
	Description   string `db:"description"`
}

// Category is a degree type such as "MSc".
type Category struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

// CourseRecord is a canonical course together with the ids of the rows it
// references.
type CourseRecord struct {
	ID            string
	InstitutionID string
	DepartmentID  string
	CategoryID    string
	course.Course
}

// courseRow is the column layout of the courses table.
type courseRow struct {
	ID                   string         `db:"id"`
	InstitutionID        string         `db:"institution_id"`
	DepartmentID         string         `db:"department_id"`
	CategoryID           string         `db:"category_id"`
	Title                string         `db:"title"`
	Description          string         `db:"description"`
	Duration             string         `db:"duration"`
	DurationMonths       int            `db:"duration_months"`
	Fees                 int            `db:"fees"`
	Currency             string         `db:"currency"`
	Location             string         `db:"location"`
	EntryRequirements    string         `db:"entry_requirements"`
	Modules              string         `db:"modules"`
	AssessmentMethods    string         `db:"assessment_methods"`
	CareerProspects      string         `db:"career_prospects"`
	StartDates           sql.NullString `db:"start_dates"`
	ApplicationDeadline  sql.NullString `db:"application_deadline"`
	LanguageRequirements string         `db:"language_requirements"`
	ScholarshipAvailable bool           `db:"scholarship_available"`
	Accreditation        sql.NullString `db:"accreditation"`
	ImageURL             string         `db:"image_url"`
	SourceURL            string         `db:"source_url"`
	IsActive             bool           `db:"is_active"`
	LastScrapedAt        string         `db:"last_scraped_at"`
	CreatedAt            string         `db:"created_at"`
	UpdatedAt            string         `db:"updated_at"`
}

const courseColumns = `id, institution_id, department_id, category_id, title, description,
	duration, duration_months, fees, currency, location, entry_requirements, modules,
	assessment_methods, career_prospects, start_dates, application_deadline,
	language_requirements, scholarship_available, accreditation, image_url, source_url,
	is_active, last_scraped_at, created_at, updated_at`

// Store is the sqlx-backed storage contract.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// New wraps an existing connection. The schema is not touched.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates the tables if they don't exist. The DDL is valid for
// both supported drivers.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS institutions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			country TEXT NOT NULL,
			city TEXT NOT NULL,
			website_url TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS departments (
			id TEXT PRIMARY KEY,
			institution_id TEXT NOT NULL REFERENCES institutions(id),
			name TEXT NOT NULL,
			code TEXT NOT NULL,
			description TEXT NOT NULL,
			UNIQUE (institution_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS courses (
			id TEXT PRIMARY KEY,
			institution_id TEXT NOT NULL REFERENCES institutions(id),
			department_id TEXT NOT NULL REFERENCES departments(id),
			category_id TEXT NOT NULL REFERENCES categories(id),
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			duration TEXT NOT NULL,
			duration_months INTEGER NOT NULL,
			fees INTEGER NOT NULL,
			currency TEXT NOT NULL,
			location TEXT NOT NULL,
			entry_requirements TEXT NOT NULL,
			modules TEXT NOT NULL,
			assessment_methods TEXT NOT NULL,
			career_prospects TEXT NOT NULL,
			start_dates TEXT,
			application_deadline TEXT,
			language_requirements TEXT NOT NULL,
			scholarship_available BOOLEAN NOT NULL,
			accreditation TEXT,
			image_url TEXT NOT NULL,
			source_url TEXT NOT NULL,
			is_active BOOLEAN NOT NULL,
			last_scraped_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (title, institution_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindInstitutionByName returns ErrNotFound if no row has that name.
func (s *Store) FindInstitutionByName(ctx context.Context, name string) (Institution, error) {
	var inst Institution
	query := s.db.Rebind(`SELECT id, name, country, city, website_url, description, created_at
		FROM institutions WHERE name = ?`)
	if err := s.db.GetContext(ctx, &inst, query, name); err != nil {
		return Institution{}, notFound("institution", err)
	}
	return inst, nil
}

// CreateInstitution inserts inst unless a row with the same name exists,
// then returns whichever row holds the name.
func (s *Store) CreateInstitution(ctx context.Context, inst Institution) (Institution, error) {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	inst.CreatedAt = formatTime(s.now())

	query := s.db.Rebind(`INSERT INTO institutions
		(id, name, country, city, website_url, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, query,
		inst.ID, inst.Name, inst.Country, inst.City, inst.WebsiteURL, inst.Description, inst.CreatedAt)
	if err != nil {
		return Institution{}, fmt.Errorf("failed to create institution: %w", err)
	}

	return s.FindInstitutionByName(ctx, inst.Name)
}

// FindDepartmentByNaturalKey looks up a department by its institution and
// name.
func (s *Store) FindDepartmentByNaturalKey(ctx context.Context, institutionID, name string) (Department, error) {
	var dept Department
	query := s.db.Rebind(`SELECT id, institution_id, name, code, description
		FROM departments WHERE institution_id = ? AND name = ?`)
	if err := s.db.GetContext(ctx, &dept, query, institutionID, name); err != nil {
		return Department{}, notFound("department", err)
	}
	return dept, nil
}

// CreateDepartment inserts dept unless its natural key is taken.
func (s *Store) CreateDepartment(ctx context.Context, dept Department) (Department, error) {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}

	query := s.db.Rebind(`INSERT INTO departments (id, institution_id, name, code, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (institution_id, name) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, query, dept.ID, dept.InstitutionID, dept.Name, dept.Code, dept.Description)
	if err != nil {
		return Department{}, fmt.Errorf("failed to create department: %w", err)
	}

	return s.FindDepartmentByNaturalKey(ctx, dept.InstitutionID, dept.Name)
}

// FindCategoryByName returns ErrNotFound if no row has that name.
func (s *Store) FindCategoryByName(ctx context.Context, name string) (Category, error) {
	var cat Category
	query := s.db.Rebind(`SELECT id, name, description FROM categories WHERE name = ?`)
	if err := s.db.GetContext(ctx, &cat, query, name); err != nil {
		return Category{}, notFound("category", err)
	}
	return cat, nil
}

// CreateCategory inserts cat unless the name is taken.
func (s *Store) CreateCategory(ctx context.Context, cat Category) (Category, error) {
	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}

	query := s.db.Rebind(`INSERT INTO categories (id, name, description)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, query, cat.ID, cat.Name, cat.Description); err != nil {
		return Category{}, fmt.Errorf("failed to create category: %w", err)
	}

	return s.FindCategoryByName(ctx, cat.Name)
}

// FindCourseByNaturalKey looks up a course by title within an institution.
func (s *Store) FindCourseByNaturalKey(ctx context.Context, title, institutionID string) (CourseRecord, error) {
	var row courseRow
	query := s.db.Rebind(`SELECT ` + courseColumns + `
		FROM courses WHERE title = ? AND institution_id = ?`)
	if err := s.db.GetContext(ctx, &row, query, title, institutionID); err != nil {
		return CourseRecord{}, notFound("course", err)
	}
	return row.record()
}

// InsertCourse stores a new course and returns its id. It returns
// ErrConflict if a course with the same title already exists for the
// institution.
func (s *Store) InsertCourse(ctx context.Context, rec CourseRecord) (string, error) {
	row, err := toRow(rec)
	if err != nil {
		return "", err
	}
	row.ID = uuid.NewString()
	now := formatTime(s.now())
	row.CreatedAt = now
	row.UpdatedAt = now

	query := `INSERT INTO courses (` + courseColumns + `) VALUES (
		:id, :institution_id, :department_id, :category_id, :title, :description,
		:duration, :duration_months, :fees, :currency, :location, :entry_requirements, :modules,
		:assessment_methods, :career_prospects, :start_dates, :application_deadline,
		:language_requirements, :scholarship_available, :accreditation, :image_url, :source_url,
		:is_active, :last_scraped_at, :created_at, :updated_at)
		ON CONFLICT (title, institution_id) DO NOTHING`

	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return "", fmt.Errorf("failed to insert course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to insert course: %w", err)
	}
	if affected == 0 {
		return "", fmt.Errorf("%w: %q", ErrConflict, rec.Title)
	}

	return row.ID, nil
}

// UpdateCourse overwrites every mutable column of the course with the
// given id. The created_at stamp is preserved.
func (s *Store) UpdateCourse(ctx context.Context, id string, rec CourseRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	row.ID = id
	row.UpdatedAt = formatTime(s.now())

	query := `UPDATE courses SET
		institution_id = :institution_id, department_id = :department_id,
		category_id = :category_id, title = :title, description = :description,
		duration = :duration, duration_months = :duration_months, fees = :fees,
		currency = :currency, location = :location, entry_requirements = :entry_requirements,
		modules = :modules, assessment_methods = :assessment_methods,
		career_prospects = :career_prospects, start_dates = :start_dates,
		application_deadline = :application_deadline,
		language_requirements = :language_requirements,
		scholarship_available = :scholarship_available, accreditation = :accreditation,
		image_url = :image_url, source_url = :source_url, is_active = :is_active,
		last_scraped_at = :last_scraped_at, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("course %s: %w", id, ErrNotFound)
	}

	return nil
}

// CountCourses returns the number of stored courses.
func (s *Store) CountCourses(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM courses`); err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return n, nil
}

func notFound(entity string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return fmt.Errorf("failed to find %s: %w", entity, err)
}

func toRow(rec CourseRecord) (courseRow, error) {
	c := rec.Course
	modules := c.Modules
	if modules == nil {
		modules = []string{}
	}
	modulesJSON, err := json.Marshal(modules)
	if err != nil {
		return courseRow{}, fmt.Errorf("failed to encode modules: %w", err)
	}

	row := courseRow{
		ID:                   rec.ID,
		InstitutionID:        rec.InstitutionID,
		DepartmentID:         rec.DepartmentID,
		CategoryID:           rec.CategoryID,
		Title:                c.Title,
		Description:          c.Description,
		Duration:             c.Duration,
		DurationMonths:       c.DurationMonths,
		Fees:                 c.Fees,
		Currency:             c.Currency,
		Location:             c.Location,
		EntryRequirements:    c.EntryRequirements,
		Modules:              string(modulesJSON),
		AssessmentMethods:    c.AssessmentMethods,
		CareerProspects:      c.CareerProspects,
		ApplicationDeadline:  nullString(c.ApplicationDeadline),
		LanguageRequirements: c.LanguageRequirements,
		ScholarshipAvailable: c.ScholarshipAvailable,
		Accreditation:        nullString(c.Accreditation),
		ImageURL:             c.ImageURL,
		SourceURL:            c.SourceURL,
		IsActive:             c.IsActive,
		LastScrapedAt:        formatTime(c.LastScrapedAt),
	}

	if c.StartDates != nil {
		data, err := json.Marshal(c.StartDates)
		if err != nil {
			return courseRow{}, fmt.Errorf("failed to encode start dates: %w", err)
		}
		row.StartDates = sql.NullString{String: string(data), Valid: true}
	}

	return row, nil
}

func (r courseRow) record() (CourseRecord, error) {
	c := course.Course{
		Title:                r.Title,
		Description:          r.Description,
		Duration:             r.Duration,
		DurationMonths:       r.DurationMonths,
		Fees:                 r.Fees,
		Currency:             r.Currency,
		Location:             r.Location,
		EntryRequirements:    r.EntryRequirements,
		AssessmentMethods:    r.AssessmentMethods,
		CareerProspects:      r.CareerProspects,
		ApplicationDeadline:  stringPtr(r.ApplicationDeadline),
		LanguageRequirements: r.LanguageRequirements,
		ScholarshipAvailable: r.ScholarshipAvailable,
		Accreditation:        stringPtr(r.Accreditation),
		ImageURL:             r.ImageURL,
		SourceURL:            r.SourceURL,
		IsActive:             r.IsActive,
	}

	if err := json.Unmarshal([]byte(r.Modules), &c.Modules); err != nil {
		return CourseRecord{}, fmt.Errorf("failed to decode modules: %w", err)
	}
	if r.StartDates.Valid {
		if err := json.Unmarshal([]byte(r.StartDates.String), &c.StartDates); err != nil {
			return CourseRecord{}, fmt.Errorf("failed to decode start dates: %w", err)
		}
	}

	var err error
	if c.LastScrapedAt, err = parseTime(r.LastScrapedAt); err != nil {
		return CourseRecord{}, err
	}

	return CourseRecord{
		ID:            r.ID,
		InstitutionID: r.InstitutionID,
		DepartmentID:  r.DepartmentID,
		CategoryID:    r.CategoryID,
		Course:        c,
	}, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// formatTime formats a time for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored time.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}
