package persist

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pevans/coursefed/course"
	"github.com/pevans/coursefed/logger"
	"github.com/pevans/coursefed/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStorage is an in-memory Storage. failTitles makes InsertCourse and
// UpdateCourse fail for the named courses.
type memStorage struct {
	mu           sync.Mutex
	institutions map[string]store.Institution
	departments  map[string]store.Department
	categories   map[string]store.Category
	courses      map[string]store.CourseRecord
	nextID       int
	failTitles   map[string]bool
	failParents  bool

	institutionCreates int
	inserts            int
	updates            int
}

func newMemStorage() *memStorage {
	return &memStorage{
		institutions: make(map[string]store.Institution),
		departments:  make(map[string]store.Department),
		categories:   make(map[string]store.Category),
		courses:      make(map[string]store.CourseRecord),
		failTitles:   make(map[string]bool),
	}
}

func (m *memStorage) id(prefix string) string {
	m.nextID++
	return prefix + "-" + strconv.Itoa(m.nextID)
}

func (m *memStorage) FindInstitutionByName(_ context.Context, name string) (store.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failParents {
		return store.Institution{}, errors.New("database unavailable")
	}
	inst, ok := m.institutions[name]
	if !ok {
		return store.Institution{}, store.ErrNotFound
	}
	return inst, nil
}

func (m *memStorage) CreateInstitution(_ context.Context, inst store.Institution) (store.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.institutions[inst.Name]; ok {
		return existing, nil
	}
	m.institutionCreates++
	inst.ID = m.id("inst")
	m.institutions[inst.Name] = inst
	return inst, nil
}

func (m *memStorage) FindDepartmentByNaturalKey(_ context.Context, institutionID, name string) (store.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dept, ok := m.departments[institutionID+"/"+name]
	if !ok {
		return store.Department{}, store.ErrNotFound
	}
	return dept, nil
}

func (m *memStorage) CreateDepartment(_ context.Context, dept store.Department) (store.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dept.InstitutionID + "/" + dept.Name
	if existing, ok := m.departments[key]; ok {
		return existing, nil
	}
	dept.ID = m.id("dept")
	m.departments[key] = dept
	return dept, nil
}

func (m *memStorage) FindCategoryByName(_ context.Context, name string) (store.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cat, ok := m.categories[name]
	if !ok {
		return store.Category{}, store.ErrNotFound
	}
	return cat, nil
}

func (m *memStorage) CreateCategory(_ context.Context, cat store.Category) (store.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.categories[cat.Name]; ok {
		return existing, nil
	}
	cat.ID = m.id("cat")
	m.categories[cat.Name] = cat
	return cat, nil
}

func (m *memStorage) FindCourseByNaturalKey(_ context.Context, title, institutionID string) (store.CourseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.courses {
		if rec.Title == title && rec.InstitutionID == institutionID {
			return rec, nil
		}
	}
	return store.CourseRecord{}, store.ErrNotFound
}

func (m *memStorage) InsertCourse(_ context.Context, rec store.CourseRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTitles[rec.Title] {
		return "", errors.New("constraint violation")
	}
	m.inserts++
	rec.ID = m.id("course")
	m.courses[rec.ID] = rec
	return rec.ID, nil
}

func (m *memStorage) UpdateCourse(_ context.Context, id string, rec store.CourseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTitles[rec.Title] {
		return errors.New("constraint violation")
	}
	if _, ok := m.courses[id]; !ok {
		return store.ErrNotFound
	}
	m.updates++
	rec.ID = id
	m.courses[id] = rec
	return nil
}

func testSource() Source {
	return Source{
		InstitutionName: "University of Edinburgh",
		DepartmentName:  "School of Informatics",
		Category:        "MSc",
		WebsiteURL:      "https://www.ed.ac.uk",
	}
}

func testCourse(title string, fees int) course.Course {
	return course.Course{
		Title:          title,
		Duration:       "12 months",
		DurationMonths: 12,
		Fees:           fees,
		Currency:       course.Currency,
		Modules:        []string{},
		IsActive:       true,
		LastScrapedAt:  time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestPersist_InsertThenUpdate(t *testing.T) {
	mem := newMemStorage()
	o := New(mem, nil, logger.NewNop())
	ctx := context.Background()
	c := testCourse("MSc Computing Science", 35900)

	first := o.Persist(ctx, []course.Course{c}, testSource())
	assert.Equal(t, Result{Stored: 1, Inserted: 1}, first)

	c.Fees = 37000
	second := o.Persist(ctx, []course.Course{c}, testSource())
	assert.Equal(t, Result{Stored: 1, Updated: 1}, second)

	assert.Len(t, mem.courses, 1)
	assert.Equal(t, 1, mem.inserts)
	assert.Equal(t, 1, mem.updates)
	for _, rec := range mem.courses {
		assert.Equal(t, 37000, rec.Fees)
	}
}

func TestPersist_PartialFailure(t *testing.T) {
	mem := newMemStorage()
	mem.failTitles["MSc Broken Course"] = true
	o := New(mem, nil, logger.NewNop())

	result := o.Persist(context.Background(), []course.Course{
		testCourse("MSc Artificial Intelligence", 39000),
		testCourse("MSc Broken Course", 30000),
		testCourse("MSc Data Science", 33000),
	}, testSource())

	assert.Equal(t, 2, result.Stored)
	require.Len(t, result.Errors, 1)

	var perr *PersistenceError
	require.ErrorAs(t, result.Errors[0], &perr)
	assert.Equal(t, "MSc Broken Course", perr.Title)
}

func TestPersist_ParentFailureFailsBatch(t *testing.T) {
	mem := newMemStorage()
	mem.failParents = true
	o := New(mem, nil, logger.NewNop())

	result := o.Persist(context.Background(), []course.Course{
		testCourse("MSc Artificial Intelligence", 39000),
		testCourse("MSc Data Science", 33000),
	}, testSource())

	assert.Zero(t, result.Stored)
	assert.Len(t, result.Errors, 2)
}

func TestPersist_EmptyBatch(t *testing.T) {
	mem := newMemStorage()
	o := New(mem, nil, logger.NewNop())

	result := o.Persist(context.Background(), nil, testSource())

	assert.Equal(t, Result{}, result)
	assert.Empty(t, mem.institutions, "no parents are created for an empty batch")
}

func TestPersist_ResolvesParentsOnce(t *testing.T) {
	mem := newMemStorage()
	o := New(mem, nil, logger.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, title := range []string{"MSc Cyber Security", "MSc Robotics", "MSc Machine Learning"} {
		wg.Add(1)
		go func(title string) {
			defer wg.Done()
			o.Persist(ctx, []course.Course{testCourse(title, 30000)}, testSource())
		}(title)
	}
	wg.Wait()

	assert.Equal(t, 1, mem.institutionCreates)
	assert.Len(t, mem.departments, 1)
	assert.Len(t, mem.categories, 1)
	assert.Len(t, mem.courses, 3)
}

func TestPersist_Defaults(t *testing.T) {
	mem := newMemStorage()
	o := New(mem, nil, logger.NewNop())

	src := testSource()
	src.DepartmentName = ""
	src.Category = ""
	o.Persist(context.Background(), []course.Course{testCourse("MSc Robotics", 30000)}, src)

	inst := mem.institutions["University of Edinburgh"]
	assert.Equal(t, "Edinburgh", inst.City)
	assert.Equal(t, "United Kingdom", inst.Country)
	assert.Equal(t, "https://www.ed.ac.uk", inst.WebsiteURL)

	require.Len(t, mem.departments, 1)
	for _, dept := range mem.departments {
		assert.Equal(t, "Department of Computer Science", dept.Name)
		assert.Equal(t, "DCS", dept.Code)
	}
	assert.Equal(t, "Master of Science", mem.categories["MSc"].Description)
}

func TestPersist_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "courses.db"))
	require.NoError(t, err)
	defer s.Close()

	o := New(s, nil, logger.NewNop())
	batch := []course.Course{testCourse("MSc Computing Science", 35900)}

	assert.Equal(t, 1, o.Persist(ctx, batch, testSource()).Inserted)

	// A fresh orchestrator has an empty cache and must find existing rows.
	again := New(s, nil, logger.NewNop()).Persist(ctx, batch, testSource())
	assert.Equal(t, Result{Stored: 1, Updated: 1}, again)

	n, err := s.CountCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDepartmentCode(t *testing.T) {
	tests := map[string]string{
		"Department of Computer Science":          "DCS",
		"School of Informatics":                   "SI",
		"Department of Electrical and Electronic": "DEE",
		"The School for Business & Management":    "SBM",
		"":                                        "",
	}
	for name, want := range tests {
		assert.Equal(t, want, DepartmentCode(name), name)
	}
}
