// Package persist writes canonical course records through the storage
// contract, resolving the institution, department and category each record
// references.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/pevans/coursefed/course"
	"github.com/pevans/coursefed/heuristics"
	"github.com/pevans/coursefed/logger"
	"github.com/pevans/coursefed/store"
)

// Storage is the narrow contract the orchestrator needs. *store.Store
// implements it.
type Storage interface {
	FindInstitutionByName(ctx context.Context, name string) (store.Institution, error)
	CreateInstitution(ctx context.Context, inst store.Institution) (store.Institution, error)
	FindDepartmentByNaturalKey(ctx context.Context, institutionID, name string) (store.Department, error)
	CreateDepartment(ctx context.Context, dept store.Department) (store.Department, error)
	FindCategoryByName(ctx context.Context, name string) (store.Category, error)
	CreateCategory(ctx context.Context, cat store.Category) (store.Category, error)
	FindCourseByNaturalKey(ctx context.Context, title, institutionID string) (store.CourseRecord, error)
	InsertCourse(ctx context.Context, rec store.CourseRecord) (string, error)
	UpdateCourse(ctx context.Context, id string, rec store.CourseRecord) error
}

// Source describes where a batch of records came from.
type Source struct {
	InstitutionName string
	DepartmentName  string
	Category        string
	WebsiteURL      string
}

// PersistenceError reports a record that could not be stored.
type PersistenceError struct {
	Title string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %q: %v", e.Title, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Result summarizes one Persist call. Stored is Inserted plus Updated.
type Result struct {
	Stored   int
	Inserted int
	Updated  int
	Errors   []error
}

type departmentKey struct {
	institutionID string
	name          string
}

// Orchestrator resolves parent rows once per natural key and upserts
// courses by title and institution.
type Orchestrator struct {
	storage Storage
	tables  *heuristics.Tables
	log     logger.Logger

	mu           sync.Mutex
	institutions map[string]store.Institution
	departments  map[departmentKey]store.Department
	categories   map[string]store.Category
}

// New creates an Orchestrator. A nil tables uses the embedded defaults.
func New(storage Storage, tables *heuristics.Tables, log logger.Logger) *Orchestrator {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &Orchestrator{
		storage:      storage,
		tables:       tables,
		log:          log,
		institutions: make(map[string]store.Institution),
		departments:  make(map[departmentKey]store.Department),
		categories:   make(map[string]store.Category),
	}
}

// Persist stores every record. A failing record is logged and counted in
// Result.Errors; it never stops the batch.
func (o *Orchestrator) Persist(ctx context.Context, courses []course.Course, src Source) Result {
	var result Result
	if len(courses) == 0 {
		return result
	}

	inst, dept, cat, err := o.resolveParents(ctx, src)
	if err != nil {
		// Without parents no record can be stored.
		for _, c := range courses {
			result.Errors = append(result.Errors, o.fail(c.Title, err))
		}
		return result
	}

	for _, c := range courses {
		rec := store.CourseRecord{
			InstitutionID: inst.ID,
			DepartmentID:  dept.ID,
			CategoryID:    cat.ID,
			Course:        c,
		}

		inserted, err := o.upsert(ctx, rec)
		if err != nil {
			result.Errors = append(result.Errors, o.fail(c.Title, err))
			continue
		}

		result.Stored++
		if inserted {
			result.Inserted++
			o.log.Debug("Stored course", logger.String("title", c.Title))
		} else {
			result.Updated++
			o.log.Debug("Updated course", logger.String("title", c.Title))
		}
	}

	return result
}

func (o *Orchestrator) fail(title string, err error) error {
	perr := &PersistenceError{Title: title, Err: err}
	o.log.Error("Failed to store course",
		logger.String("title", title),
		logger.Error(err),
	)
	return perr
}

// upsert reports whether the record was inserted rather than updated.
func (o *Orchestrator) upsert(ctx context.Context, rec store.CourseRecord) (bool, error) {
	existing, err := o.storage.FindCourseByNaturalKey(ctx, rec.Title, rec.InstitutionID)
	switch {
	case err == nil:
		return false, o.storage.UpdateCourse(ctx, existing.ID, rec)
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	if _, err := o.storage.InsertCourse(ctx, rec); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return false, err
		}
		// Another run inserted it first.
		existing, err := o.storage.FindCourseByNaturalKey(ctx, rec.Title, rec.InstitutionID)
		if err != nil {
			return false, err
		}
		return false, o.storage.UpdateCourse(ctx, existing.ID, rec)
	}

	return true, nil
}

func (o *Orchestrator) resolveParents(ctx context.Context, src Source) (
	store.Institution, store.Department, store.Category, error,
) {
	o.mu.Lock()
	defer o.mu.Unlock()

	inst, err := o.institution(ctx, src)
	if err != nil {
		return store.Institution{}, store.Department{}, store.Category{}, err
	}
	dept, err := o.department(ctx, inst.ID, src.DepartmentName)
	if err != nil {
		return store.Institution{}, store.Department{}, store.Category{}, err
	}
	cat, err := o.category(ctx, src.Category)
	if err != nil {
		return store.Institution{}, store.Department{}, store.Category{}, err
	}
	return inst, dept, cat, nil
}

func (o *Orchestrator) institution(ctx context.Context, src Source) (store.Institution, error) {
	if inst, ok := o.institutions[src.InstitutionName]; ok {
		return inst, nil
	}

	inst, err := o.storage.FindInstitutionByName(ctx, src.InstitutionName)
	if errors.Is(err, store.ErrNotFound) {
		inst, err = o.storage.CreateInstitution(ctx, o.newInstitution(src))
	}
	if err != nil {
		return store.Institution{}, fmt.Errorf("failed to resolve institution: %w", err)
	}

	o.institutions[src.InstitutionName] = inst
	return inst, nil
}

func (o *Orchestrator) newInstitution(src Source) store.Institution {
	city := ""
	if loc, ok := o.tables.Location(src.InstitutionName); ok {
		city, _, _ = strings.Cut(loc, ",")
	}
	return store.Institution{
		Name:        src.InstitutionName,
		Country:     o.tables.Defaults.Country,
		City:        strings.TrimSpace(city),
		WebsiteURL:  src.WebsiteURL,
		Description: src.InstitutionName + " - Leading UK university",
	}
}

func (o *Orchestrator) department(ctx context.Context, institutionID, name string) (store.Department, error) {
	if name == "" {
		name = o.tables.Defaults.Department
	}
	key := departmentKey{institutionID: institutionID, name: name}
	if dept, ok := o.departments[key]; ok {
		return dept, nil
	}

	dept, err := o.storage.FindDepartmentByNaturalKey(ctx, institutionID, name)
	if errors.Is(err, store.ErrNotFound) {
		dept, err = o.storage.CreateDepartment(ctx, store.Department{
			InstitutionID: institutionID,
			Name:          name,
			Code:          DepartmentCode(name),
			Description:   name + " offering advanced programs",
		})
	}
	if err != nil {
		return store.Department{}, fmt.Errorf("failed to resolve department: %w", err)
	}

	o.departments[key] = dept
	return dept, nil
}

func (o *Orchestrator) category(ctx context.Context, name string) (store.Category, error) {
	if name == "" {
		name = o.tables.Defaults.Category
	}
	if cat, ok := o.categories[name]; ok {
		return cat, nil
	}

	cat, err := o.storage.FindCategoryByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		cat, err = o.storage.CreateCategory(ctx, store.Category{
			Name:        name,
			Description: categoryDescription(name),
		})
	}
	if err != nil {
		return store.Category{}, fmt.Errorf("failed to resolve category: %w", err)
	}

	o.categories[name] = cat
	return cat, nil
}

func categoryDescription(name string) string {
	if name == "MSc" {
		return "Master of Science"
	}
	return name
}

var minorWords = map[string]bool{"of": true, "and": true, "the": true, "for": true, "&": true}

// DepartmentCode abbreviates a department name to the initials of its
// significant words: "Department of Computer Science" is "DCS".
func DepartmentCode(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		if minorWords[strings.ToLower(word)] {
			continue
		}
		r := []rune(word)[0]
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
