// Package sources holds the catalog of scrapeable sources: a built-in set of
// UK universities plus any catalog files supplied at runtime.
package sources

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pevans/coursefed/scraper"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Custom errors for registry lookups
var (
	ErrUnknownSource     = errors.New("unknown source")
	ErrUnknownDepartment = errors.New("unknown department")
)

// Catalog is the on-disk format of a catalog file.
type Catalog struct {
	Sources []scraper.SourceConfig `yaml:"sources"`
}

// Registry maps source ids to their configuration. It is read-only once
// built.
type Registry struct {
	sources map[string]scraper.SourceConfig
}

// Summary describes a source for catalog listings.
type Summary struct {
	ID          string
	Name        string
	BaseURL     string
	Departments []DepartmentSummary
}

// DepartmentSummary describes one department of a source.
type DepartmentSummary struct {
	ID        string
	Name      string
	FetchMode scraper.FetchMode
	Pages     int
}

// NewRegistry validates sources and builds a registry. Later sources with
// the same id replace earlier ones.
func NewRegistry(sources ...scraper.SourceConfig) (*Registry, error) {
	r := &Registry{sources: make(map[string]scraper.SourceConfig, len(sources))}
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return nil, err
		}
		r.sources[src.ID] = src
	}
	return r, nil
}

// Builtin returns the registry of built-in sources.
func Builtin() (*Registry, error) {
	return Load()
}

// Load builds a registry from the built-in catalog overlaid with the given
// catalog files, in order.
func Load(paths ...string) (*Registry, error) {
	all, err := ParseCatalog(builtinCatalog)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in catalog: %w", err)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
		extra, err := ParseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
		}
		all = append(all, extra...)
	}

	return NewRegistry(all...)
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) ([]scraper.SourceConfig, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c.Sources, nil
}

// Get returns the source with the given id.
func (r *Registry) Get(id string) (scraper.SourceConfig, error) {
	src, ok := r.sources[id]
	if !ok {
		return scraper.SourceConfig{}, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return src, nil
}

// Target returns one department of a source.
func (r *Registry) Target(id, departmentID string) (scraper.Target, error) {
	src, err := r.Get(id)
	if err != nil {
		return scraper.Target{}, err
	}
	t, ok := src.Target(departmentID)
	if !ok {
		return scraper.Target{}, fmt.Errorf("%w: %s/%s", ErrUnknownDepartment, id, departmentID)
	}
	return t, nil
}

// Targets returns every department of a source.
func (r *Registry) Targets(id string) ([]scraper.Target, error) {
	src, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return src.Targets(), nil
}

// All returns every department of every source, sources ordered by id.
func (r *Registry) All() []scraper.Target {
	var targets []scraper.Target
	for _, id := range r.ids() {
		targets = append(targets, r.sources[id].Targets()...)
	}
	return targets
}

// List summarizes the catalog, ordered by source id.
func (r *Registry) List() []Summary {
	summaries := make([]Summary, 0, len(r.sources))
	for _, id := range r.ids() {
		src := r.sources[id]
		s := Summary{ID: src.ID, Name: src.Name, BaseURL: src.BaseURL}
		for _, t := range src.Targets() {
			s.Departments = append(s.Departments, DepartmentSummary{
				ID:        t.DepartmentID,
				Name:      t.DepartmentName,
				FetchMode: t.FetchMode,
				Pages:     len(t.Pages),
			})
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

func (r *Registry) ids() []string {
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
