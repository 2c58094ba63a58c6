package course

import "strings"

// Key is the natural key of a course: lowercased title and institution.
type Key struct {
	Title       string
	Institution string
}

// KeyOf returns the dedupe key for c.
func KeyOf(c Course) Key {
	return Key{
		Title:       strings.ToLower(strings.TrimSpace(c.Title)),
		Institution: strings.ToLower(strings.TrimSpace(c.InstitutionName)),
	}
}

// Dedupe keeps the first course for every key, preserving input order.
func Dedupe(courses []Course) []Course {
	return NewSeen().Filter(courses)
}

// Seen remembers keys across batches, so pages of the same source can be
// deduplicated against each other.
type Seen struct {
	keys map[Key]struct{}
}

// NewSeen creates an empty Seen set.
func NewSeen() *Seen {
	return &Seen{keys: make(map[Key]struct{})}
}

// Add records c and reports whether it was new.
func (s *Seen) Add(c Course) bool {
	k := KeyOf(c)
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}

// Filter returns the courses not seen before, in order, and records them.
func (s *Seen) Filter(courses []Course) []Course {
	out := make([]Course, 0, len(courses))
	for _, c := range courses {
		if s.Add(c) {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of distinct keys seen.
func (s *Seen) Len() int {
	return len(s.keys)
}
