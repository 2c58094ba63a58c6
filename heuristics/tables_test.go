package heuristics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault verifies the embedded tables parse and carry the expected policy.
func TestDefault(t *testing.T) {
	tbl := Default()

	require.NotNil(t, tbl)
	assert.Positive(t, tbl.Version)
	assert.Equal(t, 35000, tbl.Policy.ScholarshipFeeThreshold)
	assert.Equal(t, 7, tbl.Policy.DeadlineMonth)
	assert.Equal(t, 31, tbl.Policy.DeadlineDay)
	assert.Equal(t, "MSc", tbl.Title.LevelPrefix)
	assert.Same(t, tbl, Default(), "parsed once")
}

func TestMatcher(t *testing.T) {
	m := NewMatcher("master", "ai", "data science")

	assert.True(t, m.Match("Masters in Robotics"))
	assert.True(t, m.Match("MSc AI"))
	assert.True(t, m.Match("Applied Data Science"))
	assert.False(t, m.Match("Building Maintenance"), "no match inside a word")
	assert.False(t, m.Match("Aid and Development"))
	assert.False(t, NewMatcher().Match("anything"))
}

func TestExcludedIncluded(t *testing.T) {
	tbl := Default()

	assert.True(t, tbl.Excluded("Postgraduate Courses Overview - MSc options"))
	assert.True(t, tbl.Included("Postgraduate Courses Overview - MSc options"))
	assert.True(t, tbl.Excluded("Why choose Bristol?"))
	assert.False(t, tbl.Excluded("Computing Science"))
	assert.True(t, tbl.Included("Computing Science"))
	assert.False(t, tbl.Included("History of Art"))
}

func TestSubject_FirstMatchWins(t *testing.T) {
	tbl := Default()

	s, ok := tbl.Subject("MSc Computer Science with Data Science")
	require.True(t, ok)
	assert.Equal(t, "computer science", s.Keyword)

	_, ok = tbl.Subject("MSc Robotics")
	assert.False(t, ok)
}

func TestImage(t *testing.T) {
	tbl := Default()

	assert.Contains(t, tbl.Image("MSc Robotics"), "text=Robotics")
	assert.Equal(t, tbl.Defaults.Image, tbl.Image("MSc Quantum Optics"))
}

func TestLocationAndDuration(t *testing.T) {
	tbl := Default()

	loc, ok := tbl.Location("University of Edinburgh")
	require.True(t, ok)
	assert.Equal(t, "Edinburgh, Scotland", loc)
	_, ok = tbl.Location("University of Nowhere")
	assert.False(t, ok)

	d, ok := tbl.Duration(" 1 Year ")
	require.True(t, ok)
	assert.Equal(t, "12 months", d)
	_, ok = tbl.Duration("flexible")
	assert.False(t, ok)
}

func TestTitleHelpers(t *testing.T) {
	tbl := Default()

	assert.True(t, tbl.HasLevelMarker("Master of Science in Informatics"))
	assert.True(t, tbl.HasLevelMarker("MSc Robotics"))
	assert.False(t, tbl.HasLevelMarker("Computing Science"))

	assert.Equal(t, "MSc Artificial Intelligence", tbl.ExpandAbbreviations("MSc AI"))
	assert.Equal(t, "MSc Advanced Computer Science", tbl.ExpandAbbreviations("MSc Advanced Comp Sci"))
	assert.Equal(t, "MSc Machine Learning for Computer Science", tbl.ExpandAbbreviations("MSc ML for CS"))
	assert.Equal(t, "MSc Maintenance", tbl.ExpandAbbreviations("MSc Maintenance"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	data := `
version: 9
validator:
  min_title_length: 2
  exclude: [menu]
  include: [mba]
title:
  level_prefix: MBA
policy:
  deadline_month: 6
  deadline_day: 30
  description_max_length: 100
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	tbl, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9, tbl.Version)
	assert.True(t, tbl.Included("Global MBA"))
	assert.False(t, tbl.Included("MSc Physics"))
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "version: [",
		"no version":     "validator: {include: [msc]}",
		"empty include":  "version: 1\ntitle: {level_prefix: MSc}",
		"bad month":      "version: 1\nvalidator: {include: [msc]}\ntitle: {level_prefix: MSc}\npolicy: {deadline_month: 13, deadline_day: 1, description_max_length: 10}",
		"missing prefix": "version: 1\nvalidator: {include: [msc]}",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
