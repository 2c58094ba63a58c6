package coursefed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// artifactTimeFormat is safe for use in file names.
const artifactTimeFormat = "2006-01-02T15-04-05.000Z"

// Artifact is the JSON document saved after every run.
type Artifact struct {
	RunTimestamp time.Time      `json:"runTimestamp"`
	Summary      Summary        `json:"summary"`
	PerSource    []SourceResult `json:"perSource"`
	Errors       []RunError     `json:"errors"`
}

// NewArtifact captures r.
func NewArtifact(r Report) Artifact {
	a := Artifact{
		RunTimestamp: r.StartedAt().UTC(),
		Summary:      r.Summary(),
		PerSource:    r.Sources(),
		Errors:       r.Errors(),
	}
	if a.PerSource == nil {
		a.PerSource = []SourceResult{}
	}
	if a.Errors == nil {
		a.Errors = []RunError{}
	}
	return a
}

// WriteArtifact saves r under dir as scraping-results-<timestamp>.json and
// returns the path written.
func WriteArtifact(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	a := NewArtifact(r)
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run artifact: %w", err)
	}

	name := "scraping-results-" + a.RunTimestamp.Format(artifactTimeFormat) + ".json"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run artifact: %w", err)
	}

	return path, nil
}

// ReadArtifact loads a saved artifact.
func ReadArtifact(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read run artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("failed to parse run artifact: %w", err)
	}
	return a, nil
}
