package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// topLevelFields are the fields a CUE scenario may declare. The YAML
// decoder enforces the same set through KnownFields.
var topLevelFields = []string{"name", "description", "merge", "nodes", "links", "steps", "expect"}

// Parse reads a scenario file without validating it. Files ending in .cue
// are evaluated as CUE; everything else is parsed as YAML. Unknown
// top-level fields are rejected in both formats.
func Parse(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	if filepath.Ext(path) == ".cue" {
		return parseCUE(path, data)
	}
	return parseYAML(data)
}

func parseYAML(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &s, nil
}

func parseCUE(path string, data []byte) (*Scenario, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("failed to evaluate CUE: %w", err)
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, fmt.Errorf("failed to read CUE fields: %w", err)
	}
	for iter.Next() {
		if !slices.Contains(topLevelFields, iter.Label()) {
			return nil, fmt.Errorf("failed to decode CUE: unknown field %q", iter.Label())
		}
	}

	var s Scenario
	if err := v.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode CUE: %w", err)
	}
	return &s, nil
}

// Load parses and validates a scenario file.
func Load(path string) (*Scenario, error) {
	s, err := Parse(path)
	if err != nil {
		return nil, err
	}

	if verrs := Validate(s); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("invalid scenario: %w", errors.Join(errs...))
	}
	return s, nil
}

// IsScenarioFile reports whether path has a scenario extension.
func IsScenarioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".cue":
		return true
	default:
		return false
	}
}

// Discover returns every scenario file under dir, sorted by path.
func Discover(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsScenarioFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	slices.Sort(paths)
	return paths, nil
}
