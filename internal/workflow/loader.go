package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/graph"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// LoadDefinition reads and validates one workflow definition from a
// YAML file. A definition without an explicit id takes the file's base
// name.
func LoadDefinition(path string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}

	var def models.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}
	if def.ID == "" {
		def.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := ValidateDefinition(&def); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	return &def, nil
}

// LoadDefinitions reads every .yaml/.yml definition in a directory,
// sorted by file name. A directory with no definitions is not an error.
func LoadDefinitions(dir string) ([]models.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflow dir %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	var defs []models.WorkflowDefinition
	for _, path := range paths {
		def, err := LoadDefinition(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

// ValidateDefinition checks the structural rules every definition must
// satisfy: at least one step, a task per step, unique step ids, known
// dependencies, no cycles.
func ValidateDefinition(def *models.WorkflowDefinition) error {
	if len(def.Steps) == 0 {
		return fmt.Errorf("no steps")
	}
	for i := range def.Steps {
		if def.Steps[i].ID == "" {
			return fmt.Errorf("step %d has no id", i)
		}
		if def.Steps[i].Task == "" {
			return fmt.Errorf("step %s has no task", def.Steps[i].ID)
		}
	}
	return graph.New().Build(def.Steps)
}
