package template

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed packs/*.yml
var packsFS embed.FS

// Store is the read-only template lookup. A lookup miss means the service
// needs no technical specification and is never an error.
type Store struct {
	templates map[string]*Template
	ids       []string
	log       zerolog.Logger
}

// NewStore loads the embedded template pack. Authoring defects are logged and
// the affected templates kept; the engine fails closed around them.
func NewStore(log zerolog.Logger) (*Store, error) {
	s := &Store{templates: map[string]*Template{}, log: log}
	entries, err := fs.ReadDir(packsFS, "packs")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := packsFS.ReadFile("packs/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := s.add(data, e.Name()); err != nil {
			return nil, fmt.Errorf("embedded template %s: %w", e.Name(), err)
		}
	}
	sort.Strings(s.ids)
	return s, nil
}

// LoadDir overlays workspace templates on top of the embedded pack. Missing
// directory is fine.
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := s.add(data, name); err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}
	}
	sort.Strings(s.ids)
	return nil
}

func (s *Store) add(data []byte, source string) error {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	if t.ServiceID == "" {
		return fmt.Errorf("service_id is required")
	}
	t.normalize()
	for _, issue := range Lint(&t) {
		s.log.Warn().
			Str("source", source).
			Str("service_id", issue.ServiceID).
			Str("section_id", issue.SectionID).
			Str("field_id", issue.FieldID).
			Msg(issue.Message)
	}
	if _, exists := s.templates[t.ServiceID]; !exists {
		s.ids = append(s.ids, t.ServiceID)
	}
	s.templates[t.ServiceID] = &t
	return nil
}

// Get returns the template for a service id, or nil when the service requires
// no technical specification.
func (s *Store) Get(serviceID string) *Template {
	return s.templates[serviceID]
}

// ServiceIDs returns the ids of all known templates, sorted.
func (s *Store) ServiceIDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// LintAll lints every stored template and returns the aggregated issues.
func (s *Store) LintAll() []Issue {
	var issues []Issue
	for _, id := range s.ids {
		issues = append(issues, Lint(s.templates[id])...)
	}
	return issues
}
