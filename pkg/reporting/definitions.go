// Package reporting runs simple group-by reports over CRM records. Report
// definitions live in YAML files and can be hot-reloaded; running a report
// is subject to the caller's field-level permissions.
package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Filter restricts a report to records whose field equals a value
type Filter struct {
	Field  string `yaml:"field" json:"field"`
	Equals string `yaml:"equals" json:"equals"`
}

// Definition describes one report
type Definition struct {
	Name    string   `yaml:"name" json:"name"`
	Label   string   `yaml:"label,omitempty" json:"label,omitempty"`
	Object  string   `yaml:"object" json:"object"`
	GroupBy string   `yaml:"group_by" json:"group_by"`
	Filters []Filter `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// Validate checks a definition for required fields
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("report name is required")
	}
	if d.Object == "" {
		return fmt.Errorf("report %s: object is required", d.Name)
	}
	if d.GroupBy == "" {
		return fmt.Errorf("report %s: group_by is required", d.Name)
	}
	return nil
}

// Registry holds the loaded report definitions
type Registry struct {
	mu     sync.RWMutex
	dir    string
	defs   map[string]Definition
	logger *logrus.Logger
}

// NewRegistry creates a registry backed by a directory of YAML files
func NewRegistry(dir string, logger *logrus.Logger) *Registry {
	return &Registry{
		dir:    dir,
		defs:   make(map[string]Definition),
		logger: logger,
	}
}

// Load reads every .yaml/.yml file in the directory and replaces the
// registry contents. Files that fail to parse are skipped with a log line;
// one bad file does not take down the rest.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("failed to read report definitions dir: %w", err)
	}

	defs := make(map[string]Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.WithError(err).WithField("file", path).Warn("failed to read report definition")
			continue
		}

		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			r.logger.WithError(err).WithField("file", path).Warn("failed to parse report definition")
			continue
		}
		if err := def.Validate(); err != nil {
			r.logger.WithError(err).WithField("file", path).Warn("invalid report definition")
			continue
		}
		defs[def.Name] = def
	}

	r.mu.Lock()
	r.defs = defs
	r.mu.Unlock()

	r.logger.WithField("count", len(defs)).Info("report definitions loaded")
	return nil
}

// Get retrieves a definition by name
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// List returns all definitions sorted by name
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Watch reloads the registry whenever a definition file changes. Blocks
// until the context is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create definitions watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch report definitions dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Load(); err != nil {
				r.logger.WithError(err).Warn("report definitions reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.WithError(err).Warn("report definitions watcher error")
		}
	}
}
