package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Get when no descriptor has the given name.
var ErrNotFound = errors.New("tool not found")

// Registry holds the loaded catalogue of ToolDescriptors. The catalogue is
// held behind an atomic pointer rather than a mutex: readers (Get, List,
// Categories) never block, and a reload from Watch swaps in a whole new
// map rather than mutating the old one in place.
type Registry struct {
	tools atomic.Pointer[map[string]*Descriptor]
}

func (r *Registry) toolsMap() map[string]*Descriptor {
	p := r.tools.Load()
	if p == nil {
		return nil
	}
	return *p
}

// New returns an empty, unloaded Registry.
func New() *Registry {
	return &Registry{}
}

// Filter narrows List to a category and/or a substring of name/keywords.
type Filter struct {
	Category Category
	Query    string
}

// Load reads every *.yaml descriptor file under the given embedded
// filesystem root, then overlays descriptor files from overlayDir (if
// non-empty) so operators can add tool families without a rebuild.
// Duplicate tool names are a fatal error per §4.1 ("Duplicate names are a
// fatal startup error") — unlike the flatter skill-registry this package
// was adapted from, there is no warn-and-keep-first fallback here.
func (r *Registry) Load(embedded fs.FS, embeddedRoot string, overlayDir string) error {
	tools := make(map[string]*Descriptor)

	if err := loadDir(embedded, embeddedRoot, tools); err != nil {
		return fmt.Errorf("loading built-in tools: %w", err)
	}

	if overlayDir != "" {
		if err := loadDir(osDirFS(overlayDir), ".", tools); err != nil {
			return fmt.Errorf("loading tools overlay %q: %w", overlayDir, err)
		}
	}

	if len(tools) == 0 {
		return fmt.Errorf("no tool descriptors loaded")
	}

	r.tools.Store(&tools)
	return nil
}

func loadDir(fsys fs.FS, root string, into map[string]*Descriptor) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		var desc Descriptor
		if err := yaml.Unmarshal(data, &desc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		if err := desc.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if _, ok := into[desc.Name]; ok {
			return fmt.Errorf("duplicate tool name %q (loaded a second descriptor from %s)", desc.Name, path)
		}

		into[desc.Name] = &desc
		return nil
	})
}

// Add inserts a descriptor built outside the YAML loader (the OpenAPI
// operation-to-descriptor conversion run at startup). It applies the same
// validation and duplicate-name rules as Load and must only be called
// before the Registry is handed to the rest of Core.
func (r *Registry) Add(desc *Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	current := r.toolsMap()
	next := make(map[string]*Descriptor, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	if _, ok := next[desc.Name]; ok {
		return fmt.Errorf("duplicate tool name %q", desc.Name)
	}
	next[desc.Name] = desc
	r.tools.Store(&next)
	return nil
}

// Get returns the descriptor with the given name, or ErrNotFound.
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.toolsMap()[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return d, nil
}

// List returns descriptors matching filter, sorted by name. A zero-value
// Filter returns everything.
func (r *Registry) List(filter Filter) []*Descriptor {
	tools := r.toolsMap()
	result := make([]*Descriptor, 0, len(tools))
	query := strings.ToLower(filter.Query)
	for _, d := range tools {
		if filter.Category != "" && d.Category != filter.Category {
			continue
		}
		if query != "" && !matchesQuery(d, query) {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// All returns every loaded descriptor, sorted by name.
func (r *Registry) All() []*Descriptor {
	return r.List(Filter{})
}

// Categories returns a count of descriptors per category.
func (r *Registry) Categories() map[Category]int {
	counts := make(map[Category]int)
	for _, d := range r.toolsMap() {
		counts[d.Category]++
	}
	return counts
}

func matchesQuery(d *Descriptor, query string) bool {
	if strings.Contains(strings.ToLower(d.Name), query) {
		return true
	}
	for _, kw := range d.Keywords {
		if strings.Contains(strings.ToLower(kw), query) {
			return true
		}
	}
	return false
}

// osDirFS adapts an on-disk directory to fs.FS rooted there. os.DirFS
// already rejects paths that escape dir, which is why the overlay loader
// is safe to point at an operator-supplied directory.
func osDirFS(dir string) fs.FS {
	return os.DirFS(filepath.Clean(dir))
}
