// Package prompt loads and renders the prompt templates used by the
// specialist agents and the synthesizer, and describes the supported
// competition rule sets.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed templates/*.yaml
var embedded embed.FS

// Embedded returns the built-in template pack.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err) // the directory is compiled in
	}
	return sub
}

// Cache holds parsed templates read from an fs.FS. Lookups take a read lock;
// Load, Reload and Invalidate take the write lock. A missing entry is read
// from the file system on first use.
type Cache struct {
	fsys   fs.FS
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*Template
}

// CacheOption configures NewCache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l.With("component", "prompt") }
}

// NewCache creates an empty cache over fsys. A nil fsys uses the embedded pack.
func NewCache(fsys fs.FS, opts ...CacheOption) *Cache {
	if fsys == nil {
		fsys = Embedded()
	}
	c := &Cache{
		fsys:      fsys,
		logger:    slog.Default().With("component", "prompt"),
		templates: make(map[string]*Template),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load parses every *.yaml and *.yml file at the root of the file system.
// The cache is replaced only when every file parses, so a bad edit never
// leaves a half-loaded pack.
func (c *Cache) Load() error {
	entries, err := fs.ReadDir(c.fsys, ".")
	if err != nil {
		return fmt.Errorf("listing templates: %w", err)
	}

	loaded := make(map[string]*Template, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isTemplateFile(e.Name()) {
			continue
		}
		t, err := c.readFile(e.Name())
		if err != nil {
			return err
		}
		if _, dup := loaded[t.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidTemplate, t.ID)
		}
		loaded[t.ID] = t
	}

	c.mu.Lock()
	c.templates = loaded
	c.mu.Unlock()

	c.logger.Debug("prompt templates loaded", "count", len(loaded))
	return nil
}

// Reload re-reads the whole pack.
func (c *Cache) Reload() error { return c.Load() }

// Invalidate drops one template so the next lookup re-reads it. An empty id
// drops every template.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == "" {
		c.templates = make(map[string]*Template)
		return
	}
	delete(c.templates, id)
}

// Get returns the template with id, reading it from disk on a miss.
func (c *Cache) Get(id string) (*Template, error) {
	c.mu.RLock()
	t, ok := c.templates[id]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok = c.templates[id]; ok {
		return t, nil
	}
	for _, ext := range []string{".yaml", ".yml"} {
		t, err := c.readFile(id + ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.templates[id] = t
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
}

// Render fills template id with data.
func (c *Cache) Render(id string, data any) (Rendered, error) {
	t, err := c.Get(id)
	if err != nil {
		return Rendered{}, err
	}
	return t.Execute(data)
}

// List returns the ids of the loaded templates in sorted order, loading the
// pack first when the cache is empty.
func (c *Cache) List() ([]string, error) {
	c.mu.RLock()
	empty := len(c.templates) == 0
	c.mu.RUnlock()
	if empty {
		if err := c.Load(); err != nil {
			return nil, err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Cache) readFile(name string) (*Template, error) {
	data, err := fs.ReadFile(c.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", name, err)
	}
	return ParseTemplate(data, strings.TrimSuffix(name, path.Ext(name)))
}

func isTemplateFile(name string) bool {
	ext := path.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
