package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/tree"
)

// Template is a reusable block arrangement loaded from the library
// directory. ID is the file name without its extension.
type Template struct {
	ID          string                  `json:"id" yaml:"id"`
	Name        string                  `json:"name" yaml:"name"`
	Description string                  `json:"description,omitempty" yaml:"description"`
	Components  []*domain.PageComponent `json:"components" yaml:"-"`
	File        string                  `json:"file" yaml:"-"`
}

// TemplateLibrary serves templates from a directory of .json and .yaml
// files and reloads them when the directory changes.
type TemplateLibrary struct {
	dir       string
	placement rules.Placement
	emitter   EventEmitter

	mu        sync.RWMutex
	templates map[string]Template

	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
}

func NewTemplateLibrary(dir string, placement rules.Placement, emitter EventEmitter) *TemplateLibrary {
	if placement == nil {
		placement = rules.DefaultTable()
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &TemplateLibrary{dir: dir, placement: placement, emitter: emitter, templates: map[string]Template{}}
}

func isTemplateFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// ParseTemplate decodes one template file. YAML templates are converted to
// JSON first so components decode through the same path.
func ParseTemplate(name string, data []byte) (Template, error) {
	var raw map[string]any
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return Template{}, fmt.Errorf("parse %s: %w", name, err)
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return Template{}, fmt.Errorf("parse %s: %w", name, err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return Template{}, fmt.Errorf("convert %s: %w", name, err)
	}
	var t Template
	if err := json.Unmarshal(asJSON, &t); err != nil {
		return Template{}, fmt.Errorf("decode %s: %w", name, err)
	}
	t.ID = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	t.File = name
	if t.Name == "" {
		t.Name = t.ID
	}
	if len(t.Components) == 0 {
		return Template{}, fmt.Errorf("template %s has no components", t.ID)
	}
	return t, nil
}

// Load rereads the directory. Files that fail to parse are logged and
// skipped.
func (l *TemplateLibrary) Load() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	next := map[string]Template{}
	for _, e := range entries {
		if e.IsDir() || !isTemplateFile(e.Name()) {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("templates: read %s: %v", path, err)
			continue
		}
		t, err := ParseTemplate(path, data)
		if err != nil {
			log.Printf("templates: %v", err)
			continue
		}
		next[t.ID] = t
	}
	l.mu.Lock()
	l.templates = next
	l.mu.Unlock()
	l.emitter.Emit(context.Background(), EventLibraryReady, map[string]int{"count": len(next)})
	return nil
}

// List returns the templates sorted by id.
func (l *TemplateLibrary) List() []Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Template, 0, len(l.templates))
	for _, t := range l.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *TemplateLibrary) Get(id string) (Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[id]
	return t, ok
}

// Watch reloads the library on directory changes until ctx ends or Stop is
// called. Bursts of events collapse into one reload.
func (l *TemplateLibrary) Watch(ctx context.Context) error {
	l.Stop()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}
	watchCtx, cancel := context.WithCancel(ctx)
	l.watcher, l.watchCancel = watcher, cancel

	reload := debounce.New(300 * time.Millisecond)
	go func() {
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isTemplateFile(event.Name) {
					continue
				}
				reload(func() {
					log.Printf("templates: %s changed, reloading", filepath.Base(event.Name))
					if err := l.Load(); err != nil {
						log.Printf("templates: reload failed: %v", err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("templates: watcher error: %v", err)
			}
		}
	}()
	log.Printf("templates: watching %s", l.dir)
	return nil
}

// Stop ends watching.
func (l *TemplateLibrary) Stop() {
	if l.watchCancel != nil {
		l.watchCancel()
		l.watchCancel = nil
	}
	if l.watcher != nil {
		l.watcher.Close()
		l.watcher = nil
	}
}

// TemplateError carries the lint issues that blocked a template.
type TemplateError struct {
	ID     string
	Issues []rules.Issue
}

func (e *TemplateError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.Path+": "+is.Message)
	}
	return fmt.Sprintf("template %s is invalid: %s", e.ID, strings.Join(msgs, "; "))
}

// Instantiate lints template id and returns a copy of its components with
// fresh node ids.
func (l *TemplateLibrary) Instantiate(id string) ([]*domain.PageComponent, error) {
	t, ok := l.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown template %q", id)
	}
	if res := rules.ValidateTemplate(t.Components, l.placement); !res.OK {
		return nil, &TemplateError{ID: id, Issues: res.Issues}
	}
	out := make([]*domain.PageComponent, len(t.Components))
	for i, c := range t.Components {
		out[i], _ = tree.CloneWithIDs(c, tree.NewID)
	}
	return out, nil
}

// Apply puts template id on the session's page: replacing the whole tree
// when parentID is nil, otherwise inserting all of its components at index
// as one step.
func (l *TemplateLibrary) Apply(s *EditorSession, id string, parentID *string, index int) error {
	comps, err := l.Instantiate(id)
	if err != nil {
		return err
	}
	if parentID == nil {
		return s.Dispatch(history.Set{Components: comps})
	}
	return s.Dispatch(history.Add{Components: comps, ParentID: *parentID, Index: index})
}
