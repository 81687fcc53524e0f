package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/service"
	"pagebuilder/internal/tree"
)

const heroJSON = `{
  "name": "Hero",
  "description": "Section with a headline",
  "components": [
    {"id": "h", "type": "Section", "children": [{"id": "h-text", "type": "Text", "text": "Welcome"}]}
  ]
}`

const splitYAML = `name: Split
components:
  - id: s
    type: Section
    children:
      - id: s-a
        type: Text
      - id: s-b
        type: Button
`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParseTemplate_YAML(t *testing.T) {
	tpl, err := service.ParseTemplate("lib/split.yaml", []byte(splitYAML))
	if err != nil {
		t.Fatal(err)
	}
	if tpl.ID != "split" || tpl.Name != "Split" || len(tpl.Components[0].Children) != 2 {
		t.Errorf("unexpected template %+v", tpl)
	}
	if tpl.Components[0].Children[1].Type != domain.TypeButton {
		t.Errorf("expected Button, got %s", tpl.Components[0].Children[1].Type)
	}
	if _, err := service.ParseTemplate("empty.json", []byte(`{"name":"x"}`)); err == nil {
		t.Error("expected a template without components to fail")
	}
}

func TestTemplateLibrary_LoadAndApply(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hero.json", heroJSON)
	writeFile(t, dir, "split.yml", splitYAML)
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "broken.json", "{")
	writeFile(t, dir, "wide.json", `{"components":[{"id":"w","type":"Section","width":"100vw","children":[]}]}`)

	emitter := &service.MockEmitter{}
	lib := service.NewTemplateLibrary(dir, nil, emitter)
	if err := lib.Load(); err != nil {
		t.Fatal(err)
	}
	list := lib.List()
	if len(list) != 3 || list[0].ID != "hero" || list[1].ID != "split" || list[2].ID != "wide" {
		t.Fatalf("unexpected templates %+v", list)
	}
	if len(emitter.Named(service.EventLibraryReady)) != 1 {
		t.Error("expected library:reloaded")
	}

	comps, err := lib.Instantiate("hero")
	if err != nil {
		t.Fatal(err)
	}
	if comps[0].ID == "h" || comps[0].Children[0].ID == "h-text" || comps[0].Children[0].StringProp("text") != "Welcome" {
		t.Errorf("expected fresh ids with content kept, got %+v", comps[0])
	}

	var tplErr *service.TemplateError
	if _, err := lib.Instantiate("wide"); !errors.As(err, &tplErr) || len(tplErr.Issues) == 0 {
		t.Errorf("expected lint issues for 100vw, got %v", err)
	}

	s := service.NewEditorSession(&domain.Page{ID: "p", Components: []*domain.PageComponent{}}, service.SessionConfig{})
	if err := lib.Apply(s, "hero", nil, 0); err != nil {
		t.Fatal(err)
	}
	root := ""
	if err := lib.Apply(s, "split", &root, 5); err != nil {
		t.Fatal(err)
	}
	present := s.Present()
	if len(present) != 2 || len(s.State().Past) != 2 {
		t.Fatalf("expected two undoable template steps, got %d roots", len(present))
	}
	if tree.Find(present, "s-a") != nil {
		t.Error("template ids must not leak into the page")
	}
}

func TestTemplateLibrary_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hero.json", heroJSON)
	lib := service.NewTemplateLibrary(dir, nil, nil)
	if err := lib.Load(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := lib.Watch(ctx); err != nil {
		t.Fatal(err)
	}
	defer lib.Stop()

	writeFile(t, dir, "split.yaml", splitYAML)
	deadline := time.Now().Add(3 * time.Second)
	for len(lib.List()) != 2 {
		if time.Now().After(deadline) {
			t.Fatal("library did not reload after a new template appeared")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
