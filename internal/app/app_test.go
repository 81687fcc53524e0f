package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pagebuilder/internal/config"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/publish"
	"pagebuilder/internal/secret"
	"pagebuilder/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Templates.Watch = false
	cfg.Snapshots.Schedule = ""
	return cfg
}

const heroTemplate = `{
  "name": "Hero",
  "components": [
    {"id": "s1", "type": "Section", "children": [
      {"id": "t1", "type": "Text", "text": "Welcome"},
      {"id": "b1", "type": "Button", "label": "Shop"}
    ]}
  ]
}`

func TestAppLifecycle(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.TemplateDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.TemplateDir(), "hero.json"), []byte(heroTemplate), 0o644); err != nil {
		t.Fatal(err)
	}

	emitter := &service.MockEmitter{}
	a, err := New(cfg, emitter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := a.Templates().Get("hero"); !ok {
		t.Fatal("expected hero template to load")
	}

	page, err := a.Sessions().CreatePage("Home", "home", nil)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := a.Sessions().Open(page.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := sess.State().GridCols; got != cfg.Editor.GridCols {
		t.Errorf("fresh page should use configured grid cols, got %d", got)
	}
	if err := a.Templates().Apply(sess, "hero", nil, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := sess.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	a.Close(context.Background())

	b, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(context.Background())
	stored, err := b.Pages().GetPage(page.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Components) != 1 || len(stored.Components[0].Children) != 2 {
		t.Errorf("saved tree not persisted: %+v", stored.Components)
	}
}

func TestNew_BadOverlay(t *testing.T) {
	cfg := testConfig(t)
	cfg.Registry.Overlay = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected missing overlay to fail")
	}
}

// run executes the CLI against a config file under dir.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	return runWith(t, secret.NewMemoryStore(), nil, cfgPath, args...)
}

func runWith(t *testing.T, store secret.Store, stdin *strings.Reader, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(store)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	return path, filepath.Dir(path)
}

func TestCLI_PagesCreateDecorate(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	tpl := filepath.Join(dir, "hero.json")
	if err := os.WriteFile(tpl, []byte(heroTemplate), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, cfgPath, "pages", "create", "--title", "Home", "--slug", "home", "--from", tpl)
	if err != nil {
		t.Fatalf("create: %v\n%s", err, out)
	}
	var page domain.Page
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("decode page: %v\n%s", err, out)
	}

	out, err = run(t, cfgPath, "pages", "list")
	if err != nil || !strings.Contains(out, page.ID) {
		t.Errorf("list should show the page: %v\n%s", err, out)
	}

	out, err = run(t, cfgPath, "decorate", page.ID, "--device", domain.DeviceMobile)
	if err != nil {
		t.Fatalf("decorate: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"Welcome"`) {
		t.Errorf("decorated tree should include the text node:\n%s", out)
	}

	if out, err = run(t, cfgPath, "pages", "delete", page.ID); err != nil {
		t.Fatalf("delete: %v\n%s", err, out)
	}
	if out, _ = run(t, cfgPath, "pages", "list"); strings.Contains(out, page.ID) {
		t.Error("deleted page still listed")
	}
}

func TestCLI_Validate(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	good := filepath.Join(dir, "good.json")
	os.WriteFile(good, []byte(heroTemplate), 0o644)
	out, err := run(t, cfgPath, "validate", good)
	if err != nil || !strings.Contains(out, "ok") {
		t.Errorf("expected ok: %v\n%s", err, out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("name: Bad\ncomponents:\n  - id: s\n    type: Section\n    children:\n      - id: i\n        type: Image\n"), 0o644)
	out, err = run(t, cfgPath, "validate", bad)
	if err == nil {
		t.Error("an image without cropAspect should fail validation")
	}
	if !strings.Contains(out, "cropAspect") {
		t.Errorf("issues should be printed:\n%s", out)
	}
}

func TestCLI_ConfigInit(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "nested", "config.toml")
	if _, err := run(t, path, "config", "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := run(t, path, "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := run(t, path, "config", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
	out, err := run(t, path, "config", "show")
	if err != nil || !strings.Contains(out, "[editor]") {
		t.Errorf("show should print TOML: %v\n%s", err, out)
	}
}

func TestCLI_Approvals(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.db.Conn().Exec(
		`INSERT INTO mcp_approvals (id, tool, description) VALUES ('ap1', 'remove_component', 'Remove Section s1')`,
	); err != nil {
		t.Fatal(err)
	}
	a.Close(context.Background())

	out, err := run(t, cfgPath, "approvals", "list")
	if err != nil || !strings.Contains(out, "ap1") {
		t.Fatalf("expected pending approval: %v\n%s", err, out)
	}
	if _, err := run(t, cfgPath, "approvals", "reject", "ap1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := run(t, cfgPath, "approvals", "approve", "ap1"); err == nil {
		t.Error("resolving twice should fail")
	}
}

func TestPageWatcher(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())

	page, err := a.Sessions().CreatePage("Home", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	emitter := &service.MockEmitter{}
	w := newPageWatcher(a.Pages(), a.Approvals(), emitter)
	w.SetPage(page.ID)
	ctx := context.Background()
	w.check(ctx)
	if len(emitter.Events) != 0 {
		t.Fatalf("first poll only records fingerprints, got %+v", emitter.Events)
	}

	stored, _ := a.Pages().GetPage(page.ID)
	stored.Revision = "external"
	stored.Components = []*domain.PageComponent{{ID: "s", Type: domain.TypeSection, Children: []*domain.PageComponent{}}}
	if err := a.Pages().UpdatePage(stored); err != nil {
		t.Fatal(err)
	}
	a.db.Conn().Exec(`INSERT INTO mcp_approvals (id, tool, description) VALUES ('ap1', 'remove_component', 'x')`)

	w.check(ctx)
	if len(emitter.Named(EventPageExternal)) != 1 {
		t.Errorf("expected one external change, got %+v", emitter.Events)
	}
	if len(emitter.Named(EventApprovalPending)) != 1 {
		t.Errorf("expected one approval event, got %+v", emitter.Events)
	}

	w.check(ctx)
	if len(emitter.Named(EventApprovalPending)) != 1 {
		t.Error("an approval is reported once")
	}
}

func TestResolveTarget(t *testing.T) {
	store := secret.NewMemoryStore()
	store.Set("prod-db", []byte("hunter2"))

	got, err := resolveTarget(publish.Target{Driver: domain.PublishDriverPostgres, SecretKey: "prod-db"}, store)
	if err != nil || got.Password != "hunter2" {
		t.Errorf("expected password from store, got %q, %v", got.Password, err)
	}

	got, err = resolveTarget(publish.Target{Password: "inline", SecretKey: "prod-db"}, store)
	if err != nil || got.Password != "inline" {
		t.Errorf("an inline password wins, got %q, %v", got.Password, err)
	}

	if _, err := resolveTarget(publish.Target{SecretKey: "missing"}, store); !errors.Is(err, secret.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCLI_Secret(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	store := secret.NewMemoryStore()
	if _, err := runWith(t, store, strings.NewReader("s3cret\n"), cfgPath, "secret", "set", "prod-db"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := store.Get("prod-db"); err != nil || string(v) != "s3cret" {
		t.Errorf("stored %q, %v", v, err)
	}
	if _, err := runWith(t, store, strings.NewReader(""), cfgPath, "secret", "set", "empty"); err == nil {
		t.Error("an empty secret should be refused")
	}
	if _, err := runWith(t, store, nil, cfgPath, "secret", "delete", "prod-db"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get("prod-db"); !errors.Is(err, secret.ErrNotFound) {
		t.Errorf("expected deleted, got %v", err)
	}
}
