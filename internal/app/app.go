package app

import (
	"context"
	"fmt"
	"log"
	"os"

	"pagebuilder/internal/config"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/history"
	"pagebuilder/internal/publish"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/secret"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
)

// App owns everything a running pagebuilder process needs: storage, the
// publish target, editor sessions, the template library and maintenance.
type App struct {
	cfg     *config.Config
	emitter service.EventEmitter

	db        *storage.DB
	pages     *storage.PageStore
	snapshots *storage.SnapshotStore
	approvals *storage.ApprovalStore
	publisher publish.Publisher
	secrets   secret.Store

	registry  *rules.Registry
	placement *rules.Table

	sessions    *service.Manager
	templates   *service.TemplateLibrary
	maintenance *service.Maintenance
}

// loadRules returns the built-in registry and placement table, extended by
// the configured overlay file when there is one.
func loadRules(cfg *config.Config) (*rules.Registry, *rules.Table, error) {
	if cfg.Registry.Overlay == "" {
		return rules.DefaultRegistry(), rules.DefaultTable(), nil
	}
	reg, table, err := rules.LoadOverlay(cfg.Registry.Overlay)
	if err != nil {
		return nil, nil, fmt.Errorf("registry overlay: %w", err)
	}
	return reg, table, nil
}

// Option customizes New.
type Option func(*App)

// WithSecrets replaces the keychain as the source of publish passwords.
func WithSecrets(store secret.Store) Option {
	return func(a *App) { a.secrets = store }
}

// resolveTarget fills the publish password from the secret store when the
// target names a secret instead of carrying the password.
func resolveTarget(t publish.Target, store secret.Store) (publish.Target, error) {
	if t.Password != "" || t.SecretKey == "" {
		return t, nil
	}
	pw, err := store.Get(t.SecretKey)
	if err != nil {
		return t, fmt.Errorf("publish password: %w", err)
	}
	t.Password = string(pw)
	return t, nil
}

// New opens storage and the publish target and builds the session manager.
func New(cfg *config.Config, emitter service.EventEmitter, opts ...Option) (*App, error) {
	if emitter == nil {
		emitter = service.NopEmitter{}
	}
	a := &App{cfg: cfg, emitter: emitter, secrets: secret.NewKeychainStore()}
	for _, opt := range opts {
		opt(a)
	}
	reg, table, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}
	target, err := resolveTarget(cfg.Publish, a.secrets)
	if err != nil {
		return nil, err
	}

	db, err := storage.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pub, err := publish.NewPublisher(target)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("publish target: %w", err)
	}

	a.db = db
	a.pages = storage.NewPageStore(db)
	a.snapshots = storage.NewSnapshotStore(db)
	a.approvals = storage.NewApprovalStore(db)
	a.publisher = pub
	a.registry, a.placement = reg, table

	reducer := history.NewReducer(table,
		history.WithHistoryLimit(cfg.Editor.HistoryLimit),
		history.WithSlottedTypes(func(t domain.ComponentType) bool {
			return reg.LayoutOf(t) == rules.LayoutTabs
		}),
	)
	a.sessions = service.NewManager(service.SessionConfig{
		Placement:       table,
		Registry:        reg,
		Reducer:         reducer,
		Pages:           a.pages,
		Snapshots:       a.snapshots,
		Publisher:       pub,
		Emitter:         emitter,
		AutosaveDelay:   cfg.AutosaveDelay(),
		SnapshotKeep:    cfg.Snapshots.Keep,
		GridCols:        cfg.Editor.GridCols,
		GridSnap:        cfg.Editor.GridSnap,
		AutoscrollEdge:  cfg.Drag.AutoscrollEdge,
		AutoscrollSpeed: cfg.Drag.AutoscrollSpeed,
	})
	a.templates = service.NewTemplateLibrary(cfg.TemplateDir(), table, emitter)
	a.maintenance = service.NewMaintenance(a.pages, a.snapshots, cfg.Snapshots.Keep)
	return a, nil
}

// Start loads the template library and starts the background jobs the
// config asks for. They stop when ctx ends or on Close.
func (a *App) Start(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.TemplateDir(), 0o755); err != nil {
		return fmt.Errorf("create template dir: %w", err)
	}
	if err := a.templates.Load(); err != nil {
		return err
	}
	if a.cfg.Templates.Watch {
		if err := a.templates.Watch(ctx); err != nil {
			log.Printf("[APP] template watch disabled: %v", err)
		}
	}
	if a.cfg.Snapshots.Schedule != "" && a.cfg.Snapshots.Keep > 0 {
		if err := a.maintenance.Start(a.cfg.Snapshots.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes open sessions and releases everything New opened.
func (a *App) Close(ctx context.Context) {
	a.sessions.Close(ctx)
	a.templates.Stop()
	a.maintenance.Stop()
	if err := a.publisher.Close(); err != nil {
		log.Printf("[APP] close publisher: %v", err)
	}
	if err := a.db.Close(); err != nil {
		log.Printf("[APP] close database: %v", err)
	}
}

func (a *App) Sessions() *service.Manager          { return a.sessions }
func (a *App) Templates() *service.TemplateLibrary { return a.templates }
func (a *App) Approvals() *storage.ApprovalStore   { return a.approvals }
func (a *App) Pages() *storage.PageStore           { return a.pages }
func (a *App) Snapshots() *storage.SnapshotStore   { return a.snapshots }
func (a *App) Maintenance() *service.Maintenance   { return a.maintenance }
