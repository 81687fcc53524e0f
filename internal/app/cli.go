package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"pagebuilder/internal/config"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/rules"
	"pagebuilder/internal/secret"
	"pagebuilder/internal/service"
	"pagebuilder/internal/viewport"
)

const shutdownTimeout = 10 * time.Second

// Execute runs the pagebuilder command line.
func Execute() error {
	return NewRootCmd().Execute()
}

type cli struct {
	configPath string
	secrets    secret.Store
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(secret.NewKeychainStore())
}

func newRootCmd(secrets secret.Store) *cobra.Command {
	c := &cli{secrets: secrets}
	root := &cobra.Command{
		Use:   "pagebuilder",
		Short: "Page-builder document engine",
		Long: `pagebuilder edits page component trees: nesting rules, per-device
decoration, undo/redo history, local snapshots and publishing.

It runs as an MCP server for agents (serve) and offers maintenance
commands for pages, templates and approvals.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "",
		"config file (default: search $XDG_CONFIG_HOME/pagebuilder, ~/.config/pagebuilder, .)")

	root.AddCommand(
		c.serveCmd(),
		c.pagesCmd(),
		c.decorateCmd(),
		c.validateCmd(),
		c.snapshotsCmd(),
		c.approvalsCmd(),
		c.watchCmd(),
		c.configCmd(),
		c.secretCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cli) openApp(emitter service.EventEmitter) (*App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg, emitter, WithSecrets(c.secrets))
}

func closeApp(a *App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Close(ctx)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jsonLinesEmitter prints every event as one JSON line.
type jsonLinesEmitter struct {
	w io.Writer
}

func (e jsonLinesEmitter) Emit(_ context.Context, event string, data any) {
	line, err := json.Marshal(map[string]any{"event": event, "data": data, "at": time.Now().UTC()})
	if err != nil {
		return
	}
	fmt.Fprintln(e.w, string(line))
}

// ── serve ──────────────────────────────────────────────────

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.openApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(a)
			if err := a.Start(ctx); err != nil {
				return err
			}
			return a.ServeMCP(ctx)
		},
	}
}

// ── pages ──────────────────────────────────────────────────

func (c *cli) pagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Manage pages",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(a)
			pages, err := a.Pages().ListPages()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range pages {
				fmt.Fprintf(out, "%-36s  %-24s  %s\n", p.ID, p.Slug, p.Title)
			}
			return nil
		},
	}

	var title, slug, from string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a page, optionally seeded from a template file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return errors.New("--title is required")
			}
			a, err := c.openApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(a)

			var comps []*domain.PageComponent
			if from != "" {
				t, res, err := readTemplate(from, a.placement)
				if err != nil {
					return err
				}
				if !res.OK {
					printIssues(cmd.ErrOrStderr(), res)
					return fmt.Errorf("%s: %d issue(s)", from, len(res.Issues))
				}
				comps = t.Components
			}
			page, err := a.Sessions().CreatePage(title, slug, comps)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	create.Flags().StringVar(&title, "title", "", "page title")
	create.Flags().StringVar(&slug, "slug", "", "unique URL slug")
	create.Flags().StringVar(&from, "from", "", "template file (.json or .yaml) with the initial components")

	del := &cobra.Command{
		Use:   "delete <pageID>",
		Short: "Delete a page and its snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(a)
			if err := a.Sessions().DeletePage(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

// ── decorate ───────────────────────────────────────────────

func (c *cli) decorateCmd() *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "decorate <pageID>",
		Short: "Print a page's tree as shown on one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(a)
			sess, err := a.Sessions().Open(args[0])
			if err != nil {
				return err
			}
			st := sess.State()
			return printJSON(cmd.OutOrStdout(), viewport.Decorate(st.Present, st.Editor, device))
		},
	}
	cmd.Flags().StringVar(&device, "device", domain.DeviceDesktop, "device id: desktop, tablet, mobile or a custom breakpoint")
	return cmd
}

// ── validate ───────────────────────────────────────────────

func readTemplate(path string, placement rules.Placement) (service.Template, rules.ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.Template{}, rules.ValidationResult{}, err
	}
	t, err := service.ParseTemplate(path, data)
	if err != nil {
		return service.Template{}, rules.ValidationResult{}, err
	}
	return t, rules.ValidateTemplate(t.Components, placement), nil
}

func printIssues(w io.Writer, res rules.ValidationResult) {
	for _, is := range res.Issues {
		fmt.Fprintf(w, "%s: %s\n", is.Path, is.Message)
	}
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a template file against the nesting and template rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			_, table, err := loadRules(cfg)
			if err != nil {
				return err
			}
			_, res, err := readTemplate(args[0], table)
			if err != nil {
				return err
			}
			if !res.OK {
				printIssues(cmd.OutOrStdout(), res)
				return fmt.Errorf("%s: %d issue(s)", args[0], len(res.Issues))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}

// ── snapshots ──────────────────────────────────────────────

func (c *cli) snapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect and prune page checkpoints",
	}
	list := &cobra.Command{
		Use:   "list <pageID>",
		Short: "List a page's checkpoints, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(a)
			snaps, err := a.Snapshots().ListSnapshots(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range snaps {
				fmt.Fprintf(out, "%-36s  %-16s  %s  %s\n", s.ID, s.Revision, s.CreatedAt.Format(time.RFC3339), s.Label)
			}
			return nil
		},
	}
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Prune every page down to the configured number of checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(a)
			n, err := a.Maintenance().RunOnce()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d snapshot(s)\n", n)
			return nil
		},
	}
	cmd.AddCommand(list, prune)
	return cmd
}

// ── approvals ──────────────────────────────────────────────

func (c *cli) approvalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Resolve destructive actions requested by the MCP server",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List pending approvals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(a)
			pending, err := a.Approvals().ListPending()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range pending {
				fmt.Fprintf(out, "%-36s  %-20s  %s\n", p.ID, p.Tool, p.Description)
			}
			return nil
		},
	}
	resolve := func(use, short, done string, approved bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := c.openApp(nil)
				if err != nil {
					return err
				}
				defer closeApp(a)
				if err := a.Approvals().Resolve(args[0], approved); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, args[0])
				return nil
			},
		}
	}
	cmd.AddCommand(list,
		resolve("approve", "Approve a pending action", "approved", true),
		resolve("reject", "Reject a pending action", "rejected", false),
	)
	return cmd
}

// ── watch ──────────────────────────────────────────────────

func (c *cli) watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch [pageID]",
		Short: "Print page edits and approval requests made by other processes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := c.openApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(a)

			w := newPageWatcher(a.Pages(), a.Approvals(), jsonLinesEmitter{w: cmd.OutOrStdout()})
			if interval > 0 {
				w.interval = interval
			}
			if len(args) == 1 {
				w.SetPage(args[0])
			}
			w.Run(ctx)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	return cmd
}

// ── config ─────────────────────────────────────────────────

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pagebuilder configuration",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}
	cmd.AddCommand(initCmd, show)
	return cmd
}

// ── secret ─────────────────────────────────────────────────

func (c *cli) secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage credentials referenced by publish.secret_key",
	}

	set := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			value := strings.TrimRight(string(data), "\r\n")
			if value == "" {
				return errors.New("empty secret on stdin")
			}
			if err := c.secrets.Set(args[0], []byte(value)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.secrets.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}
