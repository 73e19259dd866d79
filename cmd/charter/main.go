package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"charterline/internal/app"
	"charterline/internal/config"
	"charterline/internal/db"
	"charterline/internal/domain"
	"charterline/internal/engine"
	"charterline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "charter",
	Short: "charterline CLI",
	Long: `charterline keeps a small company's governance records: contributor onboarding,
evaluations, the app portfolio and agent actions, all behind one audit log.
Core concepts:
- Workspace: a directory holding charterline.yml (optional) and .charterline/charterline.db.
- Contributors move intake -> documents -> signing -> provisioning -> ready -> working.
  Agreements go out only after a founder confirms ready:sign on the latest evaluation,
  and access tiers are granted only when both NDA and IP assignment are signed.
- Evaluations score a questionnaire against the rubric and suggest tags; a founder
  confirms tags and takes the final decision, after which the evaluation is frozen.
- Apps are reviewed by agents, approved, paused or killed by a founder; one app is active.
- Agent actions pass the guardrail denylist and registry before they are recorded.
- Every accepted change writes exactly one hash-chained audit entry ('charter log tail').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// initConfig loads the workspace .env (existing environment wins) and binds
// CHARTERLINE_* variables.
func initConfig() {
	workspace, _ := rootCmd.PersistentFlags().GetString("workspace")
	if err := godotenv.Load(envPath(workspace)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: read .env:", err)
	}
	viper.SetEnvPrefix("CHARTERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "actor id recorded in the audit log")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json); overrides config")
	for _, name := range []string{"workspace", "json", "actor", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(contributorCmd())
	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "charterline.yml lists the founders, agreement versions, logging defaults, normalization data and audit webhooks. Without the file the built-in defaults apply.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configSetActorCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default charterline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate charterline.yml or another config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if file != "" {
				_, err = config.FromFile(file)
			} else {
				_, err = config.Load(viper.GetString("workspace"))
			}
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "config file to check instead of the workspace one")
	return cmd
}

func configSetActorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-actor <id>",
		Short: "Store the default actor in the workspace .env",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := envPath(viper.GetString("workspace"))
			if err := setEnvValue(path, "CHARTERLINE_ACTOR", args[0]); err != nil {
				return err
			}
			fmt.Printf("default actor set to %s in %s\n", args[0], path)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending data normalization passes",
		Long:  "Passes run once per workspace and are also applied whenever the workspace is opened; this reports what ran.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				later, err := ws.Engine.RunMigrations(ctx)
				if err != nil {
					return err
				}
				applied := append(append([]string{}, ws.Applied...), later...)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"applied": applied})
				}
				if len(applied) == 0 {
					fmt.Println("no pending passes")
					return nil
				}
				for _, name := range applied {
					fmt.Println("applied", name)
				}
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Read the audit log"}
	l.AddCommand(logTailCmd())
	l.AddCommand(logEntityCmd())
	l.AddCommand(logVerifyCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Latest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.AuditRecent(ctx, n)
				if err != nil {
					return err
				}
				return printAudit(entries)
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of entries")
	return cmd
}

func logEntityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entity <type> <id>",
		Short: "Audit trail of one entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.AuditByEntity(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printAudit(entries)
			})
		},
	}
}

func logVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.VerifyAudit(ctx)
				if viper.GetBool("json") {
					out := map[string]any{"valid": err == nil, "entries": n}
					if err != nil {
						out["error"] = err.Error()
					}
					return printJSON(out)
				}
				if err != nil {
					return fmt.Errorf("audit chain broken after %d entries: %w", n, err)
				}
				fmt.Printf("audit chain OK (%d entries)\n", n)
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Logger: ws.Logger})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, ws.Engine, ws.Logger)
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				ws.Logger.Info("serving charterline API", "addr", addr, "base_path", basePath,
					"openapi", basePath+"/openapi.json", "docs", "/docs", "webhooks", len(ws.Config.Webhooks))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		LogLevel:  viper.GetString("log-level"),
		LogFormat: viper.GetString("log-format"),
	})
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		return fn(ctx, ws.Engine)
	})
}

func actor() string {
	return strings.TrimSpace(viper.GetString("actor"))
}

func envPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

// setEnvValue sets key in the dotenv file at path, keeping other entries.
func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		env = map[string]string{}
	}
	env[key] = value
	return godotenv.Write(env, path)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable renders rows with go-pretty unless --json is set, in which case
// raw is printed instead.
func printTable(raw any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(raw)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func printAudit(entries []domain.AuditLogEntry) error {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		details := ""
		if len(e.Details) > 0 {
			b, _ := json.Marshal(e.Details)
			details = truncate(string(b), 60)
		}
		rows = append(rows, table.Row{e.Seq, e.Timestamp, e.Action, e.EntityType, e.EntityID, e.Actor, details})
	}
	return printTable(entries, table.Row{"Seq", "Time", "Action", "Entity", "ID", "Actor", "Details"}, rows)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func optionalBool(cmd *cobra.Command, flag string, value bool) *bool {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
