package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hearth/internal/auth"
	"hearth/internal/config"
	"hearth/internal/db"
	"hearth/internal/domain"
	"hearth/internal/engine"
	"hearth/internal/hub"
	"hearth/internal/migrate"
	"hearth/internal/presence"
	"hearth/internal/repo"
	"hearth/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "Hearth CLI",
	Long: `Hearth keeps a household's shared task list in sync across everyone's devices.
Core concepts:
- Workspace: your .hearth directory holding the database; server settings live in hearth.yml.
- Household: the room all members share; every task and every event stays inside it.
- Tasks: chores and errands with a title, an optional assignee, and a priority.
- Action log: append-only diary of created/completed/incomplete/deleted marks; a task's
  completion state is whatever the newest entry for its title says.
- Presence: who is connected right now, shared across server instances over NATS.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HEARTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(householdCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(presenceCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("HEARTH_JWT_SECRET or auth.jwt_secret in hearth.yml is required")
			}

			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			e := engine.New(conn)
			svc := auth.Service{
				Repo:     e.Repo,
				Secret:   secret,
				TokenTTL: time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			registry := prometheus.NewRegistry()
			h := hub.New(hub.Config{
				Engine:         e,
				Auth:           svc,
				Logger:         logger,
				Registry:       registry,
				AllowedOrigins: cfg.AllowedOrigins,
			})

			if cfg.NATS.URL != "" {
				nc, err := nats.Connect(cfg.NATS.URL)
				if err != nil {
					return err
				}
				defer nc.Close()
				responder, err := presence.StartResponder(nc, h, logger)
				if err != nil {
					return err
				}
				defer responder.Close()
			}

			handler, err := server.New(server.Config{
				Engine:   e,
				Auth:     svc,
				BasePath: cfg.Server.BasePath,
				Hub:      h,
				Presence: h,
				Registry: registry,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath, "ws", "/ws")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3001", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func householdCmd() *cobra.Command {
	hh := &cobra.Command{Use: "household", Short: "Manage households"}
	hh.AddCommand(householdCreateCmd())
	hh.AddCommand(householdListCmd())
	return hh
}

func householdCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a household",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				h := domain.Household{
					ID:        uuid.NewString(),
					Name:      name,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := r.InsertHousehold(ctx, h); err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "household name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func householdListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List households",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListHouseholds(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, h := range items {
					tw.AppendRow(table.Row{h.ID, h.Name, h.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage users"}
	u.AddCommand(userCreateCmd())
	u.AddCommand(userListCmd())
	return u
}

func userCreateCmd() *cobra.Command {
	var username, password, household string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user in a household",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" || household == "" {
				return fmt.Errorf("--username, --password, and --household required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				svc := auth.Service{Repo: r}
				u, err := svc.Register(ctx, username, password, household)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&household, "household", "", "household name")
	return cmd
}

func userListCmd() *cobra.Command {
	var household string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users in a household",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				householdID, err := resolveHousehold(ctx, r, household)
				if err != nil {
					return err
				}
				items, err := r.ListUsers(ctx, householdID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Username", "Household", "Created"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.Username, u.HouseholdID, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&household, "household", "", "household name or id")
	_ = cmd.MarkFlagRequired("household")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Inspect tasks"}
	task.AddCommand(taskListCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var household string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a household's tasks with their resolved state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				householdID, err := resolveHousehold(ctx, e.Repo, household)
				if err != nil {
					return err
				}
				views, err := e.ListTaskViews(ctx, householdID)
				if err != nil {
					return err
				}
				if !all {
					kept := views[:0]
					for _, v := range views {
						if !v.Completed {
							kept = append(kept, v)
						}
					}
					views = kept
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Assignee", "Priority", "Done"})
				for _, v := range views {
					assignee := ""
					if v.AssignedTo != nil {
						assignee = *v.AssignedTo
					}
					tw.AppendRow(table.Row{v.ID, v.Title, assignee, v.Priority, v.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&household, "household", "", "household name or id")
	cmd.Flags().BoolVar(&all, "all", false, "include completed tasks")
	_ = cmd.MarkFlagRequired("household")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the action log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var household string
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail a household's actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				householdID, err := resolveHousehold(ctx, r, household)
				if err != nil {
					return err
				}
				actions, err := r.LatestActions(ctx, householdID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(actions)
			})
		},
	}
	cmd.Flags().StringVar(&household, "household", "", "household name or id")
	cmd.Flags().IntVar(&n, "n", 20, "number of actions")
	_ = cmd.MarkFlagRequired("household")
	return cmd
}

func presenceCmd() *cobra.Command {
	var household, natsURL string
	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Ask a running server who is online",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				householdID, err := resolveHousehold(ctx, r, household)
				if err != nil {
					return err
				}
				url := natsURL
				if url == "" {
					cfg, err := config.LoadOptional(viper.GetString("workspace"))
					if err != nil {
						return err
					}
					if cfg != nil {
						url = cfg.NATS.URL
					}
				}
				if url == "" {
					return fmt.Errorf("--nats-url or nats.url in hearth.yml is required")
				}
				nc, err := nats.Connect(url)
				if err != nil {
					return err
				}
				defer nc.Close()
				online := presence.Client{NC: nc}.OnlineUsernames(householdID)
				return printJSONOrTable(map[string]any{"household_id": householdID, "online": online})
			})
		},
	}
	cmd.Flags().StringVar(&household, "household", "", "household name or id")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL")
	_ = cmd.MarkFlagRequired("household")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// resolveHousehold accepts either a household id or its name.
func resolveHousehold(ctx context.Context, r repo.Repo, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("--household required")
	}
	if _, err := r.GetHousehold(ctx, ref); err == nil {
		return ref, nil
	}
	h, err := r.GetHouseholdByName(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("household %q not found", ref)
	}
	return h.ID, nil
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
