package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"techcomm/internal/app"
	"techcomm/internal/config"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/metrics"
	"techcomm/internal/server"
	"techcomm/internal/store"
)

const jwtSecretEnv = "TECHCOMM_JWT_SECRET"

var rootCmd = &cobra.Command{
	Use:   "tc",
	Short: "TechComm CLI",
	Long: `TechComm runs a student tech community's events.
Core concepts:
- Event request: any member asks for an event; it waits as Pending until an admin or community organizer approves or rejects it.
- Lifecycle: Pending -> Approved -> Closed, or Pending -> Rejected. Nothing moves backwards.
- Participation: members join Approved events; team events keep every team member in a flat list too.
- Voting: organizers open voting, members vote per criterion, closing tallies winners (ties go to the lowest id).
- XP: once an event is Closed its organizers award XP exactly once; failed awards are retried by the sweeper.
- Data: a static snapshot (JSON files + scratch copy) or a remote database (sqlite or mongo), chosen in techcomm.yml.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		// .env is optional; real environment variables win.
		_ = godotenv.Load(filepath.Join(workspace, ".env"))
		return nil
	},
	SilenceUsage: true,
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
	viper.SetEnvPrefix("TECHCOMM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting member uid")
	rootCmd.PersistentFlags().String("actor-name", "", "acting member display name")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-name", rootCmd.PersistentFlags().Lookup("actor-name"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(studentCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage techcomm.yml",
		Long:  "Config selects the data source, the community-wide admins and organizers, XP amounts, the name cache and notification webhooks.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var community string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default techcomm.yml and a .env with a fresh JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(community)), 0o644); err != nil {
				return err
			}
			envPath := filepath.Join(workspace, ".env")
			if os.Getenv(jwtSecretEnv) == "" {
				if err := setEnvValue(envPath, jwtSecretEnv, strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")); err != nil {
					return err
				}
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&community, "community", "techcomm", "community name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
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
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate techcomm.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

type seedFile struct {
	Events   []domain.Event   `json:"events"`
	Students []domain.Student `json:"students"`
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace the configured data source with the documents in a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var in seedFile
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				seeder, ok := a.Store.(store.Seeder)
				if !ok {
					return fmt.Errorf("backend %s does not support seeding", a.Store.Backend())
				}
				if err := seeder.Seed(ctx, in.Events, in.Students); err != nil {
					return err
				}
				fmt.Printf("seeded %d events and %d students into %s\n", len(in.Events), len(in.Students), a.Store.Backend())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.json", "seed file with events and students")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	var email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "DEV ONLY: mint a bearer token for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.IssueToken(os.Getenv(jwtSecretEnv), actor(), email, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{
					JWTSecret:              os.Getenv(jwtSecretEnv),
					AllowLegacyActorHeader: legacyHeader,
					Logger:                 a.Log,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("%s is required for bearer auth", jwtSecretEnv)
				}
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
					return err
				}
				if err := a.StartBackground(ctx); err != nil {
					return err
				}
				handler, err := server.New(server.Config{
					Engine:         a.Engine,
					Profiles:       a.Profiles,
					Names:          a.Names,
					BasePath:       basePath,
					Auth:           authCfg,
					AllowedOrigins: a.Config.Server.AllowedOrigins,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving TechComm API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().BoolVar(&legacyHeader, "allow-actor-header", false, "DEV ONLY: trust X-Actor-Id without a token")
	return cmd
}

// --- helpers ---

func logger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"), logger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func actor() auth.Actor {
	return auth.Actor{
		UID:         strings.TrimSpace(viper.GetString("actor-id")),
		DisplayName: strings.TrimSpace(viper.GetString("actor-name")),
	}
}

func printJSONOrPretty(v any) error {
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

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
