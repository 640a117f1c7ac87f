package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mdnotes/internal/app"
	"mdnotes/internal/config"
	"mdnotes/internal/database"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig reads the config from the default location.
func readConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Serve", "Pull").
func newApp(ctx context.Context, operation string) (*app.App, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readSecret prompts on stderr and reads a line without echo.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(b), nil
}

// readNewSecret prompts twice and requires both entries to match.
func readNewSecret(what string) (string, error) {
	first, err := readSecret(fmt.Sprintf("New %s: ", what))
	if err != nil {
		return "", err
	}
	second, err := readSecret(fmt.Sprintf("Confirm %s: ", what))
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("%s entries do not match", what)
	}
	return first, nil
}

var rootCmd = &cobra.Command{
	Use:   "mdnotes",
	Short: "Markdown notes with GitHub sync",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Println("Set github.app_id and place the app key at github.private_key_path to enable sync.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Listen:      %s\n", cfg.Server.ListenAddr)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		if cfg.GitHub.AppID != 0 {
			fmt.Printf("GitHub App:  %d (%s)\n", cfg.GitHub.AppID, cfg.GitHub.APIURL)
		} else {
			fmt.Println("GitHub App:  not configured")
		}
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:       %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var configKeysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		passphrase, err := readNewSecret("passphrase")
		if err != nil {
			return err
		}
		if err := app.SetupKeys(cfg, passphrase); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		if err := app.Migrate(cfg); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add EMAIL",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readNewSecret("password")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "AddUser")
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.AddUser(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		fmt.Printf("Created user %s (%s)\n", user.Email, user.ID)
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull EMAIL [OWNER/REPO]",
	Short: "Pull linked repositories of a user",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fullName string
		if len(args) == 2 {
			fullName = args[1]
		}

		a, err := newApp(cmd.Context(), "Pull")
		if err != nil {
			return err
		}
		defer a.Close()

		pulls, err := a.Pull(cmd.Context(), args[0], fullName)
		if err != nil {
			return err
		}
		if len(pulls) == 0 {
			fmt.Println("No linked repositories.")
			return nil
		}

		failed := 0
		for _, p := range pulls {
			if p.Err != nil {
				failed++
				fmt.Printf("%-30s  error: %v\n", p.Repository.FullName, p.Err)
				continue
			}
			r := p.Result
			fmt.Printf("%-30s  renamed=%d updated=%d restored=%d inserted=%d deleted=%d ignored=%d skipped=%d\n",
				p.Repository.FullName, r.Renamed, r.Updated, r.Restored, r.Inserted, r.Deleted, r.Ignored, r.Skipped)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d repositories failed to pull", failed, len(pulls))
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No sync operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-5s  repo=%-10d  %s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.RepositoryID,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload an encrypted database snapshot to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.Backup(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot uploaded (version %d)\n", version)
		return nil
	},
}

var restoreDBCmd = &cobra.Command{
	Use:   "restore-db [DEST]",
	Short: "Download and decrypt the newest database snapshot",
	Long: "Download and decrypt the newest database snapshot. DEST defaults to the\n" +
		"configured database file, which must not exist.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}

		dest := filepath.Join(cfg.Database.DataDir, database.DatabaseFileName)
		if len(args) == 1 {
			dest = args[0]
		}

		passphrase, err := readSecret("Passphrase: ")
		if err != nil {
			return err
		}

		version, err := app.Restore(cmd.Context(), cfg, passphrase, dest)
		if err != nil {
			return err
		}
		fmt.Printf("Restored snapshot version %d to %s\n", version, dest)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)
	configKeysCmd.AddCommand(configKeysInitCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	userCmd.AddCommand(userAddCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreDBCmd)
}
