package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fintrack/internal/auth"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func newRootCommand(stdin io.Reader, logger *log.Logger) *cobra.Command {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "fintrack-admin",
		Short: "Administrative tasks for the fintrack database",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.SQLiteDBPath, "db", cfg.SQLiteDBPath, "path to the SQLite database")

	rootCmd.AddCommand(newMigrateCommand(cfg))
	rootCmd.AddCommand(newAddUserCommand(cfg, stdin, logger.WithComponent(log.ComponentAdmin)))

	return rootCmd
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage schema migrations",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), cfg.SQLiteDBPath)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid steps %q: %w", args[0], err)
				}
				steps = n
			}
			if err := storage.RollbackMigrations(cfg.SQLiteDBPath, steps); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), cfg.SQLiteDBPath)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVersion(cmd.OutOrStdout(), cfg.SQLiteDBPath)
		},
	})

	return migrateCmd
}

func printVersion(w io.Writer, dbPath string) error {
	version, dirty, err := storage.MigrationVersion(dbPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

func newAddUserCommand(cfg *config.Config, stdin io.Reader, logger *log.Logger) *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, prompting for the password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			fmt.Fprint(out, "Password: ")
			password, err := readPassword(stdin)
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			fmt.Fprintln(out)
			if strings.TrimSpace(password) == "" {
				return fmt.Errorf("password cannot be empty")
			}

			repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			authService := services.NewAuthService(repo, auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL), nil,
				services.AuthConfig{BcryptCost: cfg.BcryptCost}, logger)
			result, err := authService.Register(context.Background(), name, email, password)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "User %s created with ID %d\n", result.User.Email, result.User.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Piped input, one line
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
