package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/foodops/internal/bootstrap"
	"github.com/JonMunkholm/foodops/internal/config"
	"github.com/JonMunkholm/foodops/internal/core"
	_ "github.com/JonMunkholm/foodops/internal/core/kinds" // Register import kinds
	"github.com/JonMunkholm/foodops/internal/logging"
)

// app holds state shared by all subcommands. svc is opened lazily so that
// commands like kinds need no catalog.
type app struct {
	backend  string
	logLevel string

	cfg   *config.Config
	svc   *core.Service
	close func()
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Import, reconcile and export catalog data files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), a.logLevel, "text"))
			if cmd.Flags().Changed("backend") {
				return os.Setenv("CATALOG_BACKEND", strings.ToLower(a.backend))
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.backend, "backend", "", "catalog backend: postgres or memory (default from CATALOG_BACKEND)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newDatasetsCmd(a))
	cmd.AddCommand(newKindsCmd())
	return cmd
}

// service loads configuration and opens the catalog on first use.
func (a *app) service(cmd *cobra.Command) (*core.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		a.cfg = cfg
	}

	cat, closeFn, err := bootstrap.OpenCatalog(cmd.Context(), a.cfg.Database)
	if err != nil {
		return nil, err
	}
	svc, err := bootstrap.NewService(cat, a.cfg)
	if err != nil {
		closeFn()
		return nil, err
	}
	a.svc, a.close = svc, closeFn
	return svc, nil
}

// defaultDelimiter is the configured delimiter, or comma before config loads.
func (a *app) defaultDelimiter() string {
	if a.cfg != nil && a.cfg.Upload.DefaultDelimiter != "" {
		return a.cfg.Upload.DefaultDelimiter
	}
	return ","
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	// A missing .env is normal for the CLI.
	_ = godotenv.Overload()

	a := &app{}
	err := newRootCmd(a).Execute()
	if a.close != nil {
		a.close()
	}
	if err != nil {
		msg := err.Error()
		if core.IsUserFacing(err) {
			msg = core.FormatUserError(err)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		slog.Debug("command failed", "error", err)
		os.Exit(1)
	}
}
