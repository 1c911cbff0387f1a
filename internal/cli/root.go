package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ranklist/internal/store"
)

// Environment variables that supply flag defaults. main loads a .env file
// into the environment before the command tree is built.
const (
	EnvDriver = "RANKLIST_DRIVER"
	EnvDSN    = "RANKLIST_DSN"
	EnvConfig = "RANKLIST_CONFIG"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Database and list definitions used by the list commands.
	Driver string
	DSN    string
	Config string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ranklist CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ranklist",
		Short: "ranklist - gapless positions for database rows",
		Long: `Inspect and reorder positioned lists kept in SQLite or Postgres tables.

Lists are defined in CUE files (see "ranklist validate"). Each list names a
table, its position column and the scope that splits the table into
independent lists numbered 1..N.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Driver, "driver", envOr(EnvDriver, string(store.DriverSQLite)), "database driver (sqlite3|pgx)")
	flags.StringVar(&opts.DSN, "dsn", os.Getenv(EnvDSN), "database file (sqlite3) or connection string (pgx)")
	flags.StringVar(&opts.Config, "config", envOr(EnvConfig, "."), "directory of CUE list definitions")

	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewInsertAtCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
