// Command foliopipe runs the XROM Systems service-status assistant.
//
// The serve command connects the enabled chat transports and the HTTP API to
// the conversation engine. The remaining commands manage the databases and
// offer a local console chat.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/FolioPipe/internal/config"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootOptions carries the global flags and the configuration loaded from
// them to the subcommands.
type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "foliopipe",
		Short: "FolioPipe: XROM Systems service-status assistant",
		Long: `FolioPipe answers customers on WhatsApp, Telegram and Discord with a menu
driven assistant that looks up the status of their technical service by folio.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return opts.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	pf.String("log-level", "", "log level: debug, info, warn or error (overrides $FOLIOPIPE_LOG_LEVEL)")
	pf.String("log-format", "", "log format: text or json (overrides $FOLIOPIPE_LOG_FORMAT)")
	pf.String("state-dir", "", "state directory for FolioPipe data (overrides $FOLIOPIPE_STATE_DIR)")
	pf.String("records-dsn", "", "service records database, or \"memory\" for the demo records (overrides $FOLIOPIPE_RECORDS_DSN)")
	pf.String("session-backend", "", "session store: memory, sqlite, postgres or redis (overrides $FOLIOPIPE_SESSION_BACKEND)")
	pf.String("session-dsn", "", "session store DSN (overrides $FOLIOPIPE_SESSION_DSN)")
	pf.Duration("session-ttl", 0, "session inactivity timeout (overrides $FOLIOPIPE_SESSION_TTL)")
	pf.Duration("call-timeout", 0, "timeout for each store call made during a turn (overrides $FOLIOPIPE_CALL_TIMEOUT)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newLookupCmd(opts))
	return cmd
}

// load reads .env, the config file, the environment and the command's flags,
// then installs the process logger.
func (o *rootOptions) load(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cfg, err := config.Load(o.configPath, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	o.cfg = cfg
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "foliopipe %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		slog.Error("FolioPipe failed", "error", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
