package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/FolioPipe/internal/config"
	"github.com/BTreeMap/FolioPipe/internal/messaging"
)

const defaultChatUserID = 1

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		userID int64
		name   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Long: `Runs an interactive conversation on standard input. Buttons are shown as a
numbered list; answer with the number or the label. End the session with Ctrl+D.

Use --records-dsn memory to chat against the demo records.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runChat(ctx, opts.cfg, cmd.InOrStdin(), cmd.OutOrStdout(), userID, name)
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", defaultChatUserID, "user id the conversation is stored under")
	cmd.Flags().StringVar(&name, "name", "", "display name sent with each message")
	return cmd
}

// runChat returns when in is exhausted and the last reply has been written.
func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, userID int64, name string) error {
	sessions, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	records, closeRecords, err := openRecords(cfg)
	if err != nil {
		return err
	}
	defer closeRecords()

	console := messaging.NewConsoleService(in, out, userID, name)
	dispatcher := messaging.NewDispatcher(newEngine(cfg, sessions, records), messaging.WithWorkers(1))
	dispatcher.Register(console)
	dispatcher.Start(ctx)

	fmt.Fprintf(out, "FolioPipe %s. Escribe un mensaje (Ctrl+D para salir).\n\n", Version)
	if err := console.Start(ctx); err != nil {
		return err
	}
	dispatcher.Wait()
	return nil
}
