package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/FolioPipe/internal/config"
	"github.com/BTreeMap/FolioPipe/internal/folio"
	"github.com/BTreeMap/FolioPipe/internal/messaging"
	"github.com/BTreeMap/FolioPipe/internal/models"
)

func newLookupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <text>",
		Short: "Show the service details for the folio found in text",
		Long: `Extracts a folio from the arguments the same way the assistant does and
prints the reply a customer would receive.`,
		Example: `  foliopipe lookup XROM-12345
  foliopipe lookup "mi folio es xrom 999"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd.Context(), cmd.OutOrStdout(), opts.cfg, strings.Join(args, " "))
		},
	}
}

func runLookup(ctx context.Context, out io.Writer, cfg *config.Config, text string) error {
	renderer := newRenderer(cfg)

	var resp models.BotResponse
	f, ok := folio.Extract(text)
	if !ok {
		resp = renderer.InvalidFolio(strings.TrimSpace(text))
	} else {
		repo, closeRecords, err := openRecords(cfg)
		if err != nil {
			return err
		}
		defer closeRecords()

		ctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
		rec, err := repo.FindByFolio(ctx, f)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", f, err)
		}
		if rec == nil {
			resp = renderer.FolioNotFound(strings.TrimSpace(text))
		} else {
			resp = renderer.ServiceDetails(*rec)
		}
	}

	_, err := fmt.Fprintln(out, messaging.PlainText(resp.Text))
	return err
}
