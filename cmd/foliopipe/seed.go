package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/FolioPipe/internal/config"
	"github.com/BTreeMap/FolioPipe/internal/models"
	"github.com/BTreeMap/FolioPipe/internal/store"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load service records into the records database",
		Long: `Loads technical service records from a YAML file. Existing folios are
updated. Without --file the three demo records are written:

  XROM-12345  pending
  XROM-ABCDE  in progress
  XROM-999    completed`,
		Example: `  foliopipe seed --file services.yaml

  # services.yaml
  services:
    - folio: XROM-12345
      status: PENDING
      reception_date: "2026-03-01"
      service_reason: Mantenimiento preventivo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), cmd.OutOrStdout(), opts.cfg, file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with the services to load")
	return cmd
}

func runSeed(ctx context.Context, out io.Writer, cfg *config.Config, file string) error {
	if cfg.RecordsDSN == config.RecordsMemory {
		return errors.New("seed: records_dsn is \"memory\"; nothing would be persisted")
	}

	var records []models.ServiceRecord
	if file != "" {
		var err error
		records, err = store.LoadSeedFile(file)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	} else {
		records = store.DemoRecords(time.Now())
	}

	repo, closeRecords, err := openRecords(cfg)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	defer closeRecords()

	n, err := store.Seed(ctx, repo, records)
	if err != nil {
		return fmt.Errorf("seed: wrote %d of %d records: %w", n, len(records), err)
	}
	fmt.Fprintf(out, "Seeded %d service records.\n", n)
	return nil
}
