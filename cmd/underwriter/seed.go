package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/ingest"
	"github.com/joseph-ayodele/packet-underwriter/internal/repository"
)

var seedCmd = &cobra.Command{
	Use:   "seed [fixture.yaml]",
	Short: "Load cases into a SQLite record store",
	Long: `seed writes cases, reference values and attachment bytes into the SQLite
database named by db.url. Either pass a YAML fixture (attachment paths are
relative to the fixture file) or --dir with a folder laid out as
<category>/<file>, with an optional references.yaml at its root.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().String("dir", "", "case folder to scan instead of a fixture")
	seedCmd.Flags().String("case", "", "case id for --dir")
	seedCmd.Flags().String("counterparty", "", "counterparty name for --dir")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "sqlite" {
		return common.ConfigError("seed needs db.driver=sqlite")
	}

	dir, _ := cmd.Flags().GetString("dir")
	var fx repository.Fixture
	var baseDir string
	switch {
	case dir != "":
		caseID, _ := cmd.Flags().GetString("case")
		counterparty, _ := cmd.Flags().GetString("counterparty")
		fc, results, stats, err := ingest.ScanCaseDir(dir, ingest.ScanOptions{CaseID: caseID, Counterparty: counterparty, SkipHidden: true})
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Err != "" {
				logger.Warn("seed.file.skipped", "path", r.Path, "reason", r.Err)
			}
		}
		logger.Info("seed.dir.scanned", "dir", dir, "matched", stats.Matched, "added", stats.Succeeded, "failed", stats.Failed)
		fx.Cases = []repository.FixtureCase{fc}
		baseDir = dir
	case len(args) == 1:
		if fx, err = repository.LoadFixture(args[0]); err != nil {
			return err
		}
		baseDir = filepath.Dir(args[0])
	default:
		return fmt.Errorf("pass a fixture file or --dir")
	}

	store, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := repository.Seed(ctx, store.SQLite(), fx, baseDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d cases into %s\n", n, cfg.Database.DSN)
	return nil
}
