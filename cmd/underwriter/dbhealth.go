package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Check the record store connection",
	Args:  cobra.NoArgs,
	RunE:  runDBHealth,
}

func init() {
	dbhealthCmd.Flags().Bool("migrate", false, "apply the embedded schema before checking")
	dbhealthCmd.Flags().String("case", "", "also load this case id")
}

func runDBHealth(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}
	if err := store.Ping(ctx, time.Second); err != nil {
		return fmt.Errorf("DB health: FAIL (%w)", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "DB health: OK")

	if id, _ := cmd.Flags().GetString("case"); id != "" {
		c, err := store.GetCase(ctx, id)
		if err != nil {
			return fmt.Errorf("loading case %s: %w", id, err)
		}
		fmt.Fprintf(out, "case %s: %d references, %d attachments\n", c.ID, len(c.References), len(c.Attachments))
		for _, att := range c.Attachments {
			fmt.Fprintf(out, "- [%s] %s (%s)\n", att.Category, att.Name, att.ContentType)
		}
	}
	return nil
}
