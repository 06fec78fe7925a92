package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/citelinker/resolver/internal/core/config"
	"github.com/citelinker/resolver/internal/infra/storage/postgres"
)

var resetItemCmd = &cobra.Command{
	Use:   "reset-item [item_id]",
	Short: "Clear an item's processing state and history back to not_started",
	Args:  cobra.ExactArgs(1),
	Run:   runResetItem,
}

func init() {
	rootCmd.AddCommand(resetItemCmd)
}

func runResetItem(cmd *cobra.Command, args []string) {
	itemID := args[0]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("reset-item requires a configured database")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := postgres.NewItemRepo(db).Reset(ctx, itemID); err != nil {
		slog.Error("Failed to reset item", "item", itemID, "error", err)
		os.Exit(1)
	}
	if err := postgres.NewAttemptRepo(db).DeleteByItem(ctx, itemID); err != nil {
		slog.Error("Failed to clear item history", "item", itemID, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset item %s to not_started\n", itemID)
}
