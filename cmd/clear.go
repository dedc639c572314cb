package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"feedstore/internal/bootstrap"
	"feedstore/internal/bootstrap/logging"
	"feedstore/internal/errs"
	"feedstore/internal/ports"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the cached feed",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
		ctx := cmd.Context()

		if err := ports.DeleteAndWait(ctx, app.Store); err != nil {
			logging.Error(ctx, "clear feed cache failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "delete feed cache")
		}

		if _, err := fmt.Fprintln(cmd.OutOrStdout(), "feed cache cleared"); err != nil {
			return errs.Wrap(err, "write clear output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
