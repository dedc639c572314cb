/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"feedstore/internal/bootstrap"
	"feedstore/internal/bootstrap/logging"
	"feedstore/internal/errs"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare the configured store and check that it can be read",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
		ctx := cmd.Context()
		logging.Info(ctx, "start init")

		status := app.Status(ctx)
		if status.Err != nil {
			logging.Error(ctx, "read feed store failed", slog.Any("err", errs.Loggable(status.Err)))
			return errs.Wrap(status.Err, "read feed store")
		}

		logging.Info(ctx, "init finished", slog.String("state", status.Kind.String()))
		if _, err := fmt.Fprintf(
			cmd.OutOrStdout(),
			"store ready: backend=%s path=%s state=%s\n",
			app.Config.Store.Backend,
			app.Config.Store.Path,
			status.Kind,
		); err != nil {
			return errs.Wrap(err, "write init output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(initCmd)
}
