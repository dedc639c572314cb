package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feedstore/internal/bootstrap"
	"feedstore/internal/errs"
	"feedstore/internal/infrastructure/filestore"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cached feed snapshot",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
		format, _ := cmd.Flags().GetString("format")
		format = strings.ToLower(strings.TrimSpace(format))

		retrieval := app.Status(cmd.Context())
		if retrieval.Err != nil {
			return errs.Wrap(retrieval.Err, "retrieve feed cache")
		}

		var out string
		switch format {
		case "", "styled":
			out = renderRetrieval(app.Config.Store.Backend, app.Config.Store.Path, retrieval)
		default:
			if !retrieval.IsFound() {
				return fmt.Errorf("feed cache is empty")
			}
			codec, err := filestore.CodecByName(format)
			if err != nil {
				return err
			}
			data, err := codec.Encode(retrieval.Snapshot)
			if err != nil {
				return errs.Wrap(err, "encode snapshot")
			}
			out = string(data)
		}

		if _, err := fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(out, "\n")); err != nil {
			return errs.Wrap(err, "write show output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().String("format", "styled", "Output format: styled, json, toml")
}
