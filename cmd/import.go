package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"feedstore/internal/bootstrap"
	"feedstore/internal/bootstrap/logging"
	"feedstore/internal/errs"
	"feedstore/internal/infrastructure/filestore"
	"feedstore/internal/ports"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the cached feed with the contents of a record file",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		path = strings.TrimSpace(path)
		if path == "" {
			return errors.New("--file is required")
		}

		codecName, _ := cmd.Flags().GetString("codec")
		if strings.TrimSpace(codecName) == "" {
			codecName = app.Config.Store.Codec
		}
		codec, err := filestore.CodecByName(codecName)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errs.Wrapf(err, "read record file %s", path)
		}
		snapshot, err := codec.Decode(data)
		if err != nil {
			return errs.Wrap(err, "decode record file")
		}

		raw, _ := cmd.Flags().GetString("timestamp")
		if raw = strings.TrimSpace(raw); raw != "" {
			timestamp, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return errs.Wrap(err, "parse --timestamp")
			}
			snapshot.Timestamp = timestamp
		}

		if err := ports.InsertAndWait(ctx, app.Store, snapshot.Items, snapshot.Timestamp); err != nil {
			logging.Error(ctx, "import feed failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "insert feed")
		}

		logging.Info(ctx, "feed imported", slog.Int("items", len(snapshot.Items)), slog.String("file", path))
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "imported %d items from %s\n", len(snapshot.Items), path); err != nil {
			return errs.Wrap(err, "write import output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("file", "", "Record file to import (required)")
	importCmd.Flags().String("codec", "", "Record file codec: json or toml (default: store.codec)")
	importCmd.Flags().String("timestamp", "", "Override the snapshot timestamp (RFC 3339)")
}
