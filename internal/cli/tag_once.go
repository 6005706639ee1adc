package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"glassmon/internal/logging"
	"glassmon/internal/metrics"
)

// TagOnceCmd performs a single tagging pass and exits.
func TagOnceCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "tag-once",
		Short: "Tag every currently untagged defect and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := logging.Init(cfg.LogLevel)

			t, cleanup, err := newTagger(cfg, logger, metrics.New())
			if err != nil {
				return fmt.Errorf("tagger: %w", err)
			}
			defer cleanup()

			res, err := t.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, tagged %d, annotated %d, failed %d\n",
				res.Scanned, res.Tagged, res.Annotated, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d defects could not be updated", res.Failed)
			}
			return nil
		},
	}
}
