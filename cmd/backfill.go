package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	backfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Embed every memory missing a vector under the current model",
		Long:  longBackfill,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.store.BackfillEmbeddings(cmd.Context())
			if res != nil {
				log.Info("backfill finished",
					"processed", res.Processed,
					"failed", res.Failed,
				)
				for _, id := range res.FailedIDs {
					log.Warn("embedding failed", "memory", id)
				}
			}
			return err
		},
	}
)

func init() {
	rootCmd.AddCommand(backfillCmd)
}

var longBackfill = `
Backfill walks the whole store, including archived records, and embeds any
memory that has no vector under the configured embedding model. Records that
already carry a current vector are skipped, so running it twice is a no-op.
Useful after switching embedding models or importing records in bulk.
`
