package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print memory counts by state, type, and instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			stats, err := svc.store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(out))
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(statsCmd)
}
