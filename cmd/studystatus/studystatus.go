// Package studystatus implements the command that prints a study's progress.
package studystatus

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/pipeline"
)

// Command creates the status command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [study-id]",
		Short: "Show processing progress for a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID := args[0]

			status, err := pipeline.ReadStatus(settings.StudyDatabasePath(studyID), false)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			fmt.Printf("study:     %s\n", studyID)
			fmt.Printf("processed: %d/%d\n", status.Done, status.Total)
			if status.LastRunStatus != "" {
				fmt.Printf("last run:  %s\n", status.LastRunStatus)
			}
			if status.LastError != "" {
				fmt.Printf("error:     %s\n", status.LastError)
			}
			if status.Speed > 0 {
				fmt.Printf("speed:     %.1f images/min\n", status.Speed)
			}
			if status.EstimatedMinutesRemaining > 0 {
				fmt.Printf("remaining: %.1f min\n", status.EstimatedMinutesRemaining)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}
