// Package resume implements the command that continues an interrupted run.
package resume

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/pipeline"
	"github.com/tphakala/camtrap-go/internal/registry"
)

// Command creates the resume command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [study-id]",
		Short: "Continue processing a study's remaining media",
		Long: `Relaunch processing for a study with the model and options of its most
recent run. Media that already has an observation is never re-processed, so
an interrupted run picks up exactly where it left off.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID := args[0]

			reg, err := registry.Load(settings.Models.Path)
			if err != nil {
				return err
			}

			manager := pipeline.NewManager(settings, reg)
			if err := manager.Resume(studyID); err != nil {
				return err
			}
			fmt.Printf("resumed study %s\n", studyID)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				fmt.Println("stopping run, study can be resumed later")
				manager.Stop(studyID)
				signal.Stop(sigChan)
			}()

			return manager.Wait(studyID)
		},
	}

	return cmd
}
