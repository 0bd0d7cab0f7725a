// Package addmedia implements the command that registers additional media
// folders into an existing study.
package addmedia

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/pipeline"
	"github.com/tphakala/camtrap-go/internal/registry"
)

// Command creates the addmedia command.
func Command(settings *conf.Settings) *cobra.Command {
	var studyID string

	cmd := &cobra.Command{
		Use:   "addmedia [folder]",
		Short: "Register additional images into an existing study",
		Long: `Scan a folder and register its images into an existing study without
processing them. The next resume picks up the new media.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			reg, err := registry.Load(settings.Models.Path)
			if err != nil {
				return err
			}

			manager := pipeline.NewManager(settings, reg)
			inserted, err := manager.AddMedia(studyID, folder)
			if err != nil {
				return err
			}
			fmt.Printf("registered %d media files into study %s\n", inserted, studyID)
			return nil
		},
	}

	cmd.Flags().StringVar(&studyID, "study", "", "Study identifier")
	_ = cmd.MarkFlagRequired("study")

	return cmd
}
