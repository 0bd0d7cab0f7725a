// Package ingest implements the command that imports a folder of camera trap
// images into a new study and runs a classification model over it.
package ingest

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/pipeline"
	"github.com/tphakala/camtrap-go/internal/registry"
)

// Command creates the ingest command for importing and processing a folder.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		modelID      string
		modelVersion string
		country      string
	)

	cmd := &cobra.Command{
		Use:   "ingest [folder]",
		Short: "Import a folder of camera trap images and classify them",
		Long: `Scan a folder for images, register them in a new study and run the
selected classification model over every image. The command blocks until the
run finishes; Ctrl-C aborts it cleanly and the study can be resumed later.`,
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
			studyID, err := manager.Start(folder, registry.ModelRef{ID: modelID, Version: modelVersion}, country)
			if err != nil {
				return err
			}
			fmt.Printf("study %s created, processing %s\n", studyID, folder)

			interruptOnSignal(manager, studyID)
			return manager.Wait(studyID)
		},
	}

	cmd.Flags().StringVar(&modelID, "model", "", "Model identifier from the install manifest")
	cmd.Flags().StringVar(&modelVersion, "version", "", "Model version from the install manifest")
	cmd.Flags().StringVar(&country, "country", "", "Optional country code for geofenced predictions")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

// interruptOnSignal stops the run on the first SIGINT or SIGTERM. A second
// signal kills the process the usual way since the handler only fires once.
func interruptOnSignal(manager *pipeline.Manager, studyID string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("stopping run, study can be resumed later")
		manager.Stop(studyID)
		signal.Stop(sigChan)
	}()
}
