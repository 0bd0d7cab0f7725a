package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/camtrap-go/cmd/addmedia"
	"github.com/tphakala/camtrap-go/cmd/ingest"
	"github.com/tphakala/camtrap-go/cmd/resume"
	"github.com/tphakala/camtrap-go/cmd/serve"
	"github.com/tphakala/camtrap-go/cmd/studystatus"
	"github.com/tphakala/camtrap-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "camtrap",
		Short: "Camera trap import and inference pipeline",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		ingest.Command(settings),
		addmedia.Command(settings),
		resume.Command(settings),
		studystatus.Command(settings),
		serve.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Studies.Path, "studies", viper.GetString("studies.path"), "Root directory holding one subdirectory per study")
	rootCmd.PersistentFlags().StringVar(&settings.Models.Path, "models", viper.GetString("models.path"), "Directory holding the model install manifest")
	rootCmd.PersistentFlags().IntVar(&settings.Inference.BatchSize, "batchsize", viper.GetInt("inference.batchsize"), "Number of media items per prediction batch")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
