// Package serve implements the command that runs the HTTP control API.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/tphakala/camtrap-go/internal/api"
	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/pipeline"
	"github.com/tphakala/camtrap-go/internal/registry"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for starting and monitoring studies",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(settings.Models.Path)
			if err != nil {
				return err
			}

			manager := pipeline.NewManager(settings, reg)

			e := echo.New()
			e.HideBanner = true
			api.New(e, settings, manager)

			errChan := make(chan error, 1)
			go func() {
				if err := e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errChan <- err
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errChan:
				return err
			case sig := <-sigChan:
				fmt.Printf("received %s, shutting down\n", sig)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "Address the HTTP API listens on")

	return cmd
}
