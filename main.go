package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tphakala/camtrap-go/cmd"
	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init()
	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
		logging.SetLevel(level)
	}

	var closeLogFile func() error
	if settings.Main.Log.Enabled {
		fileLogger, closeFunc, err := logging.NewFileLogger(settings.Main.Log.Path, settings.Main.Name, level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		} else {
			slog.SetDefault(fileLogger)
			closeLogFile = closeFunc
		}
	}

	execErr := cmd.RootCommand(settings).Execute()

	if closeLogFile != nil {
		_ = closeLogFile()
	}
	if execErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", execErr)
		os.Exit(1)
	}
}
