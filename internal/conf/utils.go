// utils.go helpers for resolving configuration and data paths
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/camtrap-go/internal/errors"
)

// OS name constants for runtime.GOOS comparisons.
const (
	osWindows = "windows"
)

// GetDefaultConfigPaths returns a list of default configuration paths for the
// current operating system. If a config.yaml file is found in any of the paths,
// it returns that path as the only default.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-executable-path").
			Build()
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case osWindows:
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", "camtrap-go"),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "camtrap-go"),
			"/etc/camtrap-go",
		}
	}

	// Check if config.yaml exists in any of the paths
	for _, path := range configPaths {
		configFile := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFile); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// GetBasePath expands environment variables in the given path and ensures the
// resulting directory exists.
func GetBasePath(path string) string {
	expandedPath := os.ExpandEnv(path)
	basePath := filepath.Clean(expandedPath)

	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		if err := os.MkdirAll(basePath, 0o750); err != nil {
			fmt.Printf("failed to create directory '%s': %v\n", basePath, err)
		}
	}

	return basePath
}

// StudyDir returns the directory holding the given study's files, creating it
// if necessary.
func (s *Settings) StudyDir(studyID string) string {
	return GetBasePath(filepath.Join(s.Studies.Path, studyID))
}

// StudyDatabasePath returns the path of the study's SQLite database file.
func (s *Settings) StudyDatabasePath(studyID string) string {
	return filepath.Join(s.StudyDir(studyID), "study.db")
}
