// config.go: settings struct and functions to load and save the camtrap-go configuration.
package conf

import (
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/tphakala/camtrap-go/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled bool   // true to enable this log
	Path    string // path to log file
}

// MainSettings contains general application settings
type MainSettings struct {
	Name string    // name of this node, can be used to identify an installation
	Log  LogConfig // application log settings
}

// StudiesSettings contains settings for study storage
type StudiesSettings struct {
	Path string // root directory holding one subdirectory per study
}

// ModelsSettings contains settings for the installed model registry
type ModelsSettings struct {
	Path string // directory holding the models.yaml install manifest and model files
}

// InferenceSettings contains settings for the local inference server and client
type InferenceSettings struct {
	Host                 string // host the spawned server binds to
	DebugPort            int    // fixed port for debugging, 0 means allocate an ephemeral port
	BatchSize            int    // number of media items per predict request
	StartupRetries       int    // health check attempts before giving up on server startup
	StartupRetryInterval int    // seconds between health check attempts
}

// Settings contains all runtime settings of the application
type Settings struct {
	Debug bool // true to enable debug mode

	Main      MainSettings
	Studies   StudiesSettings
	Models    ModelsSettings
	Inference InferenceSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration from disk into a Settings struct, applying
// defaults for anything not present in the config file.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := validateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config.yaml to the first
// default config path and points viper at it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	if len(configPaths) == 0 {
		return errors.Newf("no default config paths available").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	log.Printf("Created default config file at: %s", configPath)
	return viper.ReadInConfig()
}

// validateSettings checks settings values that have required constraints.
func validateSettings(settings *Settings) error {
	if settings.Inference.BatchSize < 1 {
		return errors.Newf("inference batch size must be at least 1, got %d", settings.Inference.BatchSize).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if settings.Inference.StartupRetries < 1 {
		return errors.Newf("inference startup retries must be at least 1, got %d", settings.Inference.StartupRetries).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Setting returns the global settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings replaces the global settings instance. Intended for tests.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
	once.Do(func() {})
}
