// defaults.go default values for the configuration
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default configuration values for viper.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main configuration
	viper.SetDefault("main.name", "CamTrap-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/camtrap.log")

	// Study storage
	viper.SetDefault("studies.path", "studies/")

	// Model install manifest
	viper.SetDefault("models.path", "models/")

	// Inference server and client
	viper.SetDefault("inference.host", "127.0.0.1")
	viper.SetDefault("inference.debugport", 0)
	viper.SetDefault("inference.batchsize", 10)
	viper.SetDefault("inference.startupretries", 30)
	viper.SetDefault("inference.startupretryinterval", 2)
}
