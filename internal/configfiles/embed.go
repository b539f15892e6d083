// Package configfiles provides the embedded example configuration used
// as a template when initializing a fresh installation.
package configfiles

import "embed"

//go:embed config.example.yaml
var configFS embed.FS

// GetConfigExample returns the example configuration file content
func GetConfigExample() ([]byte, error) {
	return configFS.ReadFile("config.example.yaml")
}
