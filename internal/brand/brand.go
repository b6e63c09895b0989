// Package brand holds the product name, file names and build metadata.
//
// The identity is loaded from brand.json at compile time via go:embed so
// scripts and packaging read the same values.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name            string `json:"name"`
	LowerName       string `json:"lowerName"`
	Description     string `json:"description"`
	Repository      string `json:"repository"`
	ConfigEnvPrefix string `json:"configEnvPrefix"`
	BinaryName      string `json:"binaryName"`
	ConfigFileName  string `json:"configFileName"`
	DotEnvFile      string `json:"dotEnvFile"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	BinaryName = b.BinaryName
	ConfigEnvPrefix = b.ConfigEnvPrefix
	ConfigFileName = b.ConfigFileName
	DotEnvFile = b.DotEnvFile
}

var (
	Name            string
	LowerName       string
	Description     string
	BinaryName      string
	ConfigEnvPrefix string
	ConfigFileName  string
	DotEnvFile      string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// GetConfigDir returns the config directory.
// Priority: ARCHER_CONFIG_DIR > user config dir/archer > current directory
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, LowerName)
	}
	return "."
}

// DefaultConfigPath is where the CLI looks for its config file.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
