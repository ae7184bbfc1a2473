package check

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFile is the name of the project configuration file.
const ConfigFile = "tvmcheck.toml"

// ProjectConfig represents a tvmcheck.toml project configuration file.
type ProjectConfig struct {
	// Spec is the path to the instruction signature table. Relative paths
	// are resolved against the directory holding tvmcheck.toml. Supports
	// ${ENV_VAR} expansion.
	Spec string `toml:"spec,omitempty"`

	// Check holds defaults for the checker options.
	Check Options `toml:"check"`
}

// LoadProjectConfig loads a tvmcheck.toml file from the given path.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	config := ProjectConfig{Check: DefaultOptions()}
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if config.Spec != "" {
		config.Spec = os.ExpandEnv(config.Spec)
		if !filepath.IsAbs(config.Spec) {
			config.Spec = filepath.Join(filepath.Dir(path), config.Spec)
		}
	}
	return &config, nil
}

// FindProjectConfig searches for tvmcheck.toml in dir and its parents,
// stopping at the repository root. It returns ("", nil, nil) when there is
// none.
func FindProjectConfig(dir string) (string, *ProjectConfig, error) {
	path, err := findUp(dir, ConfigFile)
	if err != nil || path == "" {
		return "", nil, err
	}
	config, err := LoadProjectConfig(path)
	if err != nil {
		return "", nil, err
	}
	return path, config, nil
}

// findUp looks for name in dir and then each parent, giving up after the
// first directory holding a .git entry.
func findUp(dir, name string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for ; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil || dir == filepath.Dir(dir) {
			return "", nil
		}
	}
}
