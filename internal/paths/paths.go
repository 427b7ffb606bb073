// Package paths resolves configuration and data directory locations and
// finds a project's manifest file.
package paths

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const appName = "schematic"

// File and directory names.
const (
	ConfigFileName      = "config.yaml"
	ManifestFileName    = "Manifest.json"
	ContentDirName      = "Content"
	DefaultDatabaseName = "schematic.db"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "SCHEMATIC_CONFIG_DIR"
	EnvDataDir   = "SCHEMATIC_DATA_DIR"
)

// ErrManifestNotFound reports that no manifest could be located.
var ErrManifestNotFound = errors.New("manifest not found")

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/schematic (fallback ~/.config/schematic)
// macOS:   ~/Library/Application Support/schematic
// Windows: %APPDATA%/schematic
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// DefaultDataDir returns the platform-specific default data directory. The
// sqlite driver keeps its database here unless sqlite.path says otherwise.
//
// Linux:   $XDG_DATA_HOME/schematic (fallback ~/.local/share/schematic)
// macOS and Windows: same as the config directory.
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	}
	return DefaultConfigDir()
}

func xdgDir(env, fallback string) (string, error) {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, appName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > SCHEMATIC_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > configValue > SCHEMATIC_DATA_DIR env > DefaultDataDir().
func ResolveDataDir(flag, configValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultDataDir()
}

// FindManifest locates a manifest. An explicit path must exist. Otherwise
// <project>/Content/Manifest.json is tried, then the shallowest
// **/Manifest.json under project, ties broken by path order. An empty project
// means the working directory.
func FindManifest(explicit, project string) (string, error) {
	if explicit != "" {
		if isFile(explicit) {
			return filepath.Abs(explicit)
		}
		return "", fmt.Errorf("%w: %s", ErrManifestNotFound, explicit)
	}
	if project == "" {
		project = "."
	}
	if candidate := filepath.Join(project, ContentDirName, ManifestFileName); isFile(candidate) {
		return filepath.Abs(candidate)
	}

	var matches []string
	err := doublestar.GlobWalk(os.DirFS(project), "**/"+ManifestFileName, func(p string, d fs.DirEntry) error {
		if !d.IsDir() {
			matches = append(matches, p)
		}
		return nil
	}, doublestar.WithFailOnIOErrors())
	if err != nil {
		return "", fmt.Errorf("search %s: %w", project, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w under %s", ErrManifestNotFound, project)
	}
	sort.Slice(matches, func(i, j int) bool {
		di, dj := depth(matches[i]), depth(matches[j])
		if di != dj {
			return di < dj
		}
		return matches[i] < matches[j]
	})
	return filepath.Abs(filepath.Join(project, filepath.FromSlash(matches[0])))
}

func depth(p string) int { return strings.Count(path.Clean(p), "/") }

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
