package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/BurntSushi/toml"
)

const (
	appName     = "dictserver"
	profileFile = "dictctl.toml"
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// Profile is the dictctl client profile.
type Profile struct {
	// Server is the base URL of the last server used, e.g. http://10.0.0.5:8080
	Server  string   `toml:"server"`
	Timeout Duration `toml:"timeout"`
	// Known holds servers found by `dictctl scan`, by instance name.
	Known map[string]string `toml:"known"`
}

// GetConfigDir returns the OS-appropriate configuration directory:
//   - Linux: $XDG_CONFIG_HOME/dictserver or $HOME/.config/dictserver
//   - macOS: $HOME/.config/dictserver
//   - Windows: %LOCALAPPDATA%\dictserver
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil
	case "darwin":
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", appName), nil
}

// GetProfilePath returns the full path to the client profile.
func GetProfilePath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, profileFile), nil
}

// LoadProfile reads the client profile. A missing file yields defaults.
func LoadProfile() (*Profile, error) {
	path, err := GetProfilePath()
	if err != nil {
		return nil, err
	}
	return LoadProfileFrom(path)
}

// LoadProfileFrom reads a client profile from path.
func LoadProfileFrom(path string) (*Profile, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	p := &Profile{
		Server:  "http://localhost:8080",
		Timeout: Duration(10e9),
		Known:   make(map[string]string),
	}
	if _, err := toml.DecodeFile(path, p); err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if p.Known == nil {
		p.Known = make(map[string]string)
	}
	return p, nil
}

// Save writes the profile to the default location.
func (p *Profile) Save() error {
	path, err := GetProfilePath()
	if err != nil {
		return err
	}
	return p.SaveTo(path)
}

// SaveTo writes the profile atomically to path.
func (p *Profile) SaveTo(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(p); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
