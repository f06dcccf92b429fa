// Package config manages persistent preferences for the wfs tools.
// Settings are stored as JSON at os.UserConfigDir()/wfs/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pob31/WFS-DIY-sub001/internal/routing"
)

// Config holds all persistent tool preferences.
type Config struct {
	Backend        string  `json:"backend"`
	BlockSize      int     `json:"block_size"`
	RampLength     int     `json:"ramp_length"`
	OutputDeviceID int     `json:"output_device_id"`
	Volume         float64 `json:"volume"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Backend:        "auto",
		BlockSize:      512,
		RampLength:     routing.DefaultRampSamples,
		OutputDeviceID: -1,
		Volume:         1.0,
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "wfs", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing or
// unreadable, the default config is returned, never an error.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
