// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"

	"xraysync/connector/internal/xdg"
)

// Settings holds non-sensitive CLI defaults stored in the XDG config dir.
// Only non-secret settings are kept here; credentials go to the OS keychain.
type Settings struct {
	DataDir string `json:"data_dir"`
	Debug   bool   `json:"debug"`
}

// settingsPath returns the path to the settings file.
func settingsPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// LoadSettings reads CLI settings; a missing file returns defaults.
func LoadSettings() (Settings, error) {
	var s Settings
	p, err := settingsPath()
	if err != nil {
		return s, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, err
	}
	return s, nil
}

// SaveSettings writes CLI settings with 0600 permissions.
func SaveSettings(s Settings) error {
	p, err := settingsPath()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
