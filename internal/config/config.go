/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * lyricexport
 * Copyright (C) 2026 lyricexport contributors
 *
 * This file is part of lyricexport.
 *
 * lyricexport is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * lyricexport is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with lyricexport.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package config loads YAML export presets and resolves the
// application's working directories, the way the teacher's AppConfig
// and Environment do for its per-camera settings.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/e1z0/lyricexport/internal/model"
)

var appName = "lyricexport"

// Environment is the set of directories the application resolves once
// at startup.
type Environment struct {
	ConfigDir string // ~/.config/lyricexport
	TempBase  string // OS temp dir, parent of every TempSession
	OS        string
}

// ResolveEnvironment gathers the application's working directories.
func ResolveEnvironment() (Environment, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Environment{}, fmt.Errorf("config: UserHomeDir: %w", err)
	}
	configDir := filepath.Join(home, ".config", appName)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return Environment{}, fmt.Errorf("config: MkdirAll(%s): %w", configDir, err)
	}
	return Environment{
		ConfigDir: configDir,
		TempBase:  os.TempDir(),
		OS:        runtime.GOOS,
	}, nil
}

// Preset is a named, reusable set of export defaults loaded from YAML.
// ApplyPreset copies its non-zero fields over the request's values.
type Preset struct {
	Name              string         `yaml:"name"`
	FPSNum            int            `yaml:"fps_num"`
	FPSDen            int            `yaml:"fps_den"`
	Width             int            `yaml:"width"`
	Height            int            `yaml:"height"`
	BackgroundFitMode model.FitMode  `yaml:"background_fit_mode,omitempty"`
}

// PresetFile is the on-disk document: a named list of presets.
type PresetFile struct {
	Presets []Preset `yaml:"presets"`
}

var (
	mu      sync.Mutex
	current PresetFile
)

// Load reads presets from path into the package-level current set and
// returns them. Safe to call again to reload.
func Load(path string) (PresetFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PresetFile{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var pf PresetFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return PresetFile{}, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	mu.Lock()
	current = pf
	mu.Unlock()
	return pf, nil
}

// Find returns the preset with the given name, if loaded.
func Find(name string) (Preset, bool) {
	mu.Lock()
	defer mu.Unlock()
	for _, p := range current.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// Save writes presets to path atomically: write to a temp file
// alongside path, then rename.
func Save(path string, pf PresetFile) error {
	mu.Lock()
	defer mu.Unlock()

	log.Printf("config: saving presets to %s", path)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", tmp, err)
	}
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(&pf); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("config: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("config: rename %s -> %s: %w", tmp, path, err)
	}
	current = pf
	return nil
}

// ApplyPreset overlays non-zero preset fields onto req, matching the
// precedence a CLI flag would have over a loaded default.
func ApplyPreset(req *model.ExportRequest, p Preset) {
	if p.FPSNum > 0 && p.FPSDen > 0 {
		req.FPSNum = p.FPSNum
		req.FPSDen = p.FPSDen
	}
	if p.Width > 0 {
		req.Width = p.Width
	}
	if p.Height > 0 {
		req.Height = p.Height
	}
	if p.BackgroundFitMode != "" {
		req.BackgroundFitMode = p.BackgroundFitMode
	}
}
