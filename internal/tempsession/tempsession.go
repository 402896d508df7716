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

// Package tempsession owns the per-export working directory: creation,
// deterministic sub-paths, and cleanup on every exit path.
package tempsession

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/e1z0/lyricexport/internal/model"
)

const bgFramesDir = "bg_frames"
const h264File = "video.h264"

// Session is the exclusive owner of a session's temp directory tree.
type Session struct {
	base string
	dir  string

	mu        sync.Mutex
	cleanedUp bool
}

// Create makes <base>/<session_id>/ and <base>/<session_id>/bg_frames/,
// and registers the directory for cleanup.
func Create(base, sessionID string) (*Session, error) {
	dir := filepath.Join(base, sessionID)
	if err := os.MkdirAll(filepath.Join(dir, bgFramesDir), 0o755); err != nil {
		return nil, model.NewIOError(model.StepBackgroundPrep, fmt.Sprintf("create temp session dir %s", dir), err)
	}
	return &Session{base: base, dir: dir}, nil
}

// Dir returns the session's root directory.
func (s *Session) Dir() string { return s.dir }

// H264Path is the deterministic sub-path for the elementary stream.
func (s *Session) H264Path() string {
	return filepath.Join(s.dir, h264File)
}

// BgFramePath returns bg_frames/bg_{n:06}.jpg. Width 6 is invariant.
func (s *Session) BgFramePath(n int) string {
	return filepath.Join(s.dir, bgFramesDir, fmt.Sprintf("bg_%06d.jpg", n))
}

// BgFramesDir returns the directory background frames are written into.
func (s *Session) BgFramesDir() string {
	return filepath.Join(s.dir, bgFramesDir)
}

// Cleanup recursively removes the session directory. Safe to call more
// than once and safe after partial writes; failures are logged, never
// returned, so they can't mask a prior terminal error.
func (s *Session) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanedUp {
		return
	}
	s.cleanedUp = true
	if err := os.RemoveAll(s.dir); err != nil {
		log.Printf("tempsession: cleanup of %s failed: %v", s.dir, err)
	}
}
