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

// Package teststub is a deterministic in-memory SceneRenderer used by
// the core's own tests. It paints a solid color derived from t_ms so
// two runs with identical timestamps produce byte-identical buffers.
package teststub

import "fmt"

// Renderer is a pure function of the last SetTime call; it never
// touches a clock or counts frames.
type Renderer struct {
	tMs        int64
	bgPath     string
	bgFrozenAt int64
	calls      []string // records the call sequence for assertions
}

func New() *Renderer { return &Renderer{} }

func (r *Renderer) SetTime(tMs int64) error {
	r.tMs = tMs
	r.calls = append(r.calls, fmt.Sprintf("set_time(%d)", tMs))
	return nil
}

func (r *Renderer) SetBackgroundFrame(path string) error {
	r.bgPath = path
	r.calls = append(r.calls, fmt.Sprintf("set_bg(%s)", path))
	return nil
}

func (r *Renderer) FreezeBackgroundAt(tMs int64) error {
	r.bgFrozenAt = tMs
	r.calls = append(r.calls, fmt.Sprintf("freeze_bg(%d)", tMs))
	return nil
}

// RenderInto fills buf with a byte value derived only from t_ms (and,
// if set, the background path's length) — a pure function of scene
// state, matching the determinism the real renderer must honor.
func (r *Renderer) RenderInto(buf []byte, width, height int) error {
	need := width * height * 4
	if len(buf) != need {
		return fmt.Errorf("teststub: buffer size %d, want %d", len(buf), need)
	}
	seed := byte((r.tMs + int64(len(r.bgPath))) % 256)
	for i := range buf {
		buf[i] = seed
	}
	r.calls = append(r.calls, "render_into")
	return nil
}

// Calls returns the recorded call sequence, for tests asserting ordering.
func (r *Renderer) Calls() []string { return r.calls }
