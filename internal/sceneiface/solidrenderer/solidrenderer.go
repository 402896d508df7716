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

// Package solidrenderer is the minimal real SceneRenderer the CLI wires
// when no template/compositing layer is available: it paints a flat
// color derived from t_ms, optionally darkened under a background
// frame. The real renderer (lyric layout, fonts, templates) is an
// external collaborator out of this core's scope (spec §6); this
// exists only so the pipeline runs end-to-end standalone.
package solidrenderer

import "fmt"

type Renderer struct {
	tMs    int64
	hasBg  bool
}

func New() *Renderer { return &Renderer{} }

func (r *Renderer) SetTime(tMs int64) error {
	r.tMs = tMs
	return nil
}

func (r *Renderer) SetBackgroundFrame(path string) error {
	r.hasBg = true
	return nil
}

func (r *Renderer) FreezeBackgroundAt(tMs int64) error {
	r.hasBg = false
	return nil
}

func (rd *Renderer) RenderInto(buf []byte, width, height int) error {
	need := width * height * 4
	if len(buf) != need {
		return fmt.Errorf("solidrenderer: buffer size %d, want %d", len(buf), need)
	}
	red, green, blue := hueFromMs(rd.tMs)
	if rd.hasBg {
		red, green, blue = red/2, green/2, blue/2
	}
	for i := 0; i < len(buf); i += 4 {
		buf[i+0] = blue
		buf[i+1] = green
		buf[i+2] = red
		buf[i+3] = 0xFF
	}
	return nil
}

func hueFromMs(tMs int64) (byte, byte, byte) {
	phase := tMs % 3000
	switch {
	case phase < 1000:
		return byte(255 * phase / 1000), 0, byte(255 - 255*phase/1000)
	case phase < 2000:
		p := phase - 1000
		return byte(255 - 255*p/1000), byte(255 * p / 1000), 0
	default:
		p := phase - 2000
		return 0, byte(255 - 255*p/1000), byte(255 * p / 1000)
	}
}
