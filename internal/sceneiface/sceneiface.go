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

// Package sceneiface declares the SceneRenderer capability the core
// consumes but never implements (spec §6 — out of scope). The scene
// renderer paints one frame into a pixel buffer given a timestamp; it
// must be a pure function of (t_ms, scene description), never a clock
// or frame counter.
package sceneiface

// Renderer is the capability interface the LockstepDriver drives.
type Renderer interface {
	// SetTime deterministically advances scene state to t_ms. Must be
	// pure in (t_ms, scene description) — no clock, no frame counter.
	SetTime(tMs int64) error

	// SetBackgroundFrame composites the given pre-rasterized image as
	// the background for subsequent renders, used when a
	// BackgroundFrameIndex exists.
	SetBackgroundFrame(path string) error

	// FreezeBackgroundAt pauses the live background video source at
	// t_ms. Used only when no background index exists.
	FreezeBackgroundAt(tMs int64) error

	// RenderInto paints one frame into buf, which must be exactly
	// width*height*4 bytes (RGBA or BGRA, implementation-consistent).
	RenderInto(buf []byte, width, height int) error
}
