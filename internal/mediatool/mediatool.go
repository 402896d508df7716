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

// Package mediatool declares the MediaTool capability (spec §6): the
// boundary BackgroundPrep and the Muxer use to talk to whatever demuxes
// a background video into frames and muxes an elementary H.264 stream
// into a finished MP4.
package mediatool

import (
	"context"

	"github.com/e1z0/lyricexport/internal/model"
)

// ExtractRequest describes one BackgroundPrep decode pass.
type ExtractRequest struct {
	SourcePath string
	StartMs    int64 // trim start, inclusive
	EndMs      int64 // trim end, exclusive
	FPSNum     int
	FPSDen     int
	Width      int
	Height     int
	FitMode    model.FitMode // cover/contain/stretch, see spec §4.3
	OutDir     string        // receives one JPEG per frame, named bg_000000.jpg, bg_000001.jpg, ...
}

// ExtractResult reports what BackgroundPrep needs to continue.
type ExtractResult struct {
	FrameCount     int
	SourceDuration float64 // seconds, as reported by the source's own metadata
}

// MuxRequest describes one Muxer pass.
type MuxRequest struct {
	H264Path   string
	AudioPath  string // empty if the request has no audio track
	FPSNum     int
	FPSDen     int
	OutputPath string
	StreamCopy bool // true only when the encoder reported CFRTimestamped
	CRF        int  // re-encode quality target, used only when !StreamCopy
}

// Heartbeat is an in-flight progress sample from a running extract or mux.
type Heartbeat struct {
	ProcessedUnits int     // frames for extract, output-time-ms ticks for mux
	TotalUnits     int     // 0 if unknown in advance
	FractionDone   float64 // best-effort, clamped to [0,1]
}

// Tool is the capability interface BackgroundPrep and the Muxer consume.
// A MediaTool implementation owns its own subprocess or library handles;
// ctx cancellation must terminate in-flight work promptly.
type Tool interface {
	// ExtractFrames decodes req.SourcePath, trimmed to [StartMs, EndMs),
	// at req.FPSNum/req.FPSDen into JPEG frames under req.OutDir (fit to
	// Width/Height per FitMode), calling onProgress as decode advances.
	ExtractFrames(ctx context.Context, req ExtractRequest, onProgress func(Heartbeat)) (ExtractResult, error)

	// MuxH264 combines an H.264 elementary stream (and optional audio)
	// into a faststart MP4 at req.OutputPath, calling onProgress as mux
	// advances. The output is written atomically: a failure must never
	// leave a partial file at req.OutputPath.
	MuxH264(ctx context.Context, req MuxRequest, onProgress func(Heartbeat)) error
}
