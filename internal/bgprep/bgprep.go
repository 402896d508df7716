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

// Package bgprep is step 1 of the export pipeline: it decodes an
// optional background video into a deterministic JPEG sequence, one
// file per timeline frame, so step 2 becomes a pure file read instead
// of a seek into a decoded video.
package bgprep

import (
	"context"

	"github.com/e1z0/lyricexport/internal/mediatool"
	"github.com/e1z0/lyricexport/internal/model"
	"github.com/e1z0/lyricexport/internal/tempsession"
)

// Index is the produced n -> bg_frames/bg_{n:06}.jpg mapping. It is
// read-only once Prepare returns successfully.
type Index struct {
	sess *tempsession.Session
}

// Path returns the background frame path for timeline index n. Callers
// must only call this after Prepare has returned successfully for the
// same session.
func (idx *Index) Path(n int) string {
	return idx.sess.BgFramePath(n)
}

// Prepare runs step 1. If req has no background video, it returns a
// nil *Index and reports no progress, matching the "Skip" behavior of
// the per-frame contract.
func Prepare(
	ctx context.Context,
	req *model.ExportRequest,
	tl *model.Timeline,
	sess *tempsession.Session,
	tool mediatool.Tool,
	onProgress func(stepProgress float64),
) (*Index, error) {
	if !req.HasBackground() {
		return nil, nil
	}

	totalFrames := tl.Len()
	totalDurationMs := float64(req.TotalDurationMs())

	extractReq := mediatool.ExtractRequest{
		SourcePath: req.BackgroundVideoPath,
		StartMs:    req.StartMs,
		EndMs:      req.EndMs,
		FPSNum:     req.FPSNum,
		FPSDen:     req.FPSDen,
		Width:      req.Width,
		Height:     req.Height,
		FitMode:    req.FitMode(),
		OutDir:     sess.BgFramesDir(),
	}

	result, err := tool.ExtractFrames(ctx, extractReq, func(hb mediatool.Heartbeat) {
		if onProgress == nil {
			return
		}
		var p float64
		if totalDurationMs > 0 && hb.ProcessedUnits > 0 {
			// ExtractFrames reports frame counts, not out_time_ms, for
			// this tool boundary; fall back to the frame-count ratio
			// the way step 3's heartbeat parser falls back when
			// out_time is unavailable.
			p = float64(hb.ProcessedUnits) / float64(totalFrames)
		} else if totalFrames > 0 {
			p = float64(hb.ProcessedUnits) / float64(totalFrames)
		}
		if p > 1 {
			p = 1
		}
		onProgress(p)
	})
	if err != nil {
		if model.IsCancelled(err) || ctx.Err() != nil {
			return nil, model.NewCancelled(model.StepBackgroundPrep)
		}
		return nil, model.NewIOError(model.StepBackgroundPrep, "extract_frames failed", err)
	}

	if result.FrameCount < totalFrames {
		return nil, model.NewBackgroundTooShort(result.FrameCount, totalFrames)
	}

	if onProgress != nil {
		onProgress(1)
	}

	return &Index{sess: sess}, nil
}
