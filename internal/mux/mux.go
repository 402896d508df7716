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

// Package mux is step 3: combine the H.264 elementary stream with the
// optional audio file into a faststart MP4 with explicit CFR metadata,
// then atomically publish it at the request's output path.
package mux

import (
	"context"

	"github.com/e1z0/lyricexport/internal/mediatool"
	"github.com/e1z0/lyricexport/internal/model"
	"github.com/e1z0/lyricexport/internal/tempsession"
)

// Mux runs step 3. cfrTimestamped is the encoder's own report (from
// encoder.Config.CFRTimestamped) of whether its AnnexB output is
// already strictly CFR; only then is stream-copy attempted.
func Mux(
	ctx context.Context,
	req *model.ExportRequest,
	sess *tempsession.Session,
	tool mediatool.Tool,
	cfrTimestamped bool,
	onStepProgress func(float64),
) error {
	totalDurationMs := float64(req.TotalDurationMs())

	muxReq := mediatool.MuxRequest{
		H264Path:   sess.H264Path(),
		AudioPath:  req.AudioPath,
		FPSNum:     req.FPSNum,
		FPSDen:     req.FPSDen,
		OutputPath: req.OutputPath,
		StreamCopy: cfrTimestamped,
	}

	err := tool.MuxH264(ctx, muxReq, func(hb mediatool.Heartbeat) {
		if onStepProgress == nil {
			return
		}
		var p float64
		if totalDurationMs > 0 {
			p = float64(hb.ProcessedUnits) / totalDurationMs
		} else if hb.TotalUnits > 0 {
			p = float64(hb.ProcessedUnits) / float64(hb.TotalUnits)
		}
		if p > 1 {
			p = 1
		}
		onStepProgress(p)
	})
	if err != nil {
		if model.IsCancelled(err) || ctx.Err() != nil {
			return model.NewCancelled(model.StepMuxing)
		}
		// Stream-copy failure: retry transparently with a re-encode, per spec §4.4.
		if cfrTimestamped {
			muxReq.StreamCopy = false
			retryErr := tool.MuxH264(ctx, muxReq, func(hb mediatool.Heartbeat) {
				if onStepProgress == nil {
					return
				}
				var p float64
				if totalDurationMs > 0 {
					p = float64(hb.ProcessedUnits) / totalDurationMs
				}
				if p > 1 {
					p = 1
				}
				onStepProgress(p)
			})
			if retryErr == nil {
				if onStepProgress != nil {
					onStepProgress(1)
				}
				return nil
			}
			return model.NewMuxError("mux_h264 failed (stream-copy and re-encode both failed)", errTail(retryErr), []string{muxReq.H264Path, muxReq.OutputPath}, retryErr)
		}
		return model.NewMuxError("mux_h264 failed", errTail(err), []string{muxReq.H264Path, muxReq.OutputPath}, err)
	}

	if onStepProgress != nil {
		onStepProgress(1)
	}
	return nil
}

// errTail returns the last ~16KiB of an error's text, the "captured tail
// of diagnostics" spec §4.4/§7 require MuxError to carry.
func errTail(err error) string {
	const maxTail = 16 * 1024
	s := err.Error()
	if len(s) <= maxTail {
		return s
	}
	return s[len(s)-maxTail:]
}
