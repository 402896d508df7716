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

// Package driver is the LockstepDriver, step 2 and the deterministic
// core of the pipeline: a single cooperative loop that samples the
// scene at exactly n*dt, submits the rendered buffer to the encoder at
// pts = n*dt_us, and honors encoder backpressure without busy-waiting.
package driver

import (
	"context"
	"os"
	"time"

	"github.com/e1z0/lyricexport/internal/bgprep"
	"github.com/e1z0/lyricexport/internal/encoder"
	"github.com/e1z0/lyricexport/internal/model"
	"github.com/e1z0/lyricexport/internal/sceneiface"
	"github.com/e1z0/lyricexport/internal/tempsession"
)

// BackpressureBound is B from spec §4.2: the driver waits while the
// encoder reports more queued frames than this.
const BackpressureBound = 2

// backpressurePoll is how often the driver re-checks the encoder's
// queue depth while waiting; it never busy-spins on a tight loop.
const backpressurePoll = 500 * time.Microsecond

// candidates is the encoder configuration fallback order from spec §4.2.
var candidates = []encoder.Profile{encoder.ProfileHighL40, encoder.ProfileHighL50}

// Run drives exactly tl.Len() frames through renderer and enc, appending
// encoder output to sess's H.264 file in arrival order. onStepProgress
// is called with step_progress in [0,1] after every submitted frame.
func Run(
	ctx context.Context,
	req *model.ExportRequest,
	tl *model.Timeline,
	bg *bgprep.Index,
	sess *tempsession.Session,
	renderer sceneiface.Renderer,
	enc encoder.Encoder,
	onStepProgress func(float64),
) error {
	cfg, err := negotiate(enc, req)
	if err != nil {
		return err
	}
	if err := enc.Configure(cfg); err != nil {
		return model.NewEncoderError("configure failed", err)
	}

	h264, err := os.Create(sess.H264Path())
	if err != nil {
		return model.NewIOError(model.StepEncoding, "create h264 sink", err)
	}
	defer h264.Close()

	var sinkErr error
	enc.OnChunk(func(chunk model.EncodedChunk) {
		if sinkErr != nil {
			return
		}
		if _, werr := h264.Write(chunk.Data); werr != nil {
			sinkErr = werr
		}
	})

	gop := 2 * req.FPSNum / req.FPSDen
	if gop < 1 {
		gop = 1
	}
	total := tl.Len()
	dt := req.DtMicros()

	for n := 0; n < total; n++ {
		if err := checkCancelled(ctx); err != nil {
			return err
		}

		t := tl.At(n)
		if err := renderer.SetTime(t); err != nil {
			return model.NewEncoderError("scene set_time failed", err)
		}

		if bg != nil {
			if err := renderer.SetBackgroundFrame(bg.Path(n)); err != nil {
				return model.NewEncoderError("scene set_background_frame failed", err)
			}
		} else {
			if err := renderer.FreezeBackgroundAt(t); err != nil {
				return model.NewEncoderError("scene freeze_background_at failed", err)
			}
		}

		buf := make([]byte, req.Width*req.Height*4)
		if err := renderer.RenderInto(buf, req.Width, req.Height); err != nil {
			return model.NewEncoderError("scene render_into failed", err)
		}

		keyFrame := n%gop == 0
		pts := int64(n) * dt
		if err := enc.Submit(buf, pts, keyFrame); err != nil {
			return model.NewEncoderError("submit failed", err)
		}
		if sinkErr != nil {
			return model.NewIOError(model.StepEncoding, "write h264 chunk", sinkErr)
		}

		if err := waitForBackpressure(ctx, enc); err != nil {
			return err
		}
		if sinkErr != nil {
			return model.NewIOError(model.StepEncoding, "write h264 chunk", sinkErr)
		}

		if onStepProgress != nil {
			onStepProgress(float64(n+1) / float64(total))
		}
	}

	if err := enc.Flush(); err != nil {
		return model.NewEncoderError("flush failed", err)
	}
	if sinkErr != nil {
		return model.NewIOError(model.StepEncoding, "write h264 chunk", sinkErr)
	}
	if err := enc.Close(); err != nil {
		return model.NewEncoderError("close failed", err)
	}
	if err := h264.Close(); err != nil {
		return model.NewIOError(model.StepEncoding, "close h264 sink", err)
	}
	// h264.Close is idempotent-safe to call again via defer.
	return nil
}

// negotiate tries each candidate in order and returns the first one the
// encoder reports as supported.
func negotiate(enc encoder.Encoder, req *model.ExportRequest) (encoder.Config, error) {
	var tried []string
	for _, profile := range candidates {
		gop := 2 * req.FPSNum / req.FPSDen
		if gop < 1 {
			gop = 1
		}
		cfg := encoder.Config{
			Profile: profile,
			Width:   req.Width,
			Height:  req.Height,
			FPSNum:  req.FPSNum,
			FPSDen:  req.FPSDen,
			GOPSize: gop,
			CRF:     18,
		}
		tried = append(tried, string(profile))
		if enc.IsConfigSupported(cfg) {
			return cfg, nil
		}
	}
	hint := "for 1:1 aspect, try <= 1440x1440"
	return encoder.Config{}, model.NewEncoderUnsupported(tried, hint)
}

func waitForBackpressure(ctx context.Context, enc encoder.Encoder) error {
	for enc.QueuedFrames() > BackpressureBound {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return model.NewCancelled(model.StepEncoding)
		case <-time.After(backpressurePoll):
		}
	}
	return nil
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return model.NewCancelled(model.StepEncoding)
	default:
		return nil
	}
}
