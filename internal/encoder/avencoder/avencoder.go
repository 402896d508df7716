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

// Package avencoder is the astiav-backed production VideoEncoder. It
// generalizes the teacher's AAC encoder setup (video.go's
// startRecorder: AllocCodecContext, Open with a private-option
// Dictionary, SendFrame/ReceivePacket drain loop) from audio to H.264
// video, and from "whatever the mic gives you" to the explicit
// profile/level negotiation spec §4.2 requires.
package avencoder

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/lyricexport/internal/encoder"
	"github.com/e1z0/lyricexport/internal/model"
)

// candidateOptions maps a Profile to the x264 private options used to
// negotiate it, tried in the order spec §4.2 specifies.
func candidateOptions(p encoder.Profile) (profile, level string, ok bool) {
	switch p {
	case encoder.ProfileHighL40:
		return "high", "4.0", true
	case encoder.ProfileHighL50:
		return "high", "5.0", true
	default:
		return "", "", false
	}
}

// Encoder is the astiav-backed VideoEncoder. One Encoder serves exactly
// one session; it is never shared across sessions (spec §5).
type Encoder struct {
	mu        sync.Mutex
	codecCtx  *astiav.CodecContext
	scaler    *astiav.SoftwareScaleContext
	yuvFrame  *astiav.Frame
	cfg       encoder.Config
	configured bool
	closed    bool

	queued int64 // atomic: submitted, not yet emitted as a chunk

	cb func(model.EncodedChunk)
}

func New() *Encoder {
	return &Encoder{}
}

// IsConfigSupported probes a candidate by opening a throwaway codec
// context with the same parameters and immediately freeing it — astiav
// exposes no cheaper capability query for libx264 profile/level support.
func (e *Encoder) IsConfigSupported(cfg encoder.Config) bool {
	profile, level, ok := candidateOptions(cfg.Profile)
	if !ok {
		return false
	}

	codec := astiav.FindEncoder(astiav.CodecIDH264)
	if codec == nil {
		return false
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return false
	}
	defer ctx.Free()

	applyCommonParams(ctx, cfg)

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("profile", profile, 0)
	_ = opts.Set("level", level, 0)

	err := ctx.Open(codec, opts)
	return err == nil
}

// Configure commits to cfg. Must be called exactly once before Submit.
func (e *Encoder) Configure(cfg encoder.Config) error {
	profile, level, ok := candidateOptions(cfg.Profile)
	if !ok {
		return fmt.Errorf("avencoder: unknown profile %q", cfg.Profile)
	}

	codec := astiav.FindEncoder(astiav.CodecIDH264)
	if codec == nil {
		return fmt.Errorf("avencoder: libx264 encoder not found")
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return fmt.Errorf("avencoder: AllocCodecContext failed")
	}

	applyCommonParams(ctx, cfg)

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("profile", profile, 0)
	_ = opts.Set("level", level, 0)
	if cfg.BitrateBps == 0 {
		_ = opts.Set("crf", fmt.Sprintf("%d", cfg.CRF), 0)
	}
	_ = opts.Set("preset", "medium", 0)

	log.Printf("avencoder: opening libx264 profile=%s level=%s crf=%d gop=%d %dx%d@%d/%d",
		profile, level, cfg.CRF, cfg.GOPSize, cfg.Width, cfg.Height, cfg.FPSNum, cfg.FPSDen)

	if err := ctx.Open(codec, opts); err != nil {
		ctx.Free()
		return fmt.Errorf("avencoder: Open: %w", err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(cfg.Width)
	dst.SetHeight(cfg.Height)
	dst.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := dst.AllocBuffer(1); err != nil {
		ctx.Free()
		dst.Free()
		return fmt.Errorf("avencoder: dst.AllocBuffer: %w", err)
	}

	cfg.CFRTimestamped = true

	e.mu.Lock()
	e.codecCtx = ctx
	e.yuvFrame = dst
	e.cfg = cfg
	e.configured = true
	e.mu.Unlock()
	return nil
}

func applyCommonParams(ctx *astiav.CodecContext, cfg encoder.Config) {
	ctx.SetWidth(cfg.Width)
	ctx.SetHeight(cfg.Height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(astiav.NewRational(cfg.FPSDen, cfg.FPSNum))
	ctx.SetFramerate(astiav.NewRational(cfg.FPSNum, cfg.FPSDen))
	if cfg.GOPSize > 0 {
		ctx.SetGopSize(cfg.GOPSize)
	}
	if cfg.BitrateBps > 0 {
		ctx.SetBitRate(int64(cfg.BitrateBps))
	}
}

// Submit converts a BGRA/RGBA pixel buffer to YUV420P and sends it to
// the encoder. It returns once the frame has been accepted by
// libavcodec's internal queue; chunks arrive later via OnChunk, in
// encode order, from drainLocked.
func (e *Encoder) Submit(frame []byte, ptsUs int64, keyFrame bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return fmt.Errorf("avencoder: Submit before Configure")
	}

	if err := e.ensureScalerLocked(); err != nil {
		return err
	}

	src := astiav.AllocFrame()
	defer src.Free()
	src.SetWidth(e.cfg.Width)
	src.SetHeight(e.cfg.Height)
	src.SetPixelFormat(astiav.PixelFormatBgra)
	if err := src.AllocBuffer(1); err != nil {
		return fmt.Errorf("avencoder: src.AllocBuffer: %w", err)
	}
	if err := src.ImageCopyFromBuffer(frame, 1); err != nil {
		return fmt.Errorf("avencoder: ImageCopyFromBuffer: %w", err)
	}

	if err := e.scaler.ScaleFrame(src, e.yuvFrame); err != nil {
		return fmt.Errorf("avencoder: ScaleFrame: %w", err)
	}

	pts := (ptsUs*int64(e.cfg.FPSNum) + 500_000*int64(e.cfg.FPSDen)) / (1_000_000 * int64(e.cfg.FPSDen))
	e.yuvFrame.SetPts(pts)
	if keyFrame {
		e.yuvFrame.SetPictureType(astiav.PictureTypeI)
	} else {
		e.yuvFrame.SetPictureType(astiav.PictureTypeNone)
	}

	atomic.AddInt64(&e.queued, 1)
	if err := e.codecCtx.SendFrame(e.yuvFrame); err != nil {
		atomic.AddInt64(&e.queued, -1)
		return fmt.Errorf("avencoder: SendFrame: %w", err)
	}

	e.drainLocked(ptsUs)
	return nil
}

func (e *Encoder) ensureScalerLocked() error {
	if e.scaler != nil {
		return nil
	}
	ssc, err := astiav.CreateSoftwareScaleContext(
		e.cfg.Width, e.cfg.Height, astiav.PixelFormatBgra,
		e.cfg.Width, e.cfg.Height, astiav.PixelFormatYuv420P,
		astiav.NewSoftwareScaleContextFlags(),
	)
	if err != nil {
		return fmt.Errorf("avencoder: CreateSoftwareScaleContext: %w", err)
	}
	e.scaler = ssc
	return nil
}

// drainLocked reads every packet libavcodec currently has ready and
// invokes the chunk callback, in encode order. Caller holds e.mu.
func (e *Encoder) drainLocked(fallbackPtsUs int64) {
	for {
		pkt := astiav.AllocPacket()
		err := e.codecCtx.ReceivePacket(pkt)
		if err != nil {
			pkt.Free()
			return
		}

		data, derr := pkt.Data()
		var chunkData []byte
		if derr == nil {
			chunkData = append([]byte(nil), data...)
		}

		ptsUs := fallbackPtsUs
		if tb := e.codecCtx.TimeBase(); tb.Den() > 0 {
			ptsUs = pkt.Pts() * 1_000_000 * int64(tb.Num()) / int64(tb.Den())
		}

		chunk := model.EncodedChunk{
			Data:        chunkData,
			IsKey:       pkt.Flags().Has(astiav.PacketFlagKey),
			TimestampUs: ptsUs,
		}
		pkt.Unref()
		pkt.Free()

		atomic.AddInt64(&e.queued, -1)
		if e.cb != nil {
			e.cb(chunk)
		}
	}
}

// QueuedFrames returns the number of frames sent to libavcodec that
// have not yet produced (or been dropped in favor of) an output packet.
func (e *Encoder) QueuedFrames() int {
	return int(atomic.LoadInt64(&e.queued))
}

// Flush sends a nil frame to signal end-of-stream and drains remaining packets.
func (e *Encoder) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return nil
	}
	if err := e.codecCtx.SendFrame(nil); err != nil {
		return fmt.Errorf("avencoder: flush SendFrame(nil): %w", err)
	}
	e.drainLocked(0)
	return nil
}

// Close releases encoder resources. Safe to call more than once.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.yuvFrame != nil {
		e.yuvFrame.Free()
		e.yuvFrame = nil
	}
	if e.scaler != nil {
		e.scaler.Free()
		e.scaler = nil
	}
	if e.codecCtx != nil {
		e.codecCtx.Free()
		e.codecCtx = nil
	}
	return nil
}

func (e *Encoder) OnChunk(cb func(model.EncodedChunk)) {
	e.mu.Lock()
	e.cb = cb
	e.mu.Unlock()
}

func (e *Encoder) Config() encoder.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}
