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

// Package encoder declares the VideoEncoder capability (spec §6): a
// hardware or software H.264 encoder the driver feeds one frame at a
// time and drains via an encode-order chunk callback.
package encoder

import "github.com/e1z0/lyricexport/internal/model"

// Profile enumerates the H.264 profiles the driver negotiates, in
// the order spec §4.2 tries them.
type Profile string

const (
	ProfileHighL40 Profile = "high_l40" // H.264 High Profile @ Level 4.0
	ProfileHighL50 Profile = "high_l50" // H.264 High Profile @ Level 5.0
)

// Config is one candidate encoder configuration.
type Config struct {
	Profile    Profile
	Width      int
	Height     int
	FPSNum     int
	FPSDen     int
	GOPSize    int // keyframe interval in frames
	CRF        int // quality target, CRF-like scale
	BitrateBps int // 0 if CRF-driven

	// CFRTimestamped, once Configure succeeds, tells the muxer whether
	// this encoder's own output PTS stream is already strictly CFR —
	// the precondition for the muxer's optional stream-copy path.
	CFRTimestamped bool
}

// Encoder is the capability interface the driver and the muxer consume.
type Encoder interface {
	// IsConfigSupported reports whether cfg can be configured, without
	// side effects — used for the profile/level negotiation in §4.2.
	IsConfigSupported(cfg Config) bool

	// Configure commits to cfg. Must be called exactly once, after a
	// successful IsConfigSupported, before any Submit.
	Configure(cfg Config) error

	// Submit hands one pixel buffer to the encoder at ptsUs, flagging
	// whether it must be a keyframe. Returns once the frame has been
	// accepted into the encoder's internal queue (not necessarily
	// encoded yet) — callers read QueuedFrames to honor backpressure.
	Submit(frame []byte, ptsUs int64, keyFrame bool) error

	// QueuedFrames returns the number of frames accepted but not yet
	// emitted as chunks, for the driver's backpressure wait.
	QueuedFrames() int

	// Flush drains all in-flight frames, invoking OnChunk for each
	// remaining chunk before returning.
	Flush() error

	// Close releases encoder resources. Safe to call after Flush or
	// after an error; must not panic if called twice.
	Close() error

	// OnChunk registers the callback invoked, in encode order, for
	// every chunk the encoder produces (from Submit or Flush).
	OnChunk(cb func(model.EncodedChunk))

	// Config returns the configuration committed by the last successful
	// Configure call, including the CFRTimestamped bit the muxer reads
	// to decide whether stream-copy is safe to attempt.
	Config() Config
}
