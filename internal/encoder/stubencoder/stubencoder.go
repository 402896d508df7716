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

// Package stubencoder is a deterministic in-memory Encoder double for
// tests: it never shells out to libav, "encodes" a frame by hashing it
// into a fixed-size chunk on a background worker goroutine (so it has
// a real, controllable queue depth), and honors a configurable set of
// supported profiles so the driver's config-fallback negotiation can
// be exercised.
package stubencoder

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/e1z0/lyricexport/internal/encoder"
	"github.com/e1z0/lyricexport/internal/model"
)

type submission struct {
	frame    []byte
	ptsUs    int64
	keyFrame bool
}

// Stub is a deterministic Encoder with a real async worker queue.
// Pause/Resume let tests force a backlog and observe QueuedFrames grow,
// so the driver's backpressure wait can be exercised deterministically.
type Stub struct {
	SupportedProfiles map[encoder.Profile]bool

	mu           sync.Mutex
	cfg          encoder.Config
	cb           func(model.EncodedChunk)
	closed       bool
	queued       int // accepted, not yet emitted as a chunk
	submitsTotal int // accepted across the stub's whole lifetime
	lastPts      int64
	hasPts       bool

	queue    chan submission
	resumeCh chan struct{}
	paused   bool
	wg       sync.WaitGroup // worker goroutine lifetime
	pending  sync.WaitGroup // submissions accepted but not yet emitted
}

func New(supported ...encoder.Profile) *Stub {
	m := make(map[encoder.Profile]bool, len(supported))
	for _, p := range supported {
		m[p] = true
	}
	s := &Stub{
		SupportedProfiles: m,
		queue:             make(chan submission, 4096),
		resumeCh:          make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *Stub) worker() {
	defer s.wg.Done()
	for sub := range s.queue {
		s.mu.Lock()
		paused := s.paused
		resume := s.resumeCh
		s.mu.Unlock()
		if paused {
			<-resume
		}

		h := fnv.New64a()
		_, _ = h.Write(sub.frame)
		chunk := model.EncodedChunk{Data: h.Sum(nil), IsKey: sub.keyFrame, TimestampUs: sub.ptsUs}

		s.mu.Lock()
		cb := s.cb
		s.mu.Unlock()
		if cb != nil {
			cb(chunk)
		}

		s.mu.Lock()
		s.queued--
		s.mu.Unlock()
		s.pending.Done()
	}
}

// Pause halts the worker before it processes the next queued submission.
func (s *Stub) Pause() {
	s.mu.Lock()
	s.paused = true
	s.resumeCh = make(chan struct{})
	s.mu.Unlock()
}

// Resume lets the worker continue draining the queue.
func (s *Stub) Resume() {
	s.mu.Lock()
	s.paused = false
	close(s.resumeCh)
	s.mu.Unlock()
}

func (s *Stub) IsConfigSupported(cfg encoder.Config) bool {
	return s.SupportedProfiles[cfg.Profile]
}

func (s *Stub) Configure(cfg encoder.Config) error {
	if !s.IsConfigSupported(cfg) {
		return fmt.Errorf("stubencoder: profile %s not supported", cfg.Profile)
	}
	cfg.CFRTimestamped = true
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func (s *Stub) Submit(frame []byte, ptsUs int64, keyFrame bool) error {
	s.mu.Lock()
	if s.hasPts && ptsUs <= s.lastPts {
		s.mu.Unlock()
		return fmt.Errorf("stubencoder: pts not strictly increasing: %d after %d", ptsUs, s.lastPts)
	}
	s.lastPts = ptsUs
	s.hasPts = true
	s.queued++
	s.submitsTotal++
	s.mu.Unlock()
	s.pending.Add(1)

	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.queue <- submission{frame: cp, ptsUs: ptsUs, keyFrame: keyFrame}
	return nil
}

func (s *Stub) QueuedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued
}

func (s *Stub) Flush() error {
	s.Resume()
	s.pending.Wait()
	return nil
}

func (s *Stub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.queue)
	s.wg.Wait()
	return nil
}

func (s *Stub) OnChunk(cb func(model.EncodedChunk)) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

// SubmitTotal returns the number of successful Submit calls across the
// stub's lifetime, for tests asserting the one-to-one mapping invariant.
func (s *Stub) SubmitTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitsTotal
}

// Config returns the configuration committed by the last Configure call.
func (s *Stub) Config() encoder.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}
