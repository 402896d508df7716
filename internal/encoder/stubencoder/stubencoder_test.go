/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * lyricexport
 * Copyright (C) 2026 lyricexport contributors
 */

package stubencoder

import (
	"testing"
	"time"

	"github.com/e1z0/lyricexport/internal/encoder"
	"github.com/e1z0/lyricexport/internal/model"
)

func TestConfigFallback(t *testing.T) {
	s := New(encoder.ProfileHighL50)
	if s.IsConfigSupported(encoder.Config{Profile: encoder.ProfileHighL40}) {
		t.Fatal("L40 should not be supported by this stub")
	}
	if !s.IsConfigSupported(encoder.Config{Profile: encoder.ProfileHighL50}) {
		t.Fatal("L50 should be supported")
	}
	if err := s.Configure(encoder.Config{Profile: encoder.ProfileHighL50}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
}

func TestSubmitRejectsNonIncreasingPts(t *testing.T) {
	s := New(encoder.ProfileHighL40)
	_ = s.Configure(encoder.Config{Profile: encoder.ProfileHighL40})
	if err := s.Submit([]byte{1, 2, 3}, 1000, true); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := s.Submit([]byte{1, 2, 3}, 1000, false); err == nil {
		t.Fatal("expected error for non-increasing pts")
	}
}

func TestBackpressureQueueGrowsWhilePaused(t *testing.T) {
	s := New(encoder.ProfileHighL40)
	_ = s.Configure(encoder.Config{Profile: encoder.ProfileHighL40})
	var chunks []model.EncodedChunk
	s.OnChunk(func(c model.EncodedChunk) { chunks = append(chunks, c) })

	s.Pause()
	for n := 0; n < 5; n++ {
		if err := s.Submit([]byte{byte(n)}, int64(n+1)*1000, false); err != nil {
			t.Fatalf("submit %d: %v", n, err)
		}
	}
	// give the worker a moment to reach the pause point
	time.Sleep(20 * time.Millisecond)
	if got := s.QueuedFrames(); got != 5 {
		t.Fatalf("QueuedFrames() = %d, want 5 while paused", got)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := s.QueuedFrames(); got != 0 {
		t.Fatalf("QueuedFrames() = %d, want 0 after flush", got)
	}
	if len(chunks) != 5 {
		t.Fatalf("got %d chunks, want 5", len(chunks))
	}
	if s.SubmitTotal() != 5 {
		t.Fatalf("SubmitTotal() = %d, want 5", s.SubmitTotal())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(encoder.ProfileHighL40)
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
