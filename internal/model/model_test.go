/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * lyricexport
 * Copyright (C) 2026 lyricexport contributors
 */

package model

import "testing"

func TestTotalFramesBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		req      ExportRequest
		expected int
	}{
		{
			name:     "one second at 30fps",
			req:      ExportRequest{FPSNum: 30, FPSDen: 1, StartMs: 0, EndMs: 1000},
			expected: 30,
		},
		{
			name:     "one second at 60fps",
			req:      ExportRequest{FPSNum: 60, FPSDen: 1, StartMs: 0, EndMs: 1000},
			expected: 60,
		},
		{
			name:     "sub-frame duration still yields one frame",
			req:      ExportRequest{FPSNum: 30, FPSDen: 1, StartMs: 0, EndMs: 10},
			expected: 1,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.req.TotalFrames(); got != c.expected {
				t.Errorf("TotalFrames() = %d, want %d", got, c.expected)
			}
		})
	}
}

func TestTimelineIsPureFunctionOfInputs(t *testing.T) {
	req := &ExportRequest{FPSNum: 30, FPSDen: 1, StartMs: 500, EndMs: 1500, Width: 2, Height: 2, OutputPath: "x"}
	a := NewTimeline(req)
	b := NewTimeline(req)
	if a.Len() != b.Len() {
		t.Fatalf("Len mismatch: %d vs %d", a.Len(), b.Len())
	}
	for n := 0; n < a.Len(); n++ {
		if a.At(n) != b.At(n) {
			t.Fatalf("timeline[%d] differs between calls: %d vs %d", n, a.At(n), b.At(n))
		}
	}
}

func TestTimelineMonotone(t *testing.T) {
	req := &ExportRequest{FPSNum: 30000, FPSDen: 1001, StartMs: 0, EndMs: 2000, Width: 2, Height: 2, OutputPath: "x"}
	tl := NewTimeline(req)
	for n := 1; n < tl.Len(); n++ {
		if tl.At(n) < tl.At(n-1) {
			t.Fatalf("timeline not monotone at %d: %d -> %d", n, tl.At(n-1), tl.At(n))
		}
	}
}

func TestValidateRejectsOddDimensions(t *testing.T) {
	req := &ExportRequest{SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 641, Height: 480, StartMs: 0, EndMs: 1000, OutputPath: "out.mp4"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for odd width")
	}
}

func TestValidateRejectsBackwardsRange(t *testing.T) {
	req := &ExportRequest{SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 640, Height: 480, StartMs: 1000, EndMs: 1000, OutputPath: "out.mp4"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for end_ms == start_ms")
	}
}

func TestDtMicrosRounding(t *testing.T) {
	req := &ExportRequest{FPSNum: 30000, FPSDen: 1001}
	dt := req.DtMicros()
	if dt != 33367 {
		t.Errorf("DtMicros() = %d, want 33367", dt)
	}
}
