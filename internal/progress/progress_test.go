/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * lyricexport
 * Copyright (C) 2026 lyricexport contributors
 */

package progress

import (
	"testing"

	"github.com/e1z0/lyricexport/internal/model"
)

func drain(t *testing.T, a *Aggregator, n int) []model.ProgressEvent {
	t.Helper()
	var evs []model.ProgressEvent
	for i := 0; i < n; i++ {
		evs = append(evs, <-a.Events())
	}
	return evs
}

func TestBandsWithBackground(t *testing.T) {
	a := NewAggregator("s1", Weights{HasBackground: true}, 8)
	a.BeginStep(model.StepBackgroundPrep)
	a.Report(model.StepBackgroundPrep, "bg", 1.0)
	a.BeginStep(model.StepEncoding)
	a.Report(model.StepEncoding, "encode", 0.5)
	a.BeginStep(model.StepMuxing)
	a.Report(model.StepMuxing, "mux", 1.0)

	evs := drain(t, a, 3)
	if evs[0].OverallProgress != 0.10 {
		t.Errorf("bg done overall = %v, want 0.10", evs[0].OverallProgress)
	}
	if got := evs[1].OverallProgress; got < 0.10 || got > 0.90 {
		t.Errorf("encode 50%% overall = %v, want in [0.10,0.90]", got)
	}
	if evs[2].OverallProgress != 1.0 {
		t.Errorf("mux done overall = %v, want 1.0", evs[2].OverallProgress)
	}
}

func TestBandsWithoutBackground(t *testing.T) {
	a := NewAggregator("s2", Weights{HasBackground: false}, 8)
	a.BeginStep(model.StepBackgroundPrep)
	a.Report(model.StepBackgroundPrep, "bg", 1.0) // skipped step: no event
	a.BeginStep(model.StepEncoding)
	a.Report(model.StepEncoding, "encode", 1.0)

	ev := <-a.Events()
	if ev.OverallProgress != 0.90 {
		t.Errorf("encode done overall (no bg) = %v, want 0.90", ev.OverallProgress)
	}
}

func TestMonotoneClampOnRegression(t *testing.T) {
	a := NewAggregator("s3", Weights{HasBackground: false}, 8)
	a.BeginStep(model.StepEncoding)
	a.Report(model.StepEncoding, "encode", 0.8)
	a.Report(model.StepEncoding, "encode", 0.3) // a spurious regression must clamp
	evs := drain(t, a, 2)
	if evs[1].OverallProgress < evs[0].OverallProgress {
		t.Errorf("progress regressed: %v -> %v", evs[0].OverallProgress, evs[1].OverallProgress)
	}
}

func TestSkippedStepEmitsNothing(t *testing.T) {
	a := NewAggregator("s4", Weights{HasBackground: false}, 8)
	a.Report(model.StepBackgroundPrep, "bg", 0.5)
	select {
	case ev := <-a.Events():
		t.Fatalf("expected no event for skipped step, got %+v", ev)
	default:
	}
}
