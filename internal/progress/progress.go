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

// Package progress combines per-step progress into one monotone overall
// stream and computes a rough ETA, per spec §4.5.
package progress

import (
	"sync"
	"time"

	"github.com/e1z0/lyricexport/internal/model"
)

// band is the [start,end) slice of overall progress a step occupies.
type band struct {
	start, end float64
}

// Weights picks step bands given whether background prep runs at all.
type Weights struct {
	HasBackground bool
}

func (w Weights) bands() map[model.Step]band {
	if !w.HasBackground {
		return map[model.Step]band{
			model.StepEncoding: {0.00, 0.90},
			model.StepMuxing:   {0.90, 1.00},
		}
	}
	return map[model.Step]band{
		model.StepBackgroundPrep: {0.00, 0.10},
		model.StepEncoding:       {0.10, 0.90},
		model.StepMuxing:         {0.90, 1.00},
	}
}

// Aggregator emits ProgressEvent onto Events() for a single session.
// Safe for concurrent use by the three steps (one at a time, per spec's
// ordering guarantee) and by subscribers draining Events().
type Aggregator struct {
	sessionID string
	bands     map[model.Step]band
	out       chan model.ProgressEvent

	mu             sync.Mutex
	lastOverall    float64
	stepStartTime  time.Time
	currentStep    model.Step
	currentStepTot int // for ETA bookkeeping only
}

// NewAggregator creates an aggregator for sessionID with the given weighting.
// bufSize sizes the channel; callers should drain Events() promptly since a
// full buffer will block the reporting step.
func NewAggregator(sessionID string, w Weights, bufSize int) *Aggregator {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Aggregator{
		sessionID: sessionID,
		bands:     w.bands(),
		out:       make(chan model.ProgressEvent, bufSize),
	}
}

// Events returns the channel subscribers should drain.
func (a *Aggregator) Events() <-chan model.ProgressEvent { return a.out }

// Close closes the event channel. Call once, after the session reaches a terminal state.
func (a *Aggregator) Close() { close(a.out) }

// BeginStep resets ETA bookkeeping for a new step. Call when a step starts.
func (a *Aggregator) BeginStep(step model.Step) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentStep = step
	a.stepStartTime = time.Now()
}

// Report emits a progress event for the current step. stepProgress must be in [0,1].
func (a *Aggregator) Report(step model.Step, stepName string, stepProgress float64) {
	if stepProgress < 0 {
		stepProgress = 0
	}
	if stepProgress > 1 {
		stepProgress = 1
	}

	a.mu.Lock()
	b, ok := a.bands[step]
	if !ok {
		// Step is skipped entirely (e.g. no background) — nothing to report.
		a.mu.Unlock()
		return
	}
	overall := b.start + stepProgress*(b.end-b.start)
	if overall < a.lastOverall {
		overall = a.lastOverall // clamp regressions, enforce monotonicity
	}
	a.lastOverall = overall

	var eta *float64
	if stepProgress > 0 && stepProgress < 1 && !a.stepStartTime.IsZero() {
		elapsed := time.Since(a.stepStartTime).Seconds()
		e := elapsed * (1 - stepProgress) / stepProgress
		eta = &e
	}
	a.mu.Unlock()

	a.out <- model.ProgressEvent{
		SessionID:       a.sessionID,
		StepIndex:       step,
		StepCount:       3,
		StepName:        stepName,
		StepProgress:    stepProgress,
		OverallProgress: overall,
		ETASeconds:      eta,
	}
}

// ReportDone emits the final overall_progress == 1.0 event. Call exactly
// once, only when the session actually succeeds.
func (a *Aggregator) ReportDone() {
	a.mu.Lock()
	a.lastOverall = 1.0
	a.mu.Unlock()
	a.out <- model.ProgressEvent{
		SessionID:       a.sessionID,
		StepIndex:       model.StepMuxing,
		StepCount:       3,
		StepName:        "done",
		StepProgress:    1.0,
		OverallProgress: 1.0,
	}
}
