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

// Package session exposes the Session API (spec §6): start an export,
// cancel it, subscribe to its progress stream, and be notified on its
// terminal outcome. It owns the in-memory session registry and
// orchestrates BackgroundPrep, LockstepDriver and Muxer in sequence.
package session

import (
	"context"
	"log"
	"sync"

	"github.com/e1z0/lyricexport/internal/bgprep"
	"github.com/e1z0/lyricexport/internal/driver"
	"github.com/e1z0/lyricexport/internal/encoder"
	"github.com/e1z0/lyricexport/internal/mediatool"
	"github.com/e1z0/lyricexport/internal/model"
	"github.com/e1z0/lyricexport/internal/mux"
	"github.com/e1z0/lyricexport/internal/power"
	"github.com/e1z0/lyricexport/internal/progress"
	"github.com/e1z0/lyricexport/internal/sceneiface"
	"github.com/e1z0/lyricexport/internal/tempsession"
)

// Deps are the capability factories a Manager wires into every session
// it starts. A fresh Encoder and Renderer are required per session
// (spec §5: a VideoEncoder is owned by one driver for one session).
type Deps struct {
	TempBase       string
	NewRenderer    func(req *model.ExportRequest) sceneiface.Renderer
	NewEncoder     func(req *model.ExportRequest) encoder.Encoder
	Tool           mediatool.Tool
	WatchPower     bool // darwin-only; false elsewhere is harmless
}

// TerminalResult is passed to a session's terminal callback.
type TerminalResult struct {
	State      model.SessionState
	OutputPath string // set only on Succeeded
	Err        error  // set on Failed and Cancelled; nil on Succeeded
}

// handle is the registry's bookkeeping for one in-flight or finished session.
type handle struct {
	mu     sync.Mutex
	state  model.SessionState
	cancel context.CancelFunc
	agg    *progress.Aggregator
	onDone func(TerminalResult)
}

// Manager is the in-memory session registry. One Manager serves any
// number of concurrent, independent sessions.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*handle
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*handle)}
}

// Start validates req, registers the session, and runs the pipeline in
// a background goroutine. It returns immediately with req.SessionID.
func (m *Manager) Start(req model.ExportRequest, onDone func(TerminalResult)) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	if _, exists := m.sessions[req.SessionID]; exists {
		m.mu.Unlock()
		return "", &model.ExportError{Kind: model.KindIO, Step: model.StepBackgroundPrep, Msg: "session_id already in use: " + req.SessionID}
	}
	ctx, cancel := context.WithCancel(context.Background())
	agg := progress.NewAggregator(req.SessionID, progress.Weights{HasBackground: req.HasBackground()}, 64)
	h := &handle{state: model.Idle, cancel: cancel, agg: agg, onDone: onDone}
	m.sessions[req.SessionID] = h
	m.mu.Unlock()

	go m.run(ctx, h, req)
	return req.SessionID, nil
}

// Cancel requests cooperative cancellation of an in-flight session.
// A no-op if the session is already terminal or unknown.
func (m *Manager) Cancel(sessionID string) {
	m.mu.Lock()
	h, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	h.mu.Lock()
	terminal := h.state.IsTerminal()
	h.mu.Unlock()
	if !terminal {
		h.cancel()
	}
}

// Events returns the progress channel for sessionID, or nil if unknown.
func (m *Manager) Events(sessionID string) <-chan model.ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	return h.agg.Events()
}

func (m *Manager) setState(h *handle, s model.SessionState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, h *handle, req model.ExportRequest) {
	var watcher *power.Watcher
	if m.deps.WatchPower {
		watcher = power.New()
		defer watcher.Stop()
		go func() {
			for range watcher.Events() {
				// Logged by the watcher itself; the session doesn't
				// need to act on sleep/wake beyond the log trail it
				// leaves for diagnosing an apparent encoder stall.
			}
		}()
	}

	result := m.runPipeline(ctx, h, &req)

	h.mu.Lock()
	h.state = result.State
	onDone := h.onDone
	h.mu.Unlock()

	if result.State == model.Succeeded {
		h.agg.ReportDone()
	}
	h.agg.Close()

	if onDone != nil {
		onDone(result)
	}
}

func (m *Manager) runPipeline(ctx context.Context, h *handle, req *model.ExportRequest) TerminalResult {
	sess, err := tempsession.Create(m.deps.TempBase, req.SessionID)
	if err != nil {
		return TerminalResult{State: model.Failed, Err: err}
	}

	cleanup := func(failed bool) {
		if failed && req.RetainTempOnFailure {
			log.Printf("session %s: retaining temp dir %s for debugging", req.SessionID, sess.Dir())
			return
		}
		sess.Cleanup()
	}

	tl := model.NewTimeline(req)

	m.setState(h, model.PreparingBg)
	h.agg.BeginStep(model.StepBackgroundPrep)
	bgIndex, err := bgprep.Prepare(ctx, req, tl, sess, m.deps.Tool, func(p float64) {
		h.agg.Report(model.StepBackgroundPrep, "preparing_background", p)
	})
	if err != nil {
		cleanup(true)
		return terminalFromErr(err)
	}

	renderer := m.deps.NewRenderer(req)
	enc := m.deps.NewEncoder(req)

	m.setState(h, model.Encoding)
	h.agg.BeginStep(model.StepEncoding)
	err = driver.Run(ctx, req, tl, bgIndex, sess, renderer, enc, func(p float64) {
		h.agg.Report(model.StepEncoding, "encoding", p)
	})
	if err != nil {
		cleanup(true)
		return terminalFromErr(err)
	}

	m.setState(h, model.Muxing)
	h.agg.BeginStep(model.StepMuxing)
	err = mux.Mux(ctx, req, sess, m.deps.Tool, enc.Config().CFRTimestamped, func(p float64) {
		h.agg.Report(model.StepMuxing, "muxing", p)
	})
	if err != nil {
		cleanup(true)
		return terminalFromErr(err)
	}

	cleanup(false)
	return TerminalResult{State: model.Succeeded, OutputPath: req.OutputPath}
}

func terminalFromErr(err error) TerminalResult {
	if model.IsCancelled(err) {
		return TerminalResult{State: model.Cancelled, Err: err}
	}
	return TerminalResult{State: model.Failed, Err: err}
}
