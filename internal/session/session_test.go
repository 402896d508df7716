/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * lyricexport
 * Copyright (C) 2026 lyricexport contributors
 */

package session

import (
	"os"
	"testing"
	"time"

	"github.com/e1z0/lyricexport/internal/encoder"
	"github.com/e1z0/lyricexport/internal/encoder/stubencoder"
	"github.com/e1z0/lyricexport/internal/mediatool/stubtool"
	"github.com/e1z0/lyricexport/internal/model"
	"github.com/e1z0/lyricexport/internal/sceneiface"
	"github.com/e1z0/lyricexport/internal/sceneiface/teststub"
)

func newDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		TempBase: t.TempDir(),
		NewRenderer: func(*model.ExportRequest) sceneiface.Renderer {
			return teststub.New()
		},
		NewEncoder: func(*model.ExportRequest) encoder.Encoder {
			return stubencoder.New(encoder.ProfileHighL40)
		},
		Tool:       stubtool.New(),
		WatchPower: false,
	}
}

func waitForDone(t *testing.T, done <-chan TerminalResult) TerminalResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal result")
		return TerminalResult{}
	}
}

func TestManagerRunsPipelineToSuccess(t *testing.T) {
	deps := newDeps(t)
	mgr := NewManager(deps)

	out := t.TempDir() + "/out.mp4"
	req := model.ExportRequest{
		SessionID: "sess-1", FPSNum: 30, FPSDen: 1, Width: 64, Height: 64,
		StartMs: 0, EndMs: 500, OutputPath: out,
	}

	done := make(chan TerminalResult, 1)
	var events []model.ProgressEvent
	id, err := mgr.Start(req, func(r TerminalResult) { done <- r })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id != req.SessionID {
		t.Fatalf("id = %q, want %q", id, req.SessionID)
	}

	evCh := mgr.Events(id)
	drained := make(chan struct{})
	go func() {
		for ev := range evCh {
			events = append(events, ev)
		}
		close(drained)
	}()

	result := waitForDone(t, done)
	<-drained

	if result.State != model.Succeeded {
		t.Fatalf("state = %v, want Succeeded (err=%v)", result.State, result.Err)
	}
	if result.OutputPath != out {
		t.Fatalf("OutputPath = %q, want %q", result.OutputPath, out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one progress event")
	}
	last := events[len(events)-1]
	if last.OverallProgress != 1 {
		t.Fatalf("last OverallProgress = %v, want 1", last.OverallProgress)
	}
}

func TestManagerRejectsDuplicateSessionID(t *testing.T) {
	deps := newDeps(t)
	mgr := NewManager(deps)

	req := model.ExportRequest{
		SessionID: "dup", FPSNum: 30, FPSDen: 1, Width: 64, Height: 64,
		StartMs: 0, EndMs: 500, OutputPath: t.TempDir() + "/out.mp4",
	}

	done1 := make(chan TerminalResult, 1)
	if _, err := mgr.Start(req, func(r TerminalResult) { done1 <- r }); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	req2 := req
	req2.OutputPath = t.TempDir() + "/out2.mp4"
	if _, err := mgr.Start(req2, func(TerminalResult) {}); err == nil {
		t.Fatal("expected duplicate session_id rejection")
	}

	waitForDone(t, done1)
}

func TestManagerCancelStopsInFlightSession(t *testing.T) {
	deps := newDeps(t)
	// A long enough timeline that Cancel reliably lands mid-encode.
	mgr := NewManager(deps)

	req := model.ExportRequest{
		SessionID: "cancel-me", FPSNum: 30, FPSDen: 1, Width: 64, Height: 64,
		StartMs: 0, EndMs: 20000, OutputPath: t.TempDir() + "/out.mp4",
	}

	done := make(chan TerminalResult, 1)
	id, err := mgr.Start(req, func(r TerminalResult) { done <- r })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	mgr.Cancel(id)
	result := waitForDone(t, done)

	if result.State != model.Cancelled {
		t.Fatalf("state = %v, want Cancelled (err=%v)", result.State, result.Err)
	}
	if !model.IsCancelled(result.Err) {
		t.Fatalf("Err = %v, want a Cancelled ExportError", result.Err)
	}
}

func TestManagerRetainsTempDirOnFailureWhenRequested(t *testing.T) {
	deps := newDeps(t)
	tool := stubtool.New()
	tool.FailExtract = os.ErrInvalid
	deps.Tool = tool
	mgr := NewManager(deps)

	req := model.ExportRequest{
		SessionID: "fail-retain", FPSNum: 30, FPSDen: 1, Width: 64, Height: 64,
		StartMs: 0, EndMs: 500, OutputPath: t.TempDir() + "/out.mp4",
		BackgroundVideoPath: "bg.mp4", RetainTempOnFailure: true,
	}

	done := make(chan TerminalResult, 1)
	if _, err := mgr.Start(req, func(r TerminalResult) { done <- r }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result := waitForDone(t, done)

	if result.State != model.Failed {
		t.Fatalf("state = %v, want Failed", result.State)
	}

	entries, err := os.ReadDir(deps.TempBase)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected the temp session directory to survive when RetainTempOnFailure is set")
	}
}
