/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * lyricexport
 * Copyright (C) 2026 lyricexport contributors
 */

package mux

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/e1z0/lyricexport/internal/mediatool"
	"github.com/e1z0/lyricexport/internal/mediatool/stubtool"
	"github.com/e1z0/lyricexport/internal/model"
	"github.com/e1z0/lyricexport/internal/tempsession"
)

func newSession(t *testing.T) *tempsession.Session {
	t.Helper()
	sess, err := tempsession.Create(t.TempDir(), "mux-test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(sess.Cleanup)
	return sess
}

func TestMuxSucceedsAndWritesOutput(t *testing.T) {
	sess := newSession(t)
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 4, Height: 4,
		StartMs: 0, EndMs: 1000, OutputPath: sess.Dir() + "/final.mp4",
	}
	tool := stubtool.New()

	var lastProgress float64
	err := Mux(context.Background(), &req, sess, tool, true, func(p float64) { lastProgress = p })
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}
	if lastProgress != 1 {
		t.Fatalf("last progress = %v, want 1", lastProgress)
	}
	if _, err := os.Stat(req.OutputPath); err != nil {
		t.Fatalf("output missing: %v", err)
	}

	calls := tool.MuxCalls()
	if len(calls) != 1 {
		t.Fatalf("got %d mux calls, want 1", len(calls))
	}
	if !calls[0].StreamCopy {
		t.Fatal("expected StreamCopy=true on first attempt when encoder reported CFR")
	}
}

func TestMuxFallsBackToReencodeOnStreamCopyFailure(t *testing.T) {
	sess := newSession(t)
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 4, Height: 4,
		StartMs: 0, EndMs: 1000, OutputPath: sess.Dir() + "/final.mp4",
	}
	tool := &failOnceTool{failOn: true}

	err := Mux(context.Background(), &req, sess, tool, true, nil)
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}
	if len(tool.calls) != 2 {
		t.Fatalf("got %d calls, want 2 (stream-copy attempt then re-encode)", len(tool.calls))
	}
	if !tool.calls[0].StreamCopy {
		t.Fatal("first call should have requested stream copy")
	}
	if tool.calls[1].StreamCopy {
		t.Fatal("second call should have requested re-encode")
	}
}

func TestMuxFailsWithMuxErrorWhenBothAttemptsFail(t *testing.T) {
	sess := newSession(t)
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 4, Height: 4,
		StartMs: 0, EndMs: 1000, OutputPath: sess.Dir() + "/final.mp4",
	}
	tool := &failOnceTool{failOn: true, failAlways: true}

	err := Mux(context.Background(), &req, sess, tool, true, nil)
	if err == nil {
		t.Fatal("expected MuxError")
	}
	ee, ok := err.(*model.ExportError)
	if !ok || ee.Kind != model.KindMuxError {
		t.Fatalf("got %v, want MuxError", err)
	}
}

type failOnceTool struct {
	failOn     bool
	failAlways bool
	calls      []mediatool.MuxRequest
}

func (f *failOnceTool) ExtractFrames(ctx context.Context, req mediatool.ExtractRequest, onProgress func(mediatool.Heartbeat)) (mediatool.ExtractResult, error) {
	return mediatool.ExtractResult{}, nil
}

func (f *failOnceTool) MuxH264(ctx context.Context, req mediatool.MuxRequest, onProgress func(mediatool.Heartbeat)) error {
	f.calls = append(f.calls, req)
	if req.StreamCopy && f.failOn {
		return errors.New("stream copy rejected by container")
	}
	if f.failAlways {
		return errors.New("re-encode also failed")
	}
	return os.WriteFile(req.OutputPath, []byte("mp4"), 0o644)
}
