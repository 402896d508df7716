/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * lyricexport
 * Copyright (C) 2026 lyricexport contributors
 */

package bgprep

import (
	"context"
	"os"
	"testing"

	"github.com/e1z0/lyricexport/internal/mediatool/stubtool"
	"github.com/e1z0/lyricexport/internal/model"
	"github.com/e1z0/lyricexport/internal/tempsession"
)

func newSession(t *testing.T) *tempsession.Session {
	t.Helper()
	base := t.TempDir()
	sess, err := tempsession.Create(base, "bgprep-test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(sess.Cleanup)
	return sess
}

func TestPrepareSkippedWithoutBackground(t *testing.T) {
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 64, Height: 64,
		StartMs: 0, EndMs: 1000, OutputPath: "out.mp4",
	}
	tl := model.NewTimeline(&req)
	sess := newSession(t)
	tool := stubtool.New()

	var progressCalls int
	idx, err := Prepare(context.Background(), &req, tl, sess, tool, func(float64) { progressCalls++ })
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if idx != nil {
		t.Fatal("expected nil Index when request has no background")
	}
	if progressCalls != 0 {
		t.Fatalf("expected no progress events when step is skipped, got %d", progressCalls)
	}
}

func TestPrepareSucceedsAndProducesFiles(t *testing.T) {
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 64, Height: 64,
		StartMs: 0, EndMs: 1000, OutputPath: "out.mp4",
		BackgroundVideoPath: "bg.mp4",
	}
	tl := model.NewTimeline(&req)
	total := tl.Len()
	sess := newSession(t)
	tool := &stubtool.Tool{FrameCount: total}

	var lastProgress float64
	idx, err := Prepare(context.Background(), &req, tl, sess, tool, func(p float64) { lastProgress = p })
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if idx == nil {
		t.Fatal("expected non-nil Index")
	}
	if lastProgress != 1 {
		t.Fatalf("last progress = %v, want 1", lastProgress)
	}
	for n := 0; n < total; n++ {
		if _, err := os.Stat(idx.Path(n)); err != nil {
			t.Fatalf("frame %d missing: %v", n, err)
		}
	}
}

func TestPrepareFailsWhenBackgroundTooShort(t *testing.T) {
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 64, Height: 64,
		StartMs: 0, EndMs: 1000, OutputPath: "out.mp4",
		BackgroundVideoPath: "bg.mp4",
	}
	tl := model.NewTimeline(&req)
	sess := newSession(t)
	tool := &stubtool.Tool{FrameCount: tl.Len() - 5}

	_, err := Prepare(context.Background(), &req, tl, sess, tool, nil)
	if err == nil {
		t.Fatal("expected BackgroundTooShort error")
	}
	var ee *model.ExportError
	if !asExportError(err, &ee) {
		t.Fatalf("expected *model.ExportError, got %T: %v", err, err)
	}
	if ee.Kind != model.KindBackgroundTooShort {
		t.Fatalf("Kind = %v, want %v", ee.Kind, model.KindBackgroundTooShort)
	}
}

func asExportError(err error, target **model.ExportError) bool {
	ee, ok := err.(*model.ExportError)
	if ok {
		*target = ee
	}
	return ok
}
