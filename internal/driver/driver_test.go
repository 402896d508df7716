/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * lyricexport
 * Copyright (C) 2026 lyricexport contributors
 */

package driver

import (
	"context"
	"os"
	"testing"

	"github.com/e1z0/lyricexport/internal/encoder"
	"github.com/e1z0/lyricexport/internal/encoder/stubencoder"
	"github.com/e1z0/lyricexport/internal/model"
	"github.com/e1z0/lyricexport/internal/sceneiface/teststub"
	"github.com/e1z0/lyricexport/internal/tempsession"
)

func newSession(t *testing.T) *tempsession.Session {
	t.Helper()
	sess, err := tempsession.Create(t.TempDir(), "driver-test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(sess.Cleanup)
	return sess
}

func TestRunSubmitsExactlyTotalFramesInOrder(t *testing.T) {
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 4, Height: 4,
		StartMs: 0, EndMs: 1000, OutputPath: "out.mp4",
	}
	tl := model.NewTimeline(&req)
	sess := newSession(t)
	renderer := teststub.New()
	enc := stubencoder.New(encoder.ProfileHighL40)

	var stepProgress []float64
	err := Run(context.Background(), &req, tl, nil, sess, renderer, enc, func(p float64) {
		stepProgress = append(stepProgress, p)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := enc.SubmitTotal(); got != tl.Len() {
		t.Fatalf("SubmitTotal() = %d, want %d", got, tl.Len())
	}
	if got := len(stepProgress); got != tl.Len() {
		t.Fatalf("got %d progress events, want %d", got, tl.Len())
	}
	if stepProgress[len(stepProgress)-1] != 1 {
		t.Fatalf("last step progress = %v, want 1", stepProgress[len(stepProgress)-1])
	}

	info, err := os.Stat(sess.H264Path())
	if err != nil {
		t.Fatalf("h264 file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("h264 file is empty")
	}
}

func TestRunFailsFastWhenNoConfigSupported(t *testing.T) {
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 4, Height: 4,
		StartMs: 0, EndMs: 1000, OutputPath: "out.mp4",
	}
	tl := model.NewTimeline(&req)
	sess := newSession(t)
	renderer := teststub.New()
	enc := stubencoder.New() // supports nothing

	err := Run(context.Background(), &req, tl, nil, sess, renderer, enc, nil)
	if err == nil {
		t.Fatal("expected EncoderUnsupported error")
	}
	ee, ok := err.(*model.ExportError)
	if !ok || ee.Kind != model.KindEncoderUnsupported {
		t.Fatalf("got %v, want EncoderUnsupported", err)
	}
}

func TestRunRespectsCancellation(t *testing.T) {
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 30, FPSDen: 1, Width: 4, Height: 4,
		StartMs: 0, EndMs: 2000, OutputPath: "out.mp4",
	}
	tl := model.NewTimeline(&req)
	sess := newSession(t)
	renderer := teststub.New()
	enc := stubencoder.New(encoder.ProfileHighL40)

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := Run(ctx, &req, tl, nil, sess, renderer, enc, func(p float64) {
		n++
		if n == 5 {
			cancel()
		}
	})
	if err == nil {
		t.Fatal("expected Cancelled error")
	}
	if !model.IsCancelled(err) {
		t.Fatalf("got %v, want Cancelled", err)
	}
	if enc.SubmitTotal() >= tl.Len() {
		t.Fatalf("SubmitTotal() = %d, expected fewer than %d after cancellation", enc.SubmitTotal(), tl.Len())
	}
}

func TestRunKeyFrameCadence(t *testing.T) {
	req := model.ExportRequest{
		SessionID: "s", FPSNum: 10, FPSDen: 1, Width: 4, Height: 4,
		StartMs: 0, EndMs: 3000, OutputPath: "out.mp4",
	}
	tl := model.NewTimeline(&req)
	sess := newSession(t)
	renderer := teststub.New()
	enc := &keyRecorder{Stub: stubencoder.New(encoder.ProfileHighL40)}

	if err := Run(context.Background(), &req, tl, nil, sess, renderer, enc, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	keys := enc.keys
	if len(keys) != tl.Len() {
		t.Fatalf("got %d chunks, want %d", len(keys), tl.Len())
	}
	gop := 2 * req.FPSNum / req.FPSDen
	for n, isKey := range keys {
		want := n%gop == 0
		if isKey != want {
			t.Fatalf("frame %d: IsKey = %v, want %v (GOP=%d)", n, isKey, want, gop)
		}
	}
}

// keyRecorder records every chunk's key flag while still forwarding the
// chunk to the callback Run installs for its H.264 sink.
type keyRecorder struct {
	*stubencoder.Stub
	keys []bool
}

func (k *keyRecorder) OnChunk(cb func(model.EncodedChunk)) {
	k.Stub.OnChunk(func(c model.EncodedChunk) {
		k.keys = append(k.keys, c.IsKey)
		cb(c)
	})
}
