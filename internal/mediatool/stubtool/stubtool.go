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

// Package stubtool is a deterministic in-memory MediaTool double: it
// never shells out and never touches libav, so tests can assert exact
// heartbeat sequences and exact output bytes.
package stubtool

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/e1z0/lyricexport/internal/mediatool"
)

type Tool struct {
	// FrameCount is how many synthetic frames ExtractFrames reports.
	FrameCount int
	// SourceDuration is returned verbatim from ExtractFrames.
	SourceDuration float64
	// FailExtract, if non-nil, is returned by ExtractFrames instead of succeeding.
	FailExtract error
	// FailMux, if non-nil, is returned by MuxH264 instead of succeeding.
	FailMux error

	mu        sync.Mutex
	muxCalls  []mediatool.MuxRequest
	extractCalls []mediatool.ExtractRequest
}

func New() *Tool { return &Tool{} }

func (t *Tool) ExtractFrames(ctx context.Context, req mediatool.ExtractRequest, onProgress func(mediatool.Heartbeat)) (mediatool.ExtractResult, error) {
	t.mu.Lock()
	t.extractCalls = append(t.extractCalls, req)
	t.mu.Unlock()

	if t.FailExtract != nil {
		return mediatool.ExtractResult{}, t.FailExtract
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return mediatool.ExtractResult{}, err
	}
	for n := 0; n < t.FrameCount; n++ {
		select {
		case <-ctx.Done():
			return mediatool.ExtractResult{}, ctx.Err()
		default:
		}
		name := fmt.Sprintf("%s/bg_%06d.jpg", req.OutDir, n)
		if err := os.WriteFile(name, []byte{0xFF, 0xD8, byte(n), 0xFF, 0xD9}, 0o644); err != nil {
			return mediatool.ExtractResult{}, err
		}
		if onProgress != nil {
			onProgress(mediatool.Heartbeat{ProcessedUnits: n + 1, TotalUnits: t.FrameCount})
		}
	}
	return mediatool.ExtractResult{FrameCount: t.FrameCount, SourceDuration: t.SourceDuration}, nil
}

func (t *Tool) MuxH264(ctx context.Context, req mediatool.MuxRequest, onProgress func(mediatool.Heartbeat)) error {
	t.mu.Lock()
	t.muxCalls = append(t.muxCalls, req)
	t.mu.Unlock()

	if t.FailMux != nil {
		return t.FailMux
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if onProgress != nil {
		onProgress(mediatool.Heartbeat{ProcessedUnits: 1, TotalUnits: 1, FractionDone: 1})
	}
	return os.WriteFile(req.OutputPath, []byte("stub-mp4"), 0o644)
}

// MuxCalls returns every MuxH264 request received, for tests asserting
// the muxer wired StreamCopy correctly.
func (t *Tool) MuxCalls() []mediatool.MuxRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]mediatool.MuxRequest(nil), t.muxCalls...)
}

// ExtractCalls returns every ExtractFrames request received.
func (t *Tool) ExtractCalls() []mediatool.ExtractRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]mediatool.ExtractRequest(nil), t.extractCalls...)
}
