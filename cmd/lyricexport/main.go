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

// Command lyricexport drives one headless export session from the CLI:
// flags describe the ExportRequest, progress prints to stderr, and the
// process exits 0/1/130 per the terminal outcome.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/lyricexport/internal/config"
	"github.com/e1z0/lyricexport/internal/encoder"
	"github.com/e1z0/lyricexport/internal/encoder/avencoder"
	"github.com/e1z0/lyricexport/internal/mediatool/avtool"
	"github.com/e1z0/lyricexport/internal/model"
	"github.com/e1z0/lyricexport/internal/sceneiface"
	"github.com/e1z0/lyricexport/internal/sceneiface/solidrenderer"
	"github.com/e1z0/lyricexport/internal/session"
)

var (
	version string
	build   string
)

const app = "lyricexport"

func main() {
	os.Exit(run())
}

func run() int {
	debugFF := flag.Bool("debugstreams", false, "Debug libav internals")
	preset := flag.String("preset", "", "Named export preset from the presets file")
	presetsFile := flag.String("presets-file", "", "Path to a YAML presets file")
	sessionID := flag.String("session-id", "cli-export", "Export session identifier")
	fpsNum := flag.Int("fps-num", 30, "Frame rate numerator")
	fpsDen := flag.Int("fps-den", 1, "Frame rate denominator")
	width := flag.Int("width", 1920, "Output width, must be even")
	height := flag.Int("height", 1080, "Output height, must be even")
	startMs := flag.Int64("start-ms", 0, "Export range start, milliseconds")
	endMs := flag.Int64("end-ms", 1000, "Export range end, milliseconds")
	outputPath := flag.String("output", "", "Output MP4 path")
	audioPath := flag.String("audio", "", "Optional audio file, passed through")
	bgPath := flag.String("background", "", "Optional background video path")
	bgFit := flag.String("background-fit", "", "cover, contain, or stretch (cover when empty)")
	retainTemp := flag.Bool("retain-temp-on-failure", false, "Keep the temp session directory after a failure")
	flag.Parse()

	fmt.Fprintf(os.Stderr, "%s v%s (build %s)\n", app, version, build)

	if *debugFF {
		astiav.SetLogLevel(astiav.LogLevelDebug)
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmtStr, msg string) {
			var cs string
			if c != nil {
				if cl := c.Class(); cl != nil {
					cs = " - class: " + cl.String()
				}
			}
			fmt.Fprintf(os.Stderr, "ffmpeg log: %s%s - level: %d\n", strings.TrimSpace(msg), cs, l)
		})
	}

	env, err := config.ResolveEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "environment: %v\n", err)
		return 1
	}

	req := model.ExportRequest{
		SessionID:           *sessionID,
		FPSNum:               *fpsNum,
		FPSDen:               *fpsDen,
		Width:                *width,
		Height:               *height,
		StartMs:              *startMs,
		EndMs:                *endMs,
		OutputPath:           *outputPath,
		AudioPath:            *audioPath,
		BackgroundVideoPath:  *bgPath,
		BackgroundFitMode:    model.FitMode(*bgFit),
		RetainTempOnFailure:  *retainTemp,
	}

	if *presetsFile != "" && *preset != "" {
		pf, err := config.Load(*presetsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "presets: %v\n", err)
			return 1
		}
		_ = pf
		if p, ok := config.Find(*preset); ok {
			config.ApplyPreset(&req, p)
		} else {
			fmt.Fprintf(os.Stderr, "presets: unknown preset %q\n", *preset)
			return 1
		}
	}

	if req.OutputPath == "" {
		fmt.Fprintln(os.Stderr, "error: -output is required")
		return 1
	}

	mgr := session.NewManager(session.Deps{
		TempBase: env.TempBase,
		NewRenderer: func(req *model.ExportRequest) sceneiface.Renderer {
			// The real SceneRenderer (lyric layout, fonts, templates) is
			// an external collaborator (§6) outside this core; the CLI
			// wires the minimal solid-color renderer so the pipeline is
			// runnable standalone.
			return solidrenderer.New()
		},
		NewEncoder: func(req *model.ExportRequest) encoder.Encoder {
			return avencoder.New()
		},
		Tool:       avtool.New(),
		WatchPower: true,
	})

	done := make(chan session.TerminalResult, 1)
	id, err := mgr.Start(req, func(r session.TerminalResult) { done <- r })
	if err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		mgr.Cancel(id)
	}()

	events := mgr.Events(id)
	go func() {
		for ev := range events {
			fmt.Fprintf(os.Stderr, "\r%s: %.1f%% (overall %.1f%%)", ev.StepName, ev.StepProgress*100, ev.OverallProgress*100)
		}
	}()

	result := <-done
	fmt.Fprintln(os.Stderr)

	switch result.State {
	case model.Succeeded:
		fmt.Fprintf(os.Stderr, "done: %s\n", result.OutputPath)
		return 0
	case model.Cancelled:
		fmt.Fprintln(os.Stderr, "cancelled")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "failed: %v\n", result.Err)
		return 1
	}
}
