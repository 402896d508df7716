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

package model

import "fmt"

// Kind is one of the error taxonomy kinds from spec §7. It is not a
// replacement for Go's error chain — ExportError wraps the underlying
// cause when there is one.
type Kind string

const (
	KindIO                 Kind = "io_error"
	KindBackgroundTooShort Kind = "background_too_short"
	KindEncoderUnsupported Kind = "encoder_unsupported"
	KindEncoderError       Kind = "encoder_error"
	KindMuxError           Kind = "mux_error"
	KindCancelled          Kind = "cancelled"
)

// ExportError is the single error type a session step reports. Every
// step succeeds, is cancelled, or fails with exactly one ExportError.
type ExportError struct {
	Kind Kind
	Step Step
	Msg  string
	Hint string // human-readable hint, e.g. a resolution suggestion
	Err  error  // wrapped cause, may be nil
}

func (e *ExportError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (step %s): %s (%s)", e.Kind, e.Step, e.Msg, e.Hint)
	}
	return fmt.Sprintf("%s (step %s): %s", e.Kind, e.Step, e.Msg)
}

func (e *ExportError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is (or wraps) an ExportError of KindCancelled.
func IsCancelled(err error) bool {
	var ee *ExportError
	if ok := asExportError(err, &ee); ok {
		return ee.Kind == KindCancelled
	}
	return false
}

func asExportError(err error, target **ExportError) bool {
	for err != nil {
		if ee, ok := err.(*ExportError); ok {
			*target = ee
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// NewIOError builds an IoError.
func NewIOError(step Step, msg string, cause error) *ExportError {
	return &ExportError{Kind: KindIO, Step: step, Msg: msg, Err: cause}
}

// NewBackgroundTooShort builds a BackgroundTooShort error with expected/actual counts.
func NewBackgroundTooShort(actual, expected int) *ExportError {
	return &ExportError{
		Kind: KindBackgroundTooShort,
		Step: StepBackgroundPrep,
		Msg:  fmt.Sprintf("background video produced %d frames, expected %d", actual, expected),
	}
}

// NewEncoderUnsupported builds an EncoderUnsupported error, listing the tried configs.
func NewEncoderUnsupported(tried []string, hint string) *ExportError {
	return &ExportError{
		Kind: KindEncoderUnsupported,
		Step: StepEncoding,
		Msg:  fmt.Sprintf("no candidate encoder configuration accepted, tried: %v", tried),
		Hint: hint,
	}
}

// NewEncoderError builds a runtime EncoderError.
func NewEncoderError(msg string, cause error) *ExportError {
	return &ExportError{Kind: KindEncoderError, Step: StepEncoding, Msg: msg, Err: cause}
}

// NewMuxError builds a MuxError carrying the captured diagnostic tail and args.
func NewMuxError(msg string, diagnosticTail string, args []string, cause error) *ExportError {
	return &ExportError{
		Kind: KindMuxError,
		Step: StepMuxing,
		Msg:  fmt.Sprintf("%s; args=%v; diagnostics:\n%s", msg, args, diagnosticTail),
		Err:  cause,
	}
}

// NewCancelled builds a Cancelled pseudo-error for a given step.
func NewCancelled(step Step) *ExportError {
	return &ExportError{Kind: KindCancelled, Step: step, Msg: "cancelled"}
}
