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

// Package ui is a thin miqt progress dialog for one export session: a
// progress bar, a status label, and a Cancel button. It owns no export
// logic — it only renders ProgressEvent and forwards the Cancel click.
// UI is out-of-scope periphery around the core; this wrapper stays as
// small as the teacher's own CallOnQtMain-wrapped widgets.
package ui

import (
	"fmt"

	"github.com/mappu/miqt/qt"
	"github.com/mappu/miqt/qt/mainthread"

	"github.com/e1z0/lyricexport/internal/model"
)

// ProgressDialog shows one export session's progress.
type ProgressDialog struct {
	*qt.QDialog
	bar      *qt.QProgressBar
	status   *qt.QLabel
	cancelBtn *qt.QPushButton

	onCancel func()
}

// NewProgressDialog builds the dialog. parent may be nil.
func NewProgressDialog(parent *qt.QWidget, title string) *ProgressDialog {
	d := &ProgressDialog{QDialog: qt.NewQDialog(parent)}
	d.SetWindowTitle(title)

	layout := qt.NewQVBoxLayout(d.QWidget)

	d.status = qt.NewQLabel3("Preparing...")
	layout.AddWidget(d.status.QWidget)

	d.bar = qt.NewQProgressBar(nil)
	d.bar.SetRange(0, 1000)
	layout.AddWidget(d.bar.QWidget)

	d.cancelBtn = qt.NewQPushButton3("Cancel")
	d.cancelBtn.OnClicked(func() {
		if d.onCancel != nil {
			d.onCancel()
		}
	})
	layout.AddWidget(d.cancelBtn.QWidget)

	return d
}

// OnCancel registers the callback invoked when the user clicks Cancel.
func (d *ProgressDialog) OnCancel(fn func()) { d.onCancel = fn }

// Apply renders one ProgressEvent. Safe to call from any goroutine; the
// actual widget mutation is marshaled onto the Qt main thread.
func (d *ProgressDialog) Apply(ev model.ProgressEvent) {
	mainthread.Wait(func() {
		d.bar.SetValue(int(ev.OverallProgress * 1000))
		eta := ""
		if ev.ETASeconds != nil {
			eta = fmt.Sprintf(", ETA %.0fs", *ev.ETASeconds)
		}
		d.status.SetText(fmt.Sprintf("%s: %.0f%%%s", ev.StepName, ev.StepProgress*100, eta))
	})
}

// ShowTerminal marks the dialog's final state: success or failure.
func (d *ProgressDialog) ShowTerminal(success bool, message string) {
	mainthread.Wait(func() {
		if success {
			d.status.SetText("Done")
			d.bar.SetValue(1000)
		} else {
			d.status.SetText("Failed: " + message)
		}
		d.cancelBtn.SetEnabled(false)
	})
}
