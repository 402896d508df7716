//go:build darwin
// +build darwin

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

// Package power watches for system sleep/wake during an export. On
// darwin, a sleep mid-export stalls the encoder's worker threads for
// however long the machine was asleep; the driver can't tell that
// apart from a hung encoder, so this reports it as context instead of
// letting a stall surface as an unexplained EncoderError.
package power

import (
	"log"

	"github.com/prashantgupta24/mac-sleep-notifier/notifier"
)

// Watcher observes sleep/wake transitions for the lifetime of one export.
type Watcher struct {
	stopCh chan struct{}
	events chan Event
}

// Event describes one observed transition.
type Event struct {
	Type EventType
}

type EventType int

const (
	EventAwake EventType = iota
	EventSleep
)

// New starts observing sleep/wake notifications. Call Stop when the
// export session reaches a terminal state.
func New() *Watcher {
	w := &Watcher{
		stopCh: make(chan struct{}),
		events: make(chan Event, 8),
	}
	go w.run()
	return w
}

func (w *Watcher) run() {
	notifierCh := notifier.GetInstance().Start()
	for {
		select {
		case <-w.stopCh:
			return
		case activity := <-notifierCh:
			switch activity.Type {
			case notifier.Awake:
				log.Println("power: machine awake, encoder stall window may have just ended")
				w.events <- Event{Type: EventAwake}
			case notifier.Sleep:
				log.Println("power: machine sleeping, export will stall until wake")
				w.events <- Event{Type: EventSleep}
			}
		}
	}
}

// Events returns the channel of observed sleep/wake transitions.
func (w *Watcher) Events() <-chan Event { return w.events }

// Stop ends observation. Safe to call once.
func (w *Watcher) Stop() {
	close(w.stopCh)
}
