// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import "testing"

func TestLifecycleMarkConnectedFromDisconnected(t *testing.T) {
	l := NewLifecycle()
	if !l.MarkConnected() {
		t.Fatalf("expected MarkConnected to succeed from Disconnected")
	}
	if l.Load() != Connected {
		t.Fatalf("got %v, want Connected", l.Load())
	}
}

func TestLifecycleMarkConnectedNoopWhenAlreadyConnected(t *testing.T) {
	l := NewLifecycle()
	l.MarkConnected()
	if l.MarkConnected() {
		t.Fatalf("expected second MarkConnected to be a no-op")
	}
}

func TestLifecycleMarkConnectedNoopWhenExiting(t *testing.T) {
	l := NewLifecycle()
	l.Store(Exiting)
	if l.MarkConnected() {
		t.Fatalf("expected MarkConnected to fail once Exiting")
	}
	if l.Load() != Exiting {
		t.Fatalf("got %v, want Exiting", l.Load())
	}
}

func TestLifecycleMarkDisconnectedFromConnected(t *testing.T) {
	l := NewLifecycle()
	l.MarkConnected()
	if !l.MarkDisconnected() {
		t.Fatalf("expected MarkDisconnected to succeed from Connected")
	}
	if l.Load() != Disconnected {
		t.Fatalf("got %v, want Disconnected", l.Load())
	}
}

func TestLifecycleMarkDisconnectedNeverOverwritesExiting(t *testing.T) {
	l := NewLifecycle()
	l.MarkConnected()
	l.Store(Exiting)
	if l.MarkDisconnected() {
		t.Fatalf("expected MarkDisconnected to fail once Exiting")
	}
	if l.Load() != Exiting {
		t.Fatalf("got %v, want Exiting", l.Load())
	}
}
