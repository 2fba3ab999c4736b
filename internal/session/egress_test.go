// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import (
	"net"
	"testing"
	"time"
)

func TestEgressWorkerForwardsFrame(t *testing.T) {
	// O receptor faz o papel do host remoto; o bind local do Egress usa uma
	// porta efêmera para não colidir com ele no mesmo loopback.
	recvConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to bind test receiver: %v", err)
	}
	defer recvConn.Close()

	lifecycle := NewLifecycle()
	lifecycle.MarkConnected()

	e, err := newEgressWorker(recvConn.LocalAddr().String(), 0, lifecycle, discardLogger())
	if err != nil {
		t.Fatalf("newEgressWorker: %v", err)
	}
	go e.Run()
	defer e.Stop()

	payload := []byte{0x03, 0x01}
	if !e.Send(payload, time.Second) {
		t.Fatalf("Send reported failure")
	}

	buf := make([]byte, 64)
	recvConn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := recvConn.Read(buf)
	if err != nil {
		t.Fatalf("did not receive forwarded datagram: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("got %v, want %v", buf[:n], payload)
	}
}

func TestEgressWorkerSendTimesOutWhenStopped(t *testing.T) {
	lifecycle := NewLifecycle()
	e, err := newEgressWorker("127.0.0.1:0", 0, lifecycle, discardLogger())
	if err != nil {
		t.Fatalf("newEgressWorker: %v", err)
	}
	e.Stop()

	if e.Send([]byte{0x01}, 50*time.Millisecond) {
		t.Fatalf("expected Send to fail once the worker is stopped")
	}
}
