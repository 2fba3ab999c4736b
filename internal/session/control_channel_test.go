// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer aceita exatamente uma conexão, roda o handshake e entrega a
// conexão a fn para o teste dirigir.
func fakeServer(t *testing.T, fn func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}()

	return ln.Addr().String()
}

func handshakeOK(t *testing.T, conn net.Conn) {
	t.Helper()
	if _, err := conn.Write([]byte{protocol.ProtocolVersion}); err != nil {
		t.Errorf("server: write handshake version: %v", err)
		return
	}
	buf := make([]byte, 1)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Errorf("server: read handshake echo: %v", err)
		return
	}
	if _, err := conn.Write([]byte{protocol.ProtocolVersion}); err != nil {
		t.Errorf("server: write handshake final: %v", err)
	}
}

func TestControlChannelHandshakeSuccess(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		handshakeOK(t, conn)
		time.Sleep(200 * time.Millisecond)
	})

	lifecycle := NewLifecycle()
	cc := newControlChannel(addr, lifecycle, discardLogger())
	go cc.Run()
	defer cc.Stop()

	select {
	case <-cc.Reconnected():
	case <-time.After(time.Second):
		t.Fatalf("expected reconnected notification")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if lifecycle.Load() == Connected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("lifecycle never reached Connected, got %v", lifecycle.Load())
}

func TestControlChannelHandshakeVersionMismatch(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		conn.Write([]byte{0x13})
	})

	lifecycle := NewLifecycle()
	cc := newControlChannel(addr, lifecycle, discardLogger())
	go cc.Run()
	defer cc.Stop()

	time.Sleep(200 * time.Millisecond)
	if lifecycle.Load() != Disconnected {
		t.Fatalf("got %v, want Disconnected after version mismatch", lifecycle.Load())
	}
}

func TestControlChannelPingSuccess(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		handshakeOK(t, conn)
		op := make([]byte, 1)
		if _, err := io.ReadFull(conn, op); err != nil {
			return
		}
		if op[0] == protocol.OpPing {
			conn.Write([]byte{protocol.OpPong})
		}
		time.Sleep(200 * time.Millisecond)
	})

	lifecycle := NewLifecycle()
	cc := newControlChannel(addr, lifecycle, discardLogger())
	go cc.Run()
	defer cc.Stop()

	<-cc.Reconnected()

	req, reply := NewPingRequest()
	cc.Submit(req)

	select {
	case outcome := <-reply:
		if outcome != Pong {
			t.Fatalf("got %v, want Pong", outcome)
		}
	case <-time.After(time.Second):
		t.Fatalf("ping reply timed out")
	}
}

func TestControlChannelPingFailureMarksDisconnected(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		handshakeOK(t, conn)
		op := make([]byte, 1)
		io.ReadFull(conn, op)
		// Fecha no meio da resposta em vez de responder o pong.
	})

	lifecycle := NewLifecycle()
	cc := newControlChannel(addr, lifecycle, discardLogger())
	go cc.Run()
	defer cc.Stop()

	<-cc.Reconnected()

	req, reply := NewPingRequest()
	cc.Submit(req)

	select {
	case outcome := <-reply:
		if outcome != PingDisconnect {
			t.Fatalf("got %v, want PingDisconnect", outcome)
		}
	case <-time.After(time.Second):
		t.Fatalf("ping reply timed out")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if lifecycle.Load() == Disconnected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("lifecycle never returned to Disconnected after ping failure")
}

func TestControlChannelAttachSuccess(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		handshakeOK(t, conn)
		buf := make([]byte, protocol.AttachFrameSize)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		conn.Write([]byte{protocol.OpAttachConfigFound, protocol.OpAttachUserdataOkay, 0x00, 0x06, 0x00})
		time.Sleep(200 * time.Millisecond)
	})

	lifecycle := NewLifecycle()
	cc := newControlChannel(addr, lifecycle, discardLogger())
	go cc.Run()
	defer cc.Stop()

	<-cc.Reconnected()

	req, reply := NewAttachRequest(1234)
	cc.Submit(req)

	select {
	case outcome := <-reply:
		if !outcome.Ok || outcome.DeviceSlot != 6 || outcome.PadSlot != 0 {
			t.Fatalf("got %+v, want Ok device_slot=6 pad_slot=0", outcome)
		}
	case <-time.After(time.Second):
		t.Fatalf("attach reply timed out")
	}
}

func TestControlChannelAttachSoftFailureKeepsSocket(t *testing.T) {
	attached := make(chan struct{})
	addr := fakeServer(t, func(conn net.Conn) {
		handshakeOK(t, conn)
		buf := make([]byte, protocol.AttachFrameSize)
		io.ReadFull(conn, buf)
		conn.Write([]byte{protocol.OpAttachConfigNotFound, protocol.OpAttachUserdataBad, 0xFF, 0xFF, 0xFF})
		close(attached)

		op := make([]byte, 1)
		if _, err := io.ReadFull(conn, op); err != nil {
			return
		}
		if op[0] == protocol.OpPing {
			conn.Write([]byte{protocol.OpPong})
		}
	})

	lifecycle := NewLifecycle()
	cc := newControlChannel(addr, lifecycle, discardLogger())
	go cc.Run()
	defer cc.Stop()

	<-cc.Reconnected()

	req, reply := NewAttachRequest(1234)
	cc.Submit(req)
	<-reply
	<-attached

	// O socket precisa continuar utilizável depois de uma falha soft de attach.
	pingReq, pingReply := NewPingRequest()
	cc.Submit(pingReq)
	select {
	case outcome := <-pingReply:
		if outcome != Pong {
			t.Fatalf("got %v, want Pong (socket should survive a soft attach failure)", outcome)
		}
	case <-time.After(time.Second):
		t.Fatalf("ping after soft attach failure timed out")
	}
}
