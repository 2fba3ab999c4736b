// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"testing"
)

func TestWriteAttach(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAttach(&buf, 1234); err != nil {
		t.Fatalf("WriteAttach: %v", err)
	}

	want := []byte{0x01, 0x00, 0x00, 0x04, 0xD2, 0x73, 0x31, 0x13, 0x37}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}

func TestWriteAttachIdempotent(t *testing.T) {
	var a, b bytes.Buffer
	WriteAttach(&a, 42)
	WriteAttach(&a, 42)
	WriteAttach(&b, 42)

	if !bytes.Equal(a.Bytes()[:AttachFrameSize], b.Bytes()) {
		t.Fatalf("two consecutive Attach(42) frames differ")
	}
	if !bytes.Equal(a.Bytes()[:AttachFrameSize], a.Bytes()[AttachFrameSize:]) {
		t.Fatalf("two consecutive Attach(42) frames differ on the same writer")
	}
}

func TestWriteDetachIdempotent(t *testing.T) {
	var buf bytes.Buffer
	WriteDetach(&buf, 7)
	WriteDetach(&buf, 7)

	first := buf.Bytes()[:DetachFrameSize]
	second := buf.Bytes()[DetachFrameSize:]
	if !bytes.Equal(first, second) {
		t.Fatalf("two consecutive Detach(7) frames differ: % X vs % X", first, second)
	}
}

func TestReadAttachResponse(t *testing.T) {
	// resposta do server a um Attach: device_slot=6, pad_slot=0
	wire := []byte{OpAttachConfigFound, OpAttachUserdataOkay, 0x00, 0x06, 0x00}
	resp, err := ReadAttachResponse(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("ReadAttachResponse: %v", err)
	}
	if resp.DeviceSlot != 6 || resp.PadSlot != 0 {
		t.Fatalf("got device_slot=%d pad_slot=%d, want 6/0", resp.DeviceSlot, resp.PadSlot)
	}
	if !resp.Ok() {
		t.Fatalf("expected Ok() to be true for non-negative slots")
	}
}

func TestAttachResponseNegativeSlotsAreSoftFailure(t *testing.T) {
	wire := []byte{OpAttachConfigNotFound, OpAttachUserdataBad, 0xFF, 0xFF, 0xFF}
	resp, err := ReadAttachResponse(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("ReadAttachResponse: %v", err)
	}
	if resp.Ok() {
		t.Fatalf("expected Ok() to be false, device_slot=%d pad_slot=%d", resp.DeviceSlot, resp.PadSlot)
	}
}

func TestReadRumbleStart(t *testing.T) {
	wire := []byte{0x01, 0x00, 0x00, 0x04, 0xD2, 0x01}
	f, err := ReadRumble(wire)
	if err != nil {
		t.Fatalf("ReadRumble: %v", err)
	}
	if f.Handle != 1234 || !f.Start {
		t.Fatalf("got handle=%d start=%v, want 1234/true", f.Handle, f.Start)
	}
}

func TestReadRumbleStopOnAnyOtherDiscriminator(t *testing.T) {
	for _, discriminator := range []byte{0x00, 0x02, 0xFF} {
		wire := []byte{0x01, 0x00, 0x00, 0x04, 0xD2, discriminator}
		f, err := ReadRumble(wire)
		if err != nil {
			t.Fatalf("ReadRumble(discriminator=0x%02x): %v", discriminator, err)
		}
		if f.Start {
			t.Fatalf("discriminator 0x%02x should decode to Stop", discriminator)
		}
	}
}

func TestReadRumbleTruncated(t *testing.T) {
	if _, err := ReadRumble([]byte{0x01, 0x00, 0x00}); err != ErrTruncatedFrame {
		t.Fatalf("got %v, want ErrTruncatedFrame", err)
	}
}

func TestEncodeDataSingleController(t *testing.T) {
	// handle 1234, device_slot 6, pad_slot 0, sticks centrados e nenhum
	// botão pressionado -> palavra de estado 80 80 80 80 00 00 00 00.
	sample := ControllerSample{
		Handle:     1234,
		DeviceSlot: 6,
		PadSlot:    0,
		State:      [8]byte{0x80, 0x80, 0x80, 0x80, 0x00, 0x00, 0x00, 0x00},
	}

	got := EncodeData([]ControllerSample{sample})
	want := []byte{0x03, 0x01, 0x00, 0x00, 0x04, 0xD2, 0x00, 0x06, 0x00, 0x08, 0x80, 0x80, 0x80, 0x80, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

func TestEncodeDataTruncatesAbove255(t *testing.T) {
	samples := make([]ControllerSample, 300)
	for i := range samples {
		samples[i].Handle = int32(i + 1)
	}

	got := EncodeData(samples)
	if got[1] != 255 {
		t.Fatalf("got count byte %d, want 255", got[1])
	}
}
