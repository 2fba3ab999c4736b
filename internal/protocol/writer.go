// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteAttach escreve o frame de Attach (cliente → server):
// [opcode 1B][handle i32][vid i16][pid i16], tudo big-endian.
func WriteAttach(w io.Writer, handle int32) error {
	buf := make([]byte, AttachFrameSize)
	buf[0] = OpAttach
	binary.BigEndian.PutUint32(buf[1:5], uint32(handle))
	binary.BigEndian.PutUint16(buf[5:7], uint16(AttachVID))
	binary.BigEndian.PutUint16(buf[7:9], uint16(AttachPID))
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing attach frame: %w", err)
	}
	return nil
}

// WriteDetach escreve o frame de Detach (cliente → server):
// [opcode 1B][handle i32], big-endian.
func WriteDetach(w io.Writer, handle int32) error {
	buf := make([]byte, DetachFrameSize)
	buf[0] = OpDetach
	binary.BigEndian.PutUint32(buf[1:5], uint32(handle))
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing detach frame: %w", err)
	}
	return nil
}

// WritePing escreve o frame PING de um byte (cliente → server).
func WritePing(w io.Writer) error {
	if _, err := w.Write([]byte{OpPing}); err != nil {
		return fmt.Errorf("writing ping: %w", err)
	}
	return nil
}

// WriteHandshakeEcho ecoa de volta o byte de versão recebido do server —
// a metade do handshake que cabe ao cliente.
func WriteHandshakeEcho(w io.Writer, version byte) error {
	if _, err := w.Write([]byte{version}); err != nil {
		return fmt.Errorf("writing handshake echo: %w", err)
	}
	return nil
}

// WriteAbort escreve o byte único de ABORT enviado quando o canal de
// controle encerra de forma limpa.
func WriteAbort(w io.Writer) error {
	if _, err := w.Write([]byte{OpAbort}); err != nil {
		return fmt.Errorf("writing abort: %w", err)
	}
	return nil
}

// EncodeData serializa um lote de amostras de controle em um datagrama de
// Data: [opcode 1B][count 1B][ (handle i32 | device_slot i16 | pad_slot i8
// | len i8 | payload) ]×count. Acima de 255 amostras o excedente é
// descartado; cabe ao chamador logar o corte.
func EncodeData(samples []ControllerSample) []byte {
	n := len(samples)
	if n > 255 {
		n = 255
	}

	buf := make([]byte, 0, 2+n*(4+2+1+1+ControllerStateSize))
	buf = append(buf, OpData, byte(n))

	for _, s := range samples[:n] {
		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[0:4], uint32(s.Handle))
		binary.BigEndian.PutUint16(hdr[4:6], uint16(s.DeviceSlot))
		hdr[6] = byte(s.PadSlot)
		hdr[7] = byte(len(s.State) & 0xFF)
		buf = append(buf, hdr[:]...)
		buf = append(buf, s.State[:]...)
	}

	return buf
}
