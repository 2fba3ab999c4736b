// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import (
	"math"

	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/inputbackend"
)

// handleAllocator deriva os handles de 32 bits dos controles: estritamente
// positivos, estáveis dentro da sessão, únicos entre controles conectados.
// A derivação base é ((raw_id mod (INT32_MAX-1)) + 1); como GamepadID é um
// identificador de 64 bits, dois ids de backend diferentes podem colidir no
// mesmo handle derivado (o mod reduz um espaço de 8 bytes a 31 bits). O
// alocador resolve isso com probing linear, mantendo tanto "determinístico
// para um raw id" quanto "único entre controles conectados".
type handleAllocator struct {
	inUse map[int32]inputbackend.GamepadID
}

func newHandleAllocator() *handleAllocator {
	return &handleAllocator{inUse: make(map[int32]inputbackend.GamepadID)}
}

const handleModulus = int64(math.MaxInt32 - 1)

func deriveHandle(rawID inputbackend.GamepadID) int32 {
	return int32(uint64(rawID)%uint64(handleModulus)) + 1
}

// allocate retorna um handle para rawID, estável entre chamadas para o
// mesmo rawID enquanto alocado, e único contra todo outro rawID
// atualmente alocado.
func (a *handleAllocator) allocate(rawID inputbackend.GamepadID) int32 {
	h := deriveHandle(rawID)
	for {
		owner, taken := a.inUse[h]
		if !taken || owner == rawID {
			a.inUse[h] = rawID
			return h
		}
		if h == math.MaxInt32 {
			h = 1
		} else {
			h++
		}
	}
}

// release libera o handle associado a rawID, se houver.
func (a *handleAllocator) release(rawID inputbackend.GamepadID, handle int32) {
	if owner, ok := a.inUse[handle]; ok && owner == rawID {
		delete(a.inUse, handle)
	}
}
