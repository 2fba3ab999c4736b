// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import "github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/inputbackend"

// noopInputBackend satisfaz inputbackend.InputBackend sem nenhum pad
// conectado. O backend real de enumeração/acionamento de dispositivos
// (plumbing HID/XInput) vive fora deste repositório; este stub deixa o
// binário conectar, fazer handshake e ficar ocioso contra um host
// HIDtoVPAD real com zero controles, o que já exercita o núcleo da sessão
// de ponta a ponta. Troque por um backend concreto para espelhar pads de
// verdade.
type noopInputBackend struct{}

func (noopInputBackend) Gamepads() []inputbackend.GamepadID { return nil }

func (noopInputBackend) Name(inputbackend.GamepadID) string { return "" }

func (noopInputBackend) SupportsForceFeedback(inputbackend.GamepadID) bool { return false }

func (noopInputBackend) NewWeakEffect(inputbackend.GamepadID) (inputbackend.Effect, error) {
	return nil, nil
}

func (noopInputBackend) Drain() {}

func (noopInputBackend) Events() []inputbackend.Event { return nil }

func (noopInputBackend) Sample(inputbackend.GamepadID) (inputbackend.StickSample, error) {
	return inputbackend.StickSample{}, nil
}
