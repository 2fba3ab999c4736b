// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package session

import "github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/inputbackend"

// Controller é a identidade de um pad local conectado. Pertence
// exclusivamente ao Poller; o canal de controle só enxerga um handle mais
// um canal de resposta, nunca o Controller em si.
type Controller struct {
	BackendID  inputbackend.GamepadID
	Handle     int32
	DeviceSlot int16
	PadSlot    int8
	Effect     inputbackend.Effect // nil se o pad não tem force-feedback
}

// PingOutcome é o que o canal de resposta de um Ping recebe.
type PingOutcome int

const (
	Pong PingOutcome = iota
	PingDisconnect
)

// AttachOutcome é o que o canal de resposta de um Attach recebe: um par de
// slots válido ou uma falha (erro de protocolo ou slots negativos).
type AttachOutcome struct {
	DeviceSlot int16
	PadSlot    int8
	Ok         bool
}

// RumbleKind distingue Start de Stop em um evento de rumble.
type RumbleKind int

const (
	RumbleStart RumbleKind = iota
	RumbleStop
)

// RumbleEvent é o que o Ingress entrega ao Poller.
type RumbleEvent struct {
	Handle int32
	Kind   RumbleKind
}

// requestKind rotula a variante de um ControlRequest. O conjunto é fechado
// e concreto: o canal de controle faz switch sobre ele em vez de despachar
// dinamicamente por interface.
type requestKind int

const (
	reqPing requestKind = iota
	reqAttach
	reqDetach
)

// ControlRequest é o único tipo de mensagem que a fila de controle carrega.
// No máximo um dos canais de resposta é preenchido, conforme o kind (Ping
// e Attach têm o seu; Detach não tem nenhum);
// chamadores constroem instâncias pelos helpers NewXRequest abaixo em vez
// de tocar nos campos diretamente.
type ControlRequest struct {
	kind   requestKind
	handle int32

	pingReply   chan PingOutcome
	attachReply chan AttachOutcome
}

// NewPingRequest monta um request de Ping com canal de resposta de
// capacidade 1 (one-shot, nunca bloqueia quem responde).
func NewPingRequest() (*ControlRequest, <-chan PingOutcome) {
	reply := make(chan PingOutcome, 1)
	return &ControlRequest{kind: reqPing, pingReply: reply}, reply
}

// NewAttachRequest monta um request de Attach para handle.
func NewAttachRequest(handle int32) (*ControlRequest, <-chan AttachOutcome) {
	reply := make(chan AttachOutcome, 1)
	return &ControlRequest{kind: reqAttach, handle: handle, attachReply: reply}, reply
}

// NewDetachRequest monta um request de Detach. Detach não tem resposta no
// protocolo nem neste modelo — o canal de controle emite o frame ou marca o
// socket como falho, e o chamador já removeu o Controller local antes de
// enfileirar.
func NewDetachRequest(handle int32) *ControlRequest {
	return &ControlRequest{kind: reqDetach, handle: handle}
}

// replyPing alimenta o canal de resposta se este request é um Ping.
// Seguro de chamar incondicionalmente; no-op caso contrário.
func (r *ControlRequest) replyPing(o PingOutcome) {
	if r.kind == reqPing && r.pingReply != nil {
		r.pingReply <- o
	}
}

// replyAttach alimenta o canal de resposta se este request é um Attach.
func (r *ControlRequest) replyAttach(o AttachOutcome) {
	if r.kind == reqAttach && r.attachReply != nil {
		r.attachReply <- o
	}
}
